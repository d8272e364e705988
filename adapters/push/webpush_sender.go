package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/ports"
)

const (
	DefaultSubject = "mailto:admin@tapthatx.com"
	defaultTTL     = 60 * 60
)

// VAPIDConfig is the server's push identity
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// WebPushSender delivers payloads over the Web Push protocol with VAPID
type WebPushSender struct {
	vapid      VAPIDConfig
	httpClient webpush.HTTPClient
	ttl        int
}

var _ ports.PushSender = (*WebPushSender)(nil)

// NewWebPushSender creates a sender. A nil httpClient uses http.DefaultClient.
func NewWebPushSender(vapid VAPIDConfig, httpClient webpush.HTTPClient) *WebPushSender {
	if vapid.Subject == "" {
		vapid.Subject = DefaultSubject
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebPushSender{vapid: vapid, httpClient: httpClient, ttl: defaultTTL}
}

func (s *WebPushSender) PublicKey() string {
	return s.vapid.PublicKey
}

// Send encrypts and posts payload to the subscription endpoint
func (s *WebPushSender) Send(ctx context.Context, sub core.PushSubscription, payload []byte) error {
	if s.vapid.PublicKey == "" || s.vapid.PrivateKey == "" {
		return core.ConfigurationError("VAPID keys are not configured")
	}

	// webpush-go adds the mailto: prefix itself
	subscriber := strings.TrimPrefix(s.vapid.Subject, "mailto:")

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Keys.Auth,
			P256dh: sub.Keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      subscriber,
		VAPIDPublicKey:  s.vapid.PublicKey,
		VAPIDPrivateKey: s.vapid.PrivateKey,
		TTL:             s.ttl,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return core.DeliveryError(sub.Endpoint, core.ErrSubscriptionGone)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
