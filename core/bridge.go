package core

import (
	"strings"
	"time"
)

// BridgeStatus is the lifecycle state of a bridge request
type BridgeStatus string

const (
	BridgeStatusPending   BridgeStatus = "pending"
	BridgeStatusCompleted BridgeStatus = "completed"
)

// BridgeRequest is a pending cross-chain approval created when a chip tap
// resolves to the bridge sentinel. It is completed from a second device.
type BridgeRequest struct {
	RequestID     string       `json:"requestId"`
	UserAddress   string       `json:"userAddress"` // lower-cased
	ChipAddress   string       `json:"chipAddress"` // lower-cased
	SourceChain   uint64       `json:"sourceChain"`
	DestChain     uint64       `json:"destChain"`
	TokenAddress  string       `json:"tokenAddress"`
	Amount        string       `json:"amount"`   // base units, decimal
	CallData      string       `json:"callData"` // 0x-prefixed hex
	ChipSignature string       `json:"chipSignature"`
	Timestamp     uint64       `json:"timestamp"`
	Nonce         string       `json:"nonce"`
	Status        BridgeStatus `json:"status"`
	TxHash        string       `json:"txHash,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	ExpiresAt     time.Time    `json:"expiresAt"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty"`
}

// IsPending reports whether the request can still be completed.
func (r *BridgeRequest) IsPending() bool {
	return r.Status == BridgeStatusPending
}

// IsExpired reports whether the request is past its expiry at now.
func (r *BridgeRequest) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// PushKeys are the browser-generated keys of a push subscription
type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is one device's opt-in to bridge approval prompts.
type PushSubscription struct {
	UserAddress string
	Endpoint    string
	Keys        PushKeys
}

// NormalizeAddress lower-cases an address for storage and comparison.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
