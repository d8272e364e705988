package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/tapthat/action"
	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/service"
	"go.uber.org/zap"
)

// Handlers contains the HTTP handlers of the relay API
type Handlers struct {
	relay         *service.RelayService
	bridges       *service.BridgeService
	notifications *service.NotificationService
	logger        *zap.Logger
}

// NewHandlers creates the relay API handlers
func NewHandlers(
	relay *service.RelayService,
	bridges *service.BridgeService,
	notifications *service.NotificationService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		relay:         relay,
		bridges:       bridges,
		notifications: notifications,
		logger:        logger,
	}
}

// ExecuteTap handles a chip tap forwarded by the tapping device
func (h *Handlers) ExecuteTap(c *gin.Context) {
	var req struct {
		Owner         string      `json:"owner"`
		Chip          string      `json:"chip"`
		ChipSignature string      `json:"chipSignature"`
		Timestamp     json.Number `json:"timestamp"`
		Nonce         string      `json:"nonce"`
		ChainID       uint64      `json:"chainId"`
		Value         json.Number `json:"value"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res, err := h.relay.ExecuteTap(c.Request.Context(), service.TapRequest{
		Owner:         req.Owner,
		Chip:          req.Chip,
		ChipSignature: req.ChipSignature,
		Timestamp:     req.Timestamp.String(),
		Nonce:         req.Nonce,
		ChainID:       req.ChainID,
		Value:         req.Value.String(),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// ExecutePayment handles a payer chip authorization for the payment terminal
func (h *Handlers) ExecutePayment(c *gin.Context) {
	var req struct {
		Payer          string      `json:"payer"`
		PayerChip      string      `json:"payerChip"`
		Payee          string      `json:"payee"`
		PayeeChip      string      `json:"payeeChip"`
		Token          string      `json:"token"`
		Amount         json.Number `json:"amount"`
		Timestamp      json.Number `json:"timestamp"`
		Nonce          string      `json:"nonce"`
		PayerSignature string      `json:"payerSignature"`
		ChainID        uint64      `json:"chainId"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res, err := h.relay.ExecutePayment(c.Request.Context(), service.PaymentRequest{
		Payer:          req.Payer,
		PayerChip:      req.PayerChip,
		Payee:          req.Payee,
		PayeeChip:      req.PayeeChip,
		Token:          req.Token,
		Amount:         req.Amount.String(),
		Timestamp:      req.Timestamp.String(),
		Nonce:          req.Nonce,
		PayerSignature: req.PayerSignature,
		ChainID:        req.ChainID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// GetBridgeRequest returns a stored bridge request
func (h *Handlers) GetBridgeRequest(c *gin.Context) {
	req, err := h.bridges.Get(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

// CompleteBridgeRequest marks a bridge request as completed
func (h *Handlers) CompleteBridgeRequest(c *gin.Context) {
	var req struct {
		TxHash string `json:"txHash"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.bridges.Complete(c.Request.Context(), c.Param("requestId"), req.TxHash); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Bridge request marked as completed",
	})
}

// VerifyBridgeRequest checks a request against the approving wallet
func (h *Handlers) VerifyBridgeRequest(c *gin.Context) {
	var req struct {
		ConnectedWallet string `json:"connectedWallet"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res, err := h.bridges.Verify(c.Request.Context(), c.Param("requestId"), req.ConnectedWallet)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Subscribe saves a push subscription for a user
func (h *Handlers) Subscribe(c *gin.Context) {
	var req struct {
		UserAddress  string `json:"userAddress"`
		Subscription *struct {
			Endpoint string        `json:"endpoint"`
			Keys     core.PushKeys `json:"keys"`
		} `json:"subscription"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.UserAddress == "" || req.Subscription == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userAddress or subscription"})
		return
	}

	err := h.notifications.Save(c.Request.Context(), req.UserAddress, core.PushSubscription{
		Endpoint: req.Subscription.Endpoint,
		Keys:     req.Subscription.Keys,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Push subscription saved successfully",
	})
}

// PublicKey returns the VAPID key browsers subscribe with
func (h *Handlers) PublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publicKey": h.notifications.PublicKey()})
}

// ActionTemplates lists the action kinds a chip can be configured with.
// A single kind is returned when the id query parameter is set.
func (h *Handlers) ActionTemplates(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusOK, gin.H{"templates": action.Templates()})
		return
	}

	tpl, ok := action.TemplateByID(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown action template"})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
