package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/tapthat/core"
	"go.uber.org/zap"
)

// statusFor maps an error kind to its HTTP status
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindVerification:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type shortfallBody struct {
	Need  string `json:"need"`
	Have  string `json:"have"`
	Value string `json:"value"`
	Gas   string `json:"gas"`
}

// writeError renders err as {"error": message} with the status of its kind.
// A balance shortfall is returned next to the message in wei.
func (h *Handlers) writeError(c *gin.Context, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)

	body := gin.H{"error": err.Error()}
	if s := core.ShortfallOf(err); s != nil {
		body["shortfall"] = shortfallBody{
			Need:  s.Need.String(),
			Have:  s.Have.String(),
			Value: s.Value.String(),
			Gas:   s.Gas.String(),
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
	}

	c.JSON(status, body)
}
