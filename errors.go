package tapthat

import (
	"fmt"
	"math/big"
	"net/http"

	"github.com/layer-3/tapthat/core"
)

// APIError is a non-2xx response from the relay API
type APIError struct {
	StatusCode int
	Message    string
	Shortfall  *core.Shortfall
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay api: %d: %s", e.StatusCode, e.Message)
}

// Unwrap exposes the relay's error kind so callers can use core.KindOf on
// client errors the same way they do on service errors.
func (e *APIError) Unwrap() error {
	return &core.Error{Kind: kindForStatus(e.StatusCode), Msg: e.Message, Shortfall: e.Shortfall}
}

func kindForStatus(status int) core.Kind {
	switch status {
	case http.StatusBadRequest:
		return core.KindValidation
	case http.StatusForbidden:
		return core.KindVerification
	case http.StatusNotFound:
		return core.KindNotFound
	default:
		return core.KindExecution
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Shortfall *struct {
		Need  string `json:"need"`
		Have  string `json:"have"`
		Value string `json:"value"`
		Gas   string `json:"gas"`
	} `json:"shortfall,omitempty"`
}

func (b errorBody) shortfall() *core.Shortfall {
	if b.Shortfall == nil {
		return nil
	}
	return &core.Shortfall{
		Need:  parseWei(b.Shortfall.Need),
		Have:  parseWei(b.Shortfall.Have),
		Value: parseWei(b.Shortfall.Value),
		Gas:   parseWei(b.Shortfall.Gas),
	}
}

func parseWei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
