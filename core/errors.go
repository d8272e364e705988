package core

import (
	"errors"
	"fmt"
	"math/big"
)

// Kind classifies every error the relay surfaces. Callers switch on the kind,
// never on message text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers malformed or missing input. Never retried.
	KindValidation
	// KindConfiguration covers relay key, deployment and environment problems.
	KindConfiguration
	// KindVerification covers wallet, chip and signature recovery failures.
	KindVerification
	// KindNotFound covers unknown or already completed bridge requests.
	KindNotFound
	// KindExecution covers reverts, provider errors and insufficient relay balance.
	KindExecution
	// KindTransientStore covers database timeouts and dropped connections.
	KindTransientStore
	// KindDelivery covers push endpoints that no longer exist.
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindVerification:
		return "verification"
	case KindNotFound:
		return "not_found"
	case KindExecution:
		return "execution"
	case KindTransientStore:
		return "transient_store"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

var (
	// ErrNotFoundOrCompleted is returned when a bridge request is unknown, already completed or expired
	ErrNotFoundOrCompleted = errors.New("bridge request not found or already completed")

	// ErrRequestNotFound is returned when a bridge request lookup misses
	ErrRequestNotFound = errors.New("bridge request not found")

	// ErrDuplicateRequest is returned when a bridge request id already exists
	ErrDuplicateRequest = errors.New("bridge request id already exists")

	// ErrNoSubscription is returned when a user has no push subscription
	ErrNoSubscription = errors.New("no push subscription found")

	// ErrSubscriptionGone is returned when the push service reports an endpoint as gone
	ErrSubscriptionGone = errors.New("push subscription is gone")

	// ErrInvalidSignature is returned when a signature cannot be decoded or recovered
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidAddress is returned when an address is not a hex address
	ErrInvalidAddress = errors.New("invalid ethereum address")
)

// Shortfall describes a relay balance that cannot cover value plus gas.
type Shortfall struct {
	Need  *big.Int `json:"need"`
	Have  *big.Int `json:"have"`
	Value *big.Int `json:"value"`
	Gas   *big.Int `json:"gas"`
}

// Error is the structured error carried through the relay.
type Error struct {
	Kind      Kind
	Msg       string
	Err       error
	Shortfall *Shortfall
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ShortfallOf returns the balance shortfall attached to err, if any.
func ShortfallOf(err error) *Shortfall {
	var e *Error
	if errors.As(err, &e) {
		return e.Shortfall
	}
	return nil
}

func ValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func ConfigurationError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Msg: fmt.Sprintf(format, args...)}
}

func VerificationError(msg string) *Error {
	return &Error{Kind: KindVerification, Msg: msg}
}

func NotFoundError(err error) *Error {
	return &Error{Kind: KindNotFound, Err: err}
}

func ExecutionError(msg string, err error) *Error {
	return &Error{Kind: KindExecution, Msg: msg, Err: err}
}

func TransientStoreError(op string, err error) *Error {
	return &Error{Kind: KindTransientStore, Msg: op, Err: err}
}

func DeliveryError(endpoint string, err error) *Error {
	return &Error{Kind: KindDelivery, Msg: endpoint, Err: err}
}
