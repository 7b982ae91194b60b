package creator

import (
	"context"
	"errors"
	"fmt"

	"nftcreator/internal/inference"
	"nftcreator/internal/mint"
	"nftcreator/internal/storage"
	"nftcreator/internal/wallet"
)

// Kind is the failure category shown to the user.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindWallet
	KindNetwork
	KindContract
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindWallet:
		return "wallet"
	case KindNetwork:
		return "network"
	case KindContract:
		return "contract"
	default:
		return "unknown"
	}
}

// ErrBusy is returned when a submission is already in flight. The running
// submission is not affected.
var ErrBusy = errors.New("a submission is already in progress")

// Error is a categorised submission failure.
type Error struct {
	Kind  Kind
	Stage Phase
	// Msg is safe to show to the user.
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// classify maps a stage failure onto exactly one Kind with a distinct message.
func classify(stage Phase, err error) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	e := &Error{Kind: KindNetwork, Stage: stage, Err: err}
	var status *inference.StatusError

	switch {
	case errors.Is(err, wallet.ErrNoWallet):
		e.Kind, e.Msg = KindWallet, "No wallet detected"
	case errors.Is(err, wallet.ErrUnsupportedNetwork):
		e.Kind, e.Msg = KindWallet, "Unsupported network"
	case errors.Is(err, wallet.ErrNoAccount):
		e.Kind, e.Msg = KindWallet, "No account connected"
	case errors.Is(err, mint.ErrRejected):
		e.Kind, e.Msg = KindWallet, "Transaction rejected in wallet"
	case errors.Is(err, mint.ErrInsufficientFunds):
		e.Kind, e.Msg = KindWallet, "Insufficient funds to mint"
	case errors.Is(err, mint.ErrReverted):
		e.Kind, e.Msg = KindContract, "Mint transaction reverted"
	case errors.Is(err, inference.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		e.Msg = stage.label() + " timed out"
	case errors.Is(err, context.Canceled):
		e.Msg = stage.label() + " cancelled"
	case errors.As(err, &status):
		e.Msg = fmt.Sprintf("Image service error (%d)", status.Code)
	case errors.Is(err, inference.ErrMalformedPayload):
		e.Msg = "Image service returned an unusable response"
	case errors.Is(err, storage.ErrRejected):
		e.Msg = "Storage service rejected the upload"
	case errors.Is(err, storage.ErrBadIdentifier):
		e.Msg = "Storage service returned an invalid identifier"
	case errors.Is(err, storage.ErrMalformedResponse):
		e.Msg = "Storage service returned an unusable response"
	default:
		e.Msg = stage.label() + " failed"
	}
	return e
}
