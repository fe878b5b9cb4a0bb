package rpc

import (
	"fmt"
	"net/http"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
	ErrCodeParse          = -32700
)

// Application error codes shared with the rest of the bitcoin family.
const (
	ErrCodeMisc                = -1 // catch-all for unstructured handler failures
	ErrCodeForbiddenBySafeMode = -2
	ErrCodeType                = -3
	ErrCodeInvalidAddressOrKey = -5
	ErrCodeOutOfMemory         = -7
	ErrCodeInvalidParameter    = -8
	ErrCodeDatabase            = -20
	ErrCodeDeserialization     = -22

	ErrCodeWallet                    = -4
	ErrCodeWalletInsufficientFunds   = -6
	ErrCodeWalletInvalidAccountName  = -11
	ErrCodeWalletUnlockNeeded        = -13
	ErrCodeWalletPassphraseIncorrect = -14
	ErrCodeWalletWrongEncState       = -15
	ErrCodeWalletAlreadyUnlocked     = -17
)

// Error is the structured failure carried in a response's error field.
//
// Handlers return *Error to choose the code; any other error is reported
// as ErrCodeMisc with its text.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// NewError builds an *Error with a formatted message.
func NewError(code int, format string, args ...any) *Error {
	if len(args) == 0 {
		return &Error{Code: code, Message: format}
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps an error code to the status used when the error is the
// whole reply to a single request. Application errors travel with 200.
func HTTPStatus(code int) int {
	switch code {
	case ErrCodeParse, ErrCodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusOK
	}
}
