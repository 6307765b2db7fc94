package types

import (
	"errors"
	"fmt"
)

// ErrorCode is the numeric code of a call failure.
type ErrorCode int64

const (
	CodeParseError     ErrorCode = -32700
	CodeInvalidRequest ErrorCode = -32600
	CodeMethodNotFound ErrorCode = -32601
	CodeInvalidParams  ErrorCode = -32602
	CodeInternalError  ErrorCode = -32603
	CodeServerError    ErrorCode = -32000

	// Implementation-defined server errors.
	CodeRequestTimeout ErrorCode = -32001
	CodeRateLimited    ErrorCode = -32002
	CodeUnavailable    ErrorCode = -32003
)

// Description returns the canonical message for well-known codes.
func (c ErrorCode) Description() string {
	switch c {
	case CodeParseError:
		return "Parse error"
	case CodeInvalidRequest:
		return "Invalid request"
	case CodeMethodNotFound:
		return "Method not found"
	case CodeInvalidParams:
		return "Invalid params"
	case CodeInternalError:
		return "Internal error"
	case CodeServerError:
		return "Server error"
	case CodeRequestTimeout:
		return "Request timed out"
	case CodeRateLimited:
		return "Rate limit exceeded"
	case CodeUnavailable:
		return "Service unavailable"
	}
	return "Server error"
}

// Error is a structured call failure. It is the only failure shape that
// crosses the wire.
type Error struct {
	Code    ErrorCode `json:"code" cbor:"code"`
	Message string    `json:"message" cbor:"message"`
	Data    Value     `json:"data,omitempty" cbor:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError builds an Error carrying the canonical message for code.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code, Message: code.Description()}
}

func ParseError() *Error     { return NewError(CodeParseError) }
func InvalidRequest() *Error { return NewError(CodeInvalidRequest) }
func MethodNotFound() *Error { return NewError(CodeMethodNotFound) }
func InternalError() *Error  { return NewError(CodeInternalError) }
func RequestTimeout() *Error { return NewError(CodeRequestTimeout) }
func RateLimited() *Error    { return NewError(CodeRateLimited) }

// Unavailable reports that the callee could not be reached.
func Unavailable(detail string) *Error {
	e := NewError(CodeUnavailable)
	if detail != "" {
		e.Data, _ = NewValue(detail)
	}
	return e
}

// InvalidParams reports a params decoding failure with detail in Data.
func InvalidParams(detail string) *Error {
	e := NewError(CodeInvalidParams)
	if detail != "" {
		e.Data, _ = NewValue(detail)
	}
	return e
}

var (
	// ErrAliasCycle means an alias chain revisits a name.
	ErrAliasCycle = errors.New("rpccore: alias cycle")
	// ErrAliasDepth means an alias chain exceeds the configured hop limit.
	ErrAliasDepth = errors.New("rpccore: alias chain too long")
)

// AsError converts any error into an *Error. *Error values, possibly
// wrapped, pass through unchanged; anything else becomes an internal error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, ErrAliasCycle) || errors.Is(err, ErrAliasDepth) {
		return MethodNotFound()
	}
	e := InternalError()
	e.Data, _ = NewValue(err.Error())
	return e
}
