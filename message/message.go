// Package message defines the envelope exchanged between client and server.
//
// An RPCMessage is serialized by the codec layer and wrapped in a protocol
// frame. The frame's message type says whether it is a request, a response or
// a notification; the envelope carries the call itself.
package message

import "rpccore/types"

// RPCMessage carries a single call or its outcome.
//
//   - Request / notification: Method and Params are set.
//   - Response: exactly one of Result and Error is set.
type RPCMessage struct {
	Method string       `json:"method,omitempty" cbor:"1,keyasint,omitempty"`
	Params types.Params `json:"params,omitempty" cbor:"2,keyasint,omitempty"`
	Result types.Value  `json:"result,omitempty" cbor:"3,keyasint,omitempty"`
	Error  *types.Error `json:"error,omitempty" cbor:"4,keyasint,omitempty"`
}

// NewResponse builds the response for method from a settled outcome. Errors
// that are not *types.Error are converted to internal errors here, at the
// wire boundary.
func NewResponse(method string, result types.Value, err error) *RPCMessage {
	if err != nil {
		return &RPCMessage{Method: method, Error: types.AsError(err)}
	}
	if len(result) == 0 {
		result = types.Null
	}
	return &RPCMessage{Method: method, Result: result}
}

// Failure builds an error response.
func Failure(method string, err *types.Error) *RPCMessage {
	return &RPCMessage{Method: method, Error: err}
}

// Err returns the response error as a Go error, or nil on success.
func (m *RPCMessage) Err() error {
	if m.Error == nil {
		return nil
	}
	return m.Error
}
