package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"bridgewallet.io/bridge-wallet/pkg/errors"
	"bridgewallet.io/bridge-wallet/pkg/log"
)

const Version = "2.0"

// Error codes used on outbound rejections.
const (
	// CodeUserRejected is the EIP-1193 user-rejection code sent when the
	// wallet owner declines a request.
	CodeUserRejected = 4001
	// CodeInternal is the server-error code used on handshake rejections.
	CodeInternal = -32000
)

// ChainID tolerates the legacy wire ambiguity: peers send it as either a JSON
// string or an integer. It always marshals as a string.
type ChainID string

func (c ChainID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c))
}

func (c *ChainID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ChainID(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = ChainID(strconv.FormatInt(n, 10))
	return nil
}

// SessionHint is the non-standard session field some peers append to
// requests. It is tolerated on decode and never required.
type SessionHint struct {
	ChainID ChainID `json:"chainId"`
	Account string  `json:"account"`
}

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	ID      int64         `json:"id"`
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	Session *SessionHint  `json:"session,omitempty"`
}

// NewRequest builds a request with a fresh id. WalletConnect convention:
// session methods take a one-element array holding the param object, signing
// methods take arrays of strings or transactions.
func NewRequest(method string, params ...interface{}) *Request {
	r := &Request{
		ID:      NextID(),
		JSONRPC: Version,
		Method:  method,
		Params:  []interface{}{},
	}
	if len(params) > 0 {
		r.Params = params
	}
	return r
}

// Marshal renders the request for encryption.
func (r *Request) Marshal() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		log.Errorf("marshal jsonrpc request:%v", err)
	}
	return data
}

// IsSilent reports whether the relay should suppress push notifications for
// this request. Session bookkeeping methods are silent.
func (r *Request) IsSilent() bool {
	return strings.HasPrefix(r.Method, "wc_") || strings.HasPrefix(r.Method, "dc_")
}

// Response is a successful JSON-RPC 2.0 response envelope.
type Response struct {
	ID      int64       `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result"`
}

func NewResponse(id int64, result interface{}) *Response {
	return &Response{ID: id, JSONRPC: Version, Result: result}
}

func (r *Response) Marshal() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		log.Errorf("marshal jsonrpc response:%v", err)
	}
	return data
}

// ErrorBody is the code/message pair of an error response.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is a JSON-RPC 2.0 error response envelope.
type ErrorResponse struct {
	ID      int64     `json:"id"`
	JSONRPC string    `json:"jsonrpc"`
	Error   ErrorBody `json:"error"`
}

func NewErrorResponse(id int64, code int, message string) *ErrorResponse {
	return &ErrorResponse{
		ID:      id,
		JSONRPC: Version,
		Error:   ErrorBody{Code: code, Message: message},
	}
}

func (r *ErrorResponse) Marshal() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		log.Errorf("marshal jsonrpc error response:%v", err)
	}
	return data
}

// RPCError is an error field received from the peer. It takes precedence over
// any result carried alongside it.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %v: %v", e.Code, e.Message)
}

// ParseResponse decodes an inbound response payload. The returned raw result
// is only valid when err is nil; a present error field wins over result.
func ParseResponse(data []byte) (int64, json.RawMessage, error) {
	var decoded struct {
		ID     int64           `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return 0, nil, errors.WithKind(errors.KindBadJSONRPCRequest, errors.Wrap(err, "unmarshal jsonrpc response"))
	}
	if decoded.Error != nil {
		return decoded.ID, nil, decoded.Error
	}
	return decoded.ID, decoded.Result, nil
}
