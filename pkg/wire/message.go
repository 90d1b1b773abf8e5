package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CommuniqueType identifies the kind of LEAP exchange a message
// belongs to.
type CommuniqueType string

// Communique types used by the bridge.
const (
	CommuniqueCreateRequest     CommuniqueType = "CreateRequest"
	CommuniqueCreateResponse    CommuniqueType = "CreateResponse"
	CommuniqueReadRequest       CommuniqueType = "ReadRequest"
	CommuniqueReadResponse      CommuniqueType = "ReadResponse"
	CommuniqueUpdateRequest     CommuniqueType = "UpdateRequest"
	CommuniqueUpdateResponse    CommuniqueType = "UpdateResponse"
	CommuniqueSubscribeRequest  CommuniqueType = "SubscribeRequest"
	CommuniqueSubscribeResponse CommuniqueType = "SubscribeResponse"
	CommuniqueDeleteRequest     CommuniqueType = "DeleteRequest"
	CommuniqueDeleteResponse    CommuniqueType = "DeleteResponse"
	CommuniqueExceptionResponse CommuniqueType = "ExceptionResponse"
)

// IsRequest returns true for client-originated communique types.
func (c CommuniqueType) IsRequest() bool {
	return strings.HasSuffix(string(c), "Request")
}

// IsResponse returns true for bridge-originated communique types.
func (c CommuniqueType) IsResponse() bool {
	return strings.HasSuffix(string(c), "Response")
}

// IsValid returns true if the communique type is known.
func (c CommuniqueType) IsValid() bool {
	switch c {
	case CommuniqueCreateRequest, CommuniqueCreateResponse,
		CommuniqueReadRequest, CommuniqueReadResponse,
		CommuniqueUpdateRequest, CommuniqueUpdateResponse,
		CommuniqueSubscribeRequest, CommuniqueSubscribeResponse,
		CommuniqueDeleteRequest, CommuniqueDeleteResponse,
		CommuniqueExceptionResponse:
		return true
	default:
		return false
	}
}

// Header carries message metadata. ClientTag correlates responses
// with the requests that caused them; StatusCode is only present on
// responses.
type Header struct {
	ClientTag       string  `json:"ClientTag,omitempty"`
	URL             string  `json:"Url,omitempty"`
	StatusCode      *Status `json:"StatusCode,omitempty"`
	MessageBodyType string  `json:"MessageBodyType,omitempty"`
}

// Message is a single LEAP document. The Body is kept raw until a
// caller knows which typed body to decode it into.
type Message struct {
	CommuniqueType CommuniqueType  `json:"CommuniqueType"`
	Header         Header          `json:"Header"`
	Body           json.RawMessage `json:"Body,omitempty"`
}

// Tag returns the correlation tag, or "" for untagged messages.
func (m *Message) Tag() string {
	return m.Header.ClientTag
}

// IsSuccess returns true if the message carries a 2xx status code.
// Messages without a status code (requests, events) are not successes.
func (m *Message) IsSuccess() bool {
	return m.Header.StatusCode != nil && m.Header.StatusCode.IsSuccess()
}

// DecodeBody unmarshals the message body into v.
func (m *Message) DecodeBody(v any) error {
	if len(m.Body) == 0 {
		return fmt.Errorf("message has no body")
	}
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("failed to decode body: %w", err)
	}
	return nil
}

// NewRequest builds a tagged request message. The body may be nil for
// requests without parameters (reads, subscribes).
func NewRequest(ct CommuniqueType, url, tag string, body any) (*Message, error) {
	if !ct.IsRequest() {
		return nil, fmt.Errorf("communique type %q is not a request", ct)
	}

	msg := &Message{
		CommuniqueType: ct,
		Header: Header{
			ClientTag: tag,
			URL:       url,
		},
	}

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		msg.Body = data
	}

	return msg, nil
}
