package backend

import (
	"encoding/json"
	"errors"
	"fmt"

	"rungchat/internal/transfer"
)

// Reply is what an endpoint answered: Structured, Binary or *Failure.
type Reply interface {
	isReply()
}

// Structured is a 2xx JSON reply carrying a response envelope.
type Structured struct {
	Status int
	Body   ReplyBody
}

// ReplyBody is the "response" object of a structured reply.
type ReplyBody struct {
	Text                 string          `json:"text"`
	IsCode               bool            `json:"is_code"`
	Duration             *float64        `json:"duration"`
	Download             *Download       `json:"download"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	ConfirmationData     json.RawMessage `json:"confirmation_data"`
}

// Download is an inline artifact inside a structured reply.
type Download struct {
	FileContent string `json:"file_content"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Encoding    string `json:"encoding"`
}

// Artifact converts the download into a transfer artifact.
func (d *Download) Artifact() transfer.Artifact {
	return transfer.Artifact{
		Payload:  transfer.Encoded{Text: d.FileContent, Scheme: d.Encoding},
		Filename: d.FileName,
		MIMEType: d.ContentType,
	}
}

// Binary is a 2xx reply whose whole body is an artifact.
type Binary struct {
	Status             int
	Data               []byte
	ContentType        string
	ContentDisposition string
}

// SaveAction resolves the binary body into a save action.
func (b *Binary) SaveAction() transfer.SaveAction {
	return transfer.FromBody(b.Data, b.ContentDisposition, b.ContentType)
}

// FailureKind classifies a Failure.
type FailureKind string

const (
	// FailureProtocol is a non-2xx reply.
	FailureProtocol FailureKind = "protocol"
	// FailureMalformed is a 2xx reply whose body could not be used.
	FailureMalformed FailureKind = "malformed"
	// FailureSave is a non-2xx reply from the artifact persistence endpoint.
	FailureSave FailureKind = "save"
)

// Failure is an application-level failure reply. It is both a Reply and an error.
type Failure struct {
	Kind    FailureKind
	Status  int
	Message string
}

func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("%s failure (status %d): %s", f.Kind, f.Status, f.Message)
	}
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Message)
}

func (*Structured) isReply() {}
func (*Binary) isReply()     {}
func (*Failure) isReply()    {}

// ErrReplyTooLarge is wrapped by the TransportError of a reply over the size limit.
var ErrReplyTooLarge = errors.New("reply too large")

// TransportError wraps a failure to reach the backend or read its reply.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UploadResult is the reply of the document upload endpoint.
type UploadResult struct {
	HTTPStatus int    `json:"-"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// OK reports whether the upload succeeded.
func (r UploadResult) OK() bool {
	return r.HTTPStatus >= 200 && r.HTTPStatus < 300 && r.Status == "success"
}

// FallbackErrorMessage is used when an error body carries no message.
const FallbackErrorMessage = "Server error."

// fallbackMessages overrides FallbackErrorMessage per endpoint.
var fallbackMessages = map[string]string{
	EndpointConfirmIntention: "Error confirming intention.",
	EndpointGenerateRung:     "Unknown error during save.",
}

// FallbackMessage is the error text used for endpoint when the body has none.
func FallbackMessage(endpoint string) string {
	if m, ok := fallbackMessages[endpoint]; ok {
		return m
	}
	return FallbackErrorMessage
}

// errorMessage extracts the human-readable message of an error body: the
// "error" field, then "response.text", then "message".
func errorMessage(endpoint string, body []byte) string {
	var e struct {
		Error    json.RawMessage `json:"error"`
		Message  json.RawMessage `json:"message"`
		Response *struct {
			Text json.RawMessage `json:"text"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return FallbackMessage(endpoint)
	}
	if s := jsonString(e.Error); s != "" {
		return s
	}
	if e.Response != nil {
		if s := jsonString(e.Response.Text); s != "" {
			return s
		}
	}
	if s := jsonString(e.Message); s != "" {
		return s
	}
	return FallbackMessage(endpoint)
}

func jsonString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}
