// Package backend is the HTTP client for the ladder-logic assistant service.
//
// Every call returns a Reply classified from the status line and headers
// before the body is interpreted, so a binary artifact is never fed to the
// JSON decoder. Network failures are returned as *TransportError.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"rungchat/internal/logging"

	"golang.org/x/net/publicsuffix"
)

// Endpoint paths, relative to the base URL.
const (
	EndpointChat             = "chat"
	EndpointAttach           = "attach"
	EndpointConfirmIntention = "confirm_intention"
	EndpointProcessUDT       = "process_udt_attachment"
	EndpointGenerateRung     = "generate_rung_from_saved_code"
	EndpointUploadDocument   = "upload_std_document"
)

// maxBodyBytes bounds how much of a reply is read. Larger replies are
// rejected rather than truncated.
var maxBodyBytes int64 = 64 << 20

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:5000",
		Timeout:   300 * time.Second, // generation of large projects is slow
		UserAgent: "rung",
	}
}

// Client talks to the assistant backend.
type Client struct {
	baseURL    *url.URL
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a client. The client keeps cookies so a server-side
// session survives across requests.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme and host required", cfg.BaseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		baseURL:   u,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
	}, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Chat posts a free-text message.
func (c *Client) Chat(ctx context.Context, message string) (Reply, error) {
	return c.postStructured(ctx, EndpointChat, map[string]string{"message": message})
}

// ConfirmIntention posts the chosen intention with the utterance it disambiguates.
func (c *Client) ConfirmIntention(ctx context.Context, intention, originalQuestion string) (Reply, error) {
	return c.postStructured(ctx, EndpointConfirmIntention, map[string]string{
		"intention":         intention,
		"original_question": originalQuestion,
	})
}

// ProcessUDTAttachment posts the chosen handling of an attached UDT.
// udtDefinition is forwarded verbatim.
func (c *Client) ProcessUDTAttachment(ctx context.Context, action string, udtDefinition json.RawMessage, originalFilename string) (Reply, error) {
	if len(udtDefinition) == 0 {
		udtDefinition = json.RawMessage("null")
	}
	return c.postStructured(ctx, EndpointProcessUDT, struct {
		Action           string          `json:"action"`
		UDTDefinition    json.RawMessage `json:"udt_definition"`
		OriginalFilename string          `json:"original_filename"`
	}{action, udtDefinition, originalFilename})
}

// Attach posts a message with a file. A 2xx reply with an XML content type
// and an attachment disposition is returned as *Binary without parsing.
func (c *Client) Attach(ctx context.Context, message, fileName string, data []byte) (Reply, error) {
	body, contentType, err := multipartBody(map[string]string{"message": message}, fileName, data)
	if err != nil {
		return nil, err
	}
	resp, raw, err := c.do(ctx, EndpointAttach, contentType, body)
	if err != nil {
		return nil, err
	}
	if isAttachmentDownload(resp) {
		logging.API("%s: binary reply (%d bytes)", EndpointAttach, len(raw))
		return &Binary{
			Status:             resp.StatusCode,
			Data:               raw,
			ContentType:        resp.Header.Get("Content-Type"),
			ContentDisposition: resp.Header.Get("Content-Disposition"),
		}, nil
	}
	return classifyStructured(EndpointAttach, resp.StatusCode, raw), nil
}

// GenerateRung posts code for conversion into an artifact. On success the
// whole body is the artifact.
func (c *Client) GenerateRung(ctx context.Context, code, filename string) (Reply, error) {
	payload, err := json.Marshal(map[string]string{"code_content": code, "filename": filename})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	resp, raw, err := c.do(ctx, EndpointGenerateRung, "application/json", payload)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return &Failure{Kind: FailureSave, Status: resp.StatusCode, Message: errorMessage(EndpointGenerateRung, raw)}, nil
	}
	return &Binary{
		Status:             resp.StatusCode,
		Data:               raw,
		ContentType:        resp.Header.Get("Content-Type"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
	}, nil
}

// UploadDocument uploads a reference document.
func (c *Client) UploadDocument(ctx context.Context, fileName string, data []byte) (UploadResult, error) {
	body, contentType, err := multipartBody(nil, fileName, data)
	if err != nil {
		return UploadResult{}, err
	}
	resp, raw, err := c.do(ctx, EndpointUploadDocument, contentType, body)
	if err != nil {
		return UploadResult{}, err
	}
	result := UploadResult{HTTPStatus: resp.StatusCode}
	if err := json.Unmarshal(raw, &result); err != nil {
		logging.Get(logging.CategoryAPI).Warn("%s: unparseable reply: %v", EndpointUploadDocument, err)
	}
	result.HTTPStatus = resp.StatusCode
	return result, nil
}

func (c *Client) postStructured(ctx context.Context, endpoint string, v interface{}) (Reply, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	resp, raw, err := c.do(ctx, endpoint, "application/json", payload)
	if err != nil {
		return nil, err
	}
	return classifyStructured(endpoint, resp.StatusCode, raw), nil
}

// do sends a POST and reads the body. Only transport failures are errors.
func (c *Client) do(ctx context.Context, endpoint, contentType string, body []byte) (*http.Response, []byte, error) {
	target := c.baseURL.ResolveReference(&url.URL{Path: endpoint})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	logging.APIDebug("POST %s (%d bytes)", target, len(body))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("POST %s failed: %v", endpoint, err)
		return nil, nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("reading %s reply failed: %v", endpoint, err)
		return nil, nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if int64(len(raw)) > maxBodyBytes {
		logging.Get(logging.CategoryAPI).Error("%s reply exceeds %d bytes", endpoint, maxBodyBytes)
		return nil, nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("%w: reply exceeds %d bytes", ErrReplyTooLarge, maxBodyBytes)}
	}
	logging.API("POST %s -> %d (%d bytes, %s)", endpoint, resp.StatusCode, len(raw), time.Since(start).Round(time.Millisecond))
	return resp, raw, nil
}

func classifyStructured(endpoint string, status int, raw []byte) Reply {
	if !isSuccess(status) {
		return &Failure{Kind: FailureProtocol, Status: status, Message: errorMessage(endpoint, raw)}
	}
	var envelope struct {
		Response *ReplyBody `json:"response"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		logging.Get(logging.CategoryAPI).Warn("%s: malformed reply: %v", endpoint, err)
		return &Failure{Kind: FailureMalformed, Status: status, Message: "Malformed server response."}
	}
	if envelope.Response == nil {
		return &Failure{Kind: FailureMalformed, Status: status, Message: "Malformed server response."}
	}
	return &Structured{Status: status, Body: *envelope.Response}
}

func isAttachmentDownload(resp *http.Response) bool {
	return isSuccess(resp.StatusCode) &&
		strings.Contains(resp.Header.Get("Content-Type"), "application/xml") &&
		strings.Contains(resp.Header.Get("Content-Disposition"), "attachment")
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func multipartBody(fields map[string]string, fileName string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
