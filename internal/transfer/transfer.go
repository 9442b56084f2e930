// Package transfer normalizes delivered artifacts into a single save action.
//
// An artifact reaches the client either as an inline payload inside a
// structured reply (raw text or base64) or as an already-binary response body
// whose name travels in a Content-Disposition header. Both shapes end in the
// same SaveAction, and a filename is always produced.
package transfer

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"rungchat/internal/logging"

	"github.com/bwmarrin/snowflake"
)

// DefaultMIMEType is used when the server declares none.
const DefaultMIMEType = "application/octet-stream"

// ErrUnsupportedEncoding is returned for an encoding tag the resolver does not know.
var ErrUnsupportedEncoding = errors.New("unsupported payload encoding")

// Payload is the content of an artifact: Raw or Encoded.
type Payload interface {
	isPayload()
}

// Raw is content that is already bytes.
type Raw struct {
	Data []byte
}

// Encoded is inline text content tagged with an encoding scheme.
type Encoded struct {
	Text   string
	Scheme string
}

func (Raw) isPayload()     {}
func (Encoded) isPayload() {}

// Artifact is a deliverable file before normalization.
type Artifact struct {
	Payload  Payload
	Filename string
	MIMEType string
}

// SaveAction is the terminal "offer file to user" action.
type SaveAction struct {
	Data     []byte
	Filename string
	MIMEType string
}

// Decode returns the logical bytes of a payload.
func Decode(p Payload) ([]byte, error) {
	switch v := p.(type) {
	case Raw:
		return v.Data, nil
	case Encoded:
		switch strings.ToLower(strings.TrimSpace(v.Scheme)) {
		case "base64":
			data, err := base64.StdEncoding.DecodeString(v.Text)
			if err != nil {
				// Some servers drop the padding.
				data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(v.Text, "="))
			}
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
			}
			return data, nil
		case "", "utf-8", "utf8", "text", "raw":
			return []byte(v.Text), nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, v.Scheme)
		}
	case nil:
		return nil, errors.New("artifact has no payload")
	default:
		return nil, fmt.Errorf("unknown payload type %T", p)
	}
}

// Resolve turns an artifact into a save action. The MIME type passes through
// unchanged and a missing filename is replaced by a generated one.
func Resolve(a Artifact) (SaveAction, error) {
	data, err := Decode(a.Payload)
	if err != nil {
		return SaveAction{}, err
	}
	name := a.Filename
	if strings.TrimSpace(name) == "" {
		name = FallbackFilename()
		logging.TransferDebug("no filename supplied, using %s", name)
	}
	mimeType := a.MIMEType
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return SaveAction{Data: data, Filename: name, MIMEType: mimeType}, nil
}

// FromBody builds a save action from an already-binary response body, taking
// the filename from the Content-Disposition header when it carries one.
func FromBody(body []byte, contentDisposition, contentType string) SaveAction {
	name, ok := FilenameFromDisposition(contentDisposition)
	if !ok {
		name = FallbackFilename()
		logging.TransferDebug("disposition %q carries no filename, using %s", contentDisposition, name)
	}
	if contentType == "" {
		contentType = DefaultMIMEType
	}
	return SaveAction{Data: body, Filename: name, MIMEType: contentType}
}

var dispositionFilename = regexp.MustCompile(`filename[^;=\n]*=(?:"([^"]*)"|'([^']*)'|([^;\n]*))`)

// FilenameFromDisposition extracts the filename from a Content-Disposition
// header value. Quotes are stripped and the name is URL-decoded.
func FilenameFromDisposition(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := stripQuotes(params["filename"]); name != "" {
			return unescape(name), true
		}
	}

	m := dispositionFilename.FindStringSubmatch(header)
	if m == nil {
		return "", false
	}
	var name string
	for _, g := range m[1:] {
		if g != "" {
			name = g
			break
		}
	}
	// RFC 5987 form: filename*=UTF-8''name
	if i := strings.Index(name, "''"); i >= 0 {
		name = name[i+2:]
	}
	name = stripQuotes(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	return unescape(name), true
}

var quoteStripper = strings.NewReplacer(`"`, "", "'", "")

func stripQuotes(s string) string {
	return quoteStripper.Replace(s)
}

func unescape(name string) string {
	if s, err := url.PathUnescape(name); err == nil {
		return s
	}
	return name
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
	nodeErr  error
)

// FallbackFilename returns a collision-resistant generated name.
func FallbackFilename() string {
	nodeOnce.Do(func() {
		node, nodeErr = snowflake.NewNode(1)
	})
	if nodeErr != nil {
		return "generated_file.L5X"
	}
	return fmt.Sprintf("generated_file_%s.L5X", node.Generate().String())
}
