package confirm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IntentionPrompt is shown above intention options when the reply has no text.
const IntentionPrompt = "Did you mean to:"

type rawData struct {
	Type             string          `json:"type"`
	Prompt           string          `json:"prompt"`
	Options          json.RawMessage `json:"options"`
	UDTName          string          `json:"udt_name"`
	UDTDefinition    json.RawMessage `json:"udt_definition"`
	OriginalFilename string          `json:"original_filename"`
}

type rawOption struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Parse reads the confirmation_data field of a structured reply.
//
// A JSON array of strings, or an object tagged "intention", yields intention
// options. An object tagged "udt_attachment" yields attachment actions, but
// only when requiresConfirmation is set; otherwise the reply is plain text.
// Null or absent data yields (nil, nil) unless requiresConfirmation is set,
// in which case the reply promised options it did not carry. Everything
// else is ErrMalformed.
func Parse(requiresConfirmation bool, raw json.RawMessage) (*Spec, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		if requiresConfirmation {
			return nil, fmt.Errorf("%w: confirmation required but no data", ErrMalformed)
		}
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		opts, err := parseIntentionOptions(trimmed)
		if err != nil {
			return nil, err
		}
		return &Spec{Kind: KindIntention, Prompt: IntentionPrompt, Options: opts}, nil
	case '{':
	default:
		return nil, fmt.Errorf("%w: unexpected JSON value", ErrMalformed)
	}

	var d rawData
	if err := json.Unmarshal(trimmed, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch d.Type {
	case "intention":
		opts, err := parseIntentionOptions(d.Options)
		if err != nil {
			return nil, err
		}
		prompt := d.Prompt
		if prompt == "" {
			prompt = IntentionPrompt
		}
		return &Spec{Kind: KindIntention, Prompt: prompt, Options: opts}, nil

	case "udt_attachment":
		if !requiresConfirmation {
			return nil, nil
		}
		var ropts []rawOption
		if len(d.Options) == 0 {
			return nil, fmt.Errorf("%w: attachment confirmation without options", ErrMalformed)
		}
		if err := json.Unmarshal(d.Options, &ropts); err != nil {
			return nil, fmt.Errorf("%w: attachment options: %v", ErrMalformed, err)
		}
		if len(ropts) == 0 {
			return nil, fmt.Errorf("%w: attachment confirmation without options", ErrMalformed)
		}
		opts := make([]Option, 0, len(ropts))
		for i, o := range ropts {
			if o.Action == "" {
				return nil, fmt.Errorf("%w: attachment option %d has no action", ErrMalformed, i)
			}
			label := o.Label
			if label == "" {
				label = o.Action
			}
			opts = append(opts, Option{Label: label, Action: o.Action})
		}
		return &Spec{
			Kind:    KindAttachment,
			Prompt:  d.Prompt,
			Options: opts,
			Context: Context{
				UDTName:          d.UDTName,
				UDTDefinition:    d.UDTDefinition,
				OriginalFilename: d.OriginalFilename,
			},
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, d.Type)
	}
}

// parseIntentionOptions accepts a list of strings or of {label, action} objects.
func parseIntentionOptions(raw json.RawMessage) ([]Option, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: intention confirmation without options", ErrMalformed)
	}

	var labels []string
	if err := json.Unmarshal(raw, &labels); err == nil {
		if len(labels) == 0 {
			return nil, fmt.Errorf("%w: empty option list", ErrMalformed)
		}
		opts := make([]Option, 0, len(labels))
		for _, l := range labels {
			if l == "" {
				return nil, fmt.Errorf("%w: empty option", ErrMalformed)
			}
			opts = append(opts, Option{Label: l, Action: l})
		}
		return opts, nil
	}

	var ropts []rawOption
	if err := json.Unmarshal(raw, &ropts); err != nil {
		return nil, fmt.Errorf("%w: options: %v", ErrMalformed, err)
	}
	if len(ropts) == 0 {
		return nil, fmt.Errorf("%w: empty option list", ErrMalformed)
	}
	opts := make([]Option, 0, len(ropts))
	for i, o := range ropts {
		action := o.Action
		if action == "" {
			action = o.Label
		}
		if action == "" {
			return nil, fmt.Errorf("%w: option %d is empty", ErrMalformed, i)
		}
		label := o.Label
		if label == "" {
			label = action
		}
		opts = append(opts, Option{Label: label, Action: action})
	}
	return opts, nil
}
