// Package confirm implements the confirmation sub-protocol: a bounded set of
// options presented to the user, of which exactly one may be chosen.
//
// A Confirmation moves Presented -> Resolved on the first activation, or
// Presented -> Superseded when the conversation moves on without a choice.
// Both end states are terminal; activations after that are no-ops and never
// reach the resolver.
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"rungchat/internal/logging"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyResolved is returned when an option of a resolved confirmation is activated.
	ErrAlreadyResolved = errors.New("confirmation already resolved")
	// ErrSuperseded is returned when an expired confirmation is activated.
	ErrSuperseded = errors.New("confirmation superseded by a newer message")
	// ErrUnknownOption is returned for an out-of-range option index.
	ErrUnknownOption = errors.New("unknown confirmation option")
	// ErrMalformed is returned by Parse for confirmation data it cannot use.
	ErrMalformed = errors.New("malformed confirmation data")
)

// Kind selects which resolver an option activation is routed to.
type Kind string

const (
	KindIntention  Kind = "intention"
	KindAttachment Kind = "attachment"
)

// State of a confirmation.
type State int

const (
	Presented State = iota
	Resolved
	Superseded
)

func (s State) String() string {
	switch s {
	case Presented:
		return "presented"
	case Resolved:
		return "resolved"
	case Superseded:
		return "superseded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option is one choice. Label is shown to the user, Action is sent to the server.
type Option struct {
	Label  string
	Action string
}

// Context carries what a resolver needs besides the chosen option.
type Context struct {
	OriginalQuestion string          // intention
	UDTName          string          // attachment
	UDTDefinition    json.RawMessage // attachment, forwarded verbatim
	OriginalFilename string          // attachment
}

// Spec describes a confirmation before it is presented.
type Spec struct {
	Kind    Kind
	Prompt  string
	Options []Option
	Context Context
}

// ResolveFunc is invoked with the chosen option on the first activation.
type ResolveFunc func(ctx context.Context, opt Option) error

// Confirmation is a presented set of options awaiting a single choice.
type Confirmation struct {
	ID      string
	Kind    Kind
	Prompt  string
	Options []Option
	Context Context

	resolve ResolveFunc

	mu     sync.Mutex
	state  State
	chosen int
}

// New creates a presented confirmation from spec.
func New(spec Spec, resolve ResolveFunc) *Confirmation {
	return &Confirmation{
		ID:      uuid.NewString(),
		Kind:    spec.Kind,
		Prompt:  spec.Prompt,
		Options: append([]Option(nil), spec.Options...),
		Context: spec.Context,
		resolve: resolve,
		chosen:  -1,
	}
}

// State returns the current state.
func (c *Confirmation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Disabled reports whether options can no longer be activated.
func (c *Confirmation) Disabled() bool {
	return c.State() != Presented
}

// Chosen returns the activated option index, or -1.
func (c *Confirmation) Chosen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chosen
}

// Labels returns the option labels in order.
func (c *Confirmation) Labels() []string {
	labels := make([]string, len(c.Options))
	for i, o := range c.Options {
		labels[i] = o.Label
	}
	return labels
}

// Activate chooses option index. Only the first activation reaches the
// resolver; the state is Resolved from that moment on even if the resolver
// then fails.
func (c *Confirmation) Activate(ctx context.Context, index int) error {
	c.mu.Lock()
	switch c.state {
	case Resolved:
		c.mu.Unlock()
		return ErrAlreadyResolved
	case Superseded:
		c.mu.Unlock()
		return ErrSuperseded
	}
	if index < 0 || index >= len(c.Options) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrUnknownOption, index, len(c.Options))
	}
	c.state = Resolved
	c.chosen = index
	c.mu.Unlock()

	opt := c.Options[index]
	logging.Confirm("confirmation %s (%s) resolved with %q", c.ID, c.Kind, opt.Action)
	if c.resolve == nil {
		return nil
	}
	return c.resolve(ctx, opt)
}

// Supersede expires a presented confirmation. It reports whether the state changed.
func (c *Confirmation) Supersede() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Presented {
		return false
	}
	c.state = Superseded
	return true
}
