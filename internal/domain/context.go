package domain

import "time"

// RecoveryHint classifies how a failure should be handled next.
type RecoveryHint string

const (
	HintNone           RecoveryHint = ""
	HintRetry          RecoveryHint = "retry"
	HintRetryWithDelay RecoveryHint = "retry_with_delay"
	HintUserAction     RecoveryHint = "user_action"
	HintPermission     RecoveryHint = "permission"
	HintNotRecoverable RecoveryHint = "not_recoverable"
	HintCheckTarget    RecoveryHint = "check_target"
)

// Context is the optional diagnostic attachment of an outcome. It is created
// empty at outcome construction and extended by each layer that adds
// diagnostic value; entries are never removed.
type Context struct {
	RecoveryHint RecoveryHint   `json:"recovery_hint,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Duration     time.Duration  `json:"duration,omitempty"`
	StackTrace   string         `json:"stack_trace,omitempty"`
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{Metadata: make(map[string]any)}
}

// Merge produces a new context combining c with other. Fields set on other
// win on conflict; metadata is shallow-merged with other's keys winning.
// Neither input is mutated.
func (c *Context) Merge(other *Context) *Context {
	merged := c.clone()
	if other == nil {
		return merged
	}
	if other.RecoveryHint != HintNone {
		merged.RecoveryHint = other.RecoveryHint
	}
	if other.Duration != 0 {
		merged.Duration = other.Duration
	}
	if other.StackTrace != "" {
		merged.StackTrace = other.StackTrace
	}
	for k, v := range other.Metadata {
		merged.Metadata[k] = v
	}
	return merged
}

// WithMetadata returns a copy of the context with an extra metadata entry.
func (c *Context) WithMetadata(key string, value any) *Context {
	merged := c.clone()
	merged.Metadata[key] = value
	return merged
}

func (c *Context) clone() *Context {
	cloned := &Context{Metadata: make(map[string]any)}
	if c == nil {
		return cloned
	}
	cloned.RecoveryHint = c.RecoveryHint
	cloned.Duration = c.Duration
	cloned.StackTrace = c.StackTrace
	for k, v := range c.Metadata {
		cloned.Metadata[k] = v
	}
	return cloned
}
