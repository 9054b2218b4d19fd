// Package llmgateway is the single call interface over the configured LLM
// backend, consumed by the script pipeline and the animation agent. It
// hides model selection, schema enforcement, retries, and cost accounting.
package llmgateway

import "errors"

// ResponseFormat selects whether the gateway expects prose or JSON back.
type ResponseFormat string

const (
	ResponseText ResponseFormat = "text"
	ResponseJSON ResponseFormat = "json"
)

// GatewayErrorReason classifies a terminal GatewayError.
type GatewayErrorReason string

const (
	ReasonInvalidJSON     GatewayErrorReason = "invalid_json"
	ReasonSchemaRejected  GatewayErrorReason = "schema_rejected"
	ReasonTimeout         GatewayErrorReason = "timeout"
	ReasonEmpty           GatewayErrorReason = "empty"
)

// GatewayError is returned when the retry loop is exhausted without a
// usable response.
type GatewayError struct {
	Reason GatewayErrorReason
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return string(e.Reason) + ": " + e.Err.Error()
	}
	return string(e.Reason)
}

func (e *GatewayError) Unwrap() error { return e.Err }

var ErrNoModelAvailable = errors.New("llmgateway: no model available for this request")

// Config enumerates the per-call knobs.
type Config struct {
	Temperature      float64
	Timeout          float64 // seconds; 0 means use the gateway default
	MaxOutputTokens  int
	EnableThinking   bool
	ResponseFormat   ResponseFormat
	ResponseSchema   map[string]any // JSON-schema, only meaningful with ResponseJSON
	MaxRetries       int
	RequireJSONValid bool
}

// InlinePart is a binary attachment (PDF bytes, image bytes) with its MIME
// type, carried alongside prompt text.
type InlinePart struct {
	MIMEType string
	Data     []byte
}

// ToolDeclaration is a single function the model may call.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON-schema for the function's arguments
}

// FunctionCall is one call the model asked the host to perform.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// FunctionResponse is the host's answer to a FunctionCall, fed back into
// the running contents history.
type FunctionResponse struct {
	Name     string
	Response map[string]any
}

// Opts carries the optional, less-frequently-set parts of a call.
type Opts struct {
	SystemPrompt string
	InlineParts  []InlinePart
	Tools        []ToolDeclaration
	// ToolResponses carries host answers to prior FunctionCalls. Neither
	// Generate nor RunToolLoop reads it: RunToolLoop keeps its own history
	// of function responses, and Generate always starts a fresh turn.
	ToolResponses []FunctionResponse
	// Model optionally forces a specific model id instead of the
	// gateway's tiered default selection.
	Model string
}

// Usage is the token accounting for one resolved call (after all
// retries), used to append a Cost Record.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// Result is the gateway's uniform return value.
type Result struct {
	Success       bool
	Response      string
	ParsedJSON    map[string]any
	FunctionCalls []FunctionCall
	Error         error
	ErrorReason   GatewayErrorReason
	Usage         *Usage
}
