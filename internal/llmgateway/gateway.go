package llmgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MaxIterations bounds the function-calling loop independently of
// MaxRetries (§4.3).
const MaxIterations = 8

// ProviderRequest is what the Gateway asks a Provider to execute for one
// attempt. It has already had retry-driven temperature escalation and
// schema-compatibility fallback applied.
type ProviderRequest struct {
	Prompt         string
	SystemPrompt   string
	InlineParts    []InlinePart
	Temperature    float64
	MaxOutputTokens int
	Timeout        time.Duration
	ResponseFormat ResponseFormat
	ResponseSchema map[string]any
	Tools          []ToolDeclaration
	History        []HistoryTurn
	Model          string
}

// HistoryTurn is one prior turn of a function-calling session: either a
// model turn (with optional function call) or a function response turn.
type HistoryTurn struct {
	Role         string // "model" or "function"
	Text         string
	FunctionCall *FunctionCall
	FunctionResp *FunctionResponse
}

// ProviderResponse is what a Provider attempt returns before gateway-level
// interpretation.
type ProviderResponse struct {
	Text          string
	FunctionCalls []FunctionCall
	InputTokens   int
	OutputTokens  int
	ResolvedModel string
	// SchemaRejected signals a recognizable schema-incompatibility
	// response from the provider so the gateway can retry once without a
	// schema.
	SchemaRejected bool
}

// Provider executes a single attempt against a real backend. Implementations
// own model-tier selection; the gateway only ever asks for "a call", never
// which underlying model handles it (unless ProviderRequest.Model is set).
type Provider interface {
	Call(ctx context.Context, req ProviderRequest) (ProviderResponse, error)
}

// CostSink is the shared, append-only Cost Record store.
type CostSink interface {
	Record(ctx context.Context, jobID, model string, inputTokens, outputTokens int, dollars float64) error
}

// PriceTable maps a resolved model id to its per-token dollar rates.
type PriceTable interface {
	Price(model string, inputTokens, outputTokens int) float64
}

// SchemaCompatStore durably persists which models are known to reject a
// JSON response_schema, so the fact survives a worker restart (the
// Gateway's own map in schemaRejects is best-effort and per-process, §4.3).
type SchemaCompatStore interface {
	IsRejected(ctx context.Context, model string) (bool, error)
	MarkRejected(ctx context.Context, model string) error
}

// Gateway is the uniform call interface consumed by the script pipeline
// and the animation agent.
type Gateway struct {
	provider Provider
	costs    CostSink
	prices   PriceTable
	compat   SchemaCompatStore

	mu            sync.Mutex
	schemaRejects map[string]bool // model -> known schema-incompatible
}

// New builds a Gateway over provider, recording costs through costs using
// prices to convert token counts to dollars.
func New(provider Provider, costs CostSink, prices PriceTable) *Gateway {
	return &Gateway{
		provider:      provider,
		costs:         costs,
		prices:        prices,
		schemaRejects: make(map[string]bool),
	}
}

// WithSchemaCompatStore attaches a durable backing store so schema
// rejections recorded by one worker process are visible to the next. It
// returns g for chained construction at startup.
func (g *Gateway) WithSchemaCompatStore(store SchemaCompatStore) *Gateway {
	g.compat = store
	return g
}

// Generate is the gateway's single entry point (§4.3).
func (g *Gateway) Generate(ctx context.Context, jobID, prompt string, cfg Config, opts Opts) *Result {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	schemaKnownBad := false
	if opts.Model != "" {
		g.mu.Lock()
		schemaKnownBad = g.schemaRejects[opts.Model]
		g.mu.Unlock()
		if !schemaKnownBad && g.compat != nil {
			if rejected, err := g.compat.IsRejected(ctx, opts.Model); err == nil && rejected {
				schemaKnownBad = true
				g.mu.Lock()
				g.schemaRejects[opts.Model] = true
				g.mu.Unlock()
			}
		}
	}

	var lastErr error
	var lastReason GatewayErrorReason

	for attempt := 0; attempt < maxRetries; attempt++ {
		temp := cfg.Temperature + float64(attempt)*0.15

		useSchema := cfg.ResponseFormat == ResponseJSON && cfg.ResponseSchema != nil && !schemaKnownBad
		req := ProviderRequest{
			Prompt:          prompt,
			SystemPrompt:    opts.SystemPrompt,
			InlineParts:     opts.InlineParts,
			Temperature:     temp,
			MaxOutputTokens: cfg.MaxOutputTokens,
			Timeout:         timeoutOrDefault(cfg.Timeout),
			ResponseFormat:  cfg.ResponseFormat,
			Model:           opts.Model,
		}
		if useSchema {
			req.ResponseSchema = cfg.ResponseSchema
		}
		if len(opts.Tools) > 0 {
			req.Tools = opts.Tools
		}

		resp, err := g.provider.Call(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return &Result{Success: false, Error: ctx.Err(), ErrorReason: ReasonTimeout}
			}
			lastErr = err
			lastReason = ReasonEmpty
			log.Warn().Err(err).Int("attempt", attempt).Msg("llmgateway: provider call failed, retrying")
			continue
		}

		if resp.SchemaRejected && useSchema {
			g.mu.Lock()
			g.schemaRejects[resp.ResolvedModel] = true
			g.mu.Unlock()
			if g.compat != nil {
				if err := g.compat.MarkRejected(ctx, resp.ResolvedModel); err != nil {
					log.Warn().Err(err).Msg("llmgateway: persist schema rejection failed")
				}
			}
			schemaKnownBad = true
			// Reissue once without the schema, same attempt budget.
			req.ResponseSchema = nil
			resp, err = g.provider.Call(ctx, req)
			if err != nil {
				lastErr = err
				lastReason = ReasonSchemaRejected
				continue
			}
		}

		g.recordUsage(ctx, jobID, resp)

		if strings.TrimSpace(resp.Text) == "" && len(resp.FunctionCalls) == 0 {
			lastErr = fmt.Errorf("empty response")
			lastReason = ReasonEmpty
			continue
		}

		if len(opts.Tools) > 0 && len(resp.FunctionCalls) > 0 {
			return &Result{Success: true, Response: resp.Text, FunctionCalls: resp.FunctionCalls, Usage: usageOf(resp)}
		}

		if cfg.ResponseFormat != ResponseJSON {
			return &Result{Success: true, Response: resp.Text, Usage: usageOf(resp)}
		}

		parsed, perr := parseJSONResponse(resp.Text)
		if perr != nil {
			lastErr = perr
			lastReason = ReasonInvalidJSON
			if attempt == maxRetries-1 && cfg.RequireJSONValid {
				return &Result{Success: false, Response: resp.Text, Error: perr, ErrorReason: ReasonInvalidJSON, Usage: usageOf(resp)}
			}
			continue
		}
		if cfg.ResponseSchema != nil {
			if verr := validateAgainstSchema(parsed, cfg.ResponseSchema); verr != nil {
				lastErr = verr
				lastReason = ReasonInvalidJSON
				continue
			}
		}
		return &Result{Success: true, Response: resp.Text, ParsedJSON: parsed, Usage: usageOf(resp)}
	}

	if lastReason == "" {
		lastReason = ReasonEmpty
	}
	return &Result{Success: false, Error: &GatewayError{Reason: lastReason, Err: lastErr}, ErrorReason: lastReason}
}

func (g *Gateway) recordUsage(ctx context.Context, jobID string, resp ProviderResponse) {
	if g.costs == nil {
		return
	}
	dollars := 0.0
	if g.prices != nil {
		dollars = g.prices.Price(resp.ResolvedModel, resp.InputTokens, resp.OutputTokens)
	}
	if err := g.costs.Record(ctx, jobID, resp.ResolvedModel, resp.InputTokens, resp.OutputTokens, dollars); err != nil {
		log.Warn().Err(err).Msg("llmgateway: cost record append failed")
	}
}

func usageOf(resp ProviderResponse) *Usage {
	return &Usage{Model: resp.ResolvedModel, InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}
}

func timeoutOrDefault(seconds float64) time.Duration {
	if seconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(seconds * float64(time.Second))
}

func parseJSONResponse(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty JSON response")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return out, nil
}
