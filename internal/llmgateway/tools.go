package llmgateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ToolHandler executes one function call's body on the host side and
// returns the structured response handed back to the model.
type ToolHandler func(ctx context.Context, args map[string]any) (map[string]any, error)

// RunToolLoop drives the multi-turn function-calling session described in
// §4.3: after each model turn, either the model returned plain text
// (success, loop ends) or it asked to call a function, which is dispatched
// through handlers (keyed by name, per §9's static dispatch table) and fed
// back into history for the next turn. The loop has its own iteration cap,
// independent of Config.MaxRetries.
func (g *Gateway) RunToolLoop(ctx context.Context, jobID, prompt string, cfg Config, opts Opts, handlers map[string]ToolHandler) *Result {
	history := make([]HistoryTurn, 0, 4)
	currentPrompt := prompt

	for iter := 0; iter < MaxIterations; iter++ {
		turnOpts := opts
		result := g.generateWithHistory(ctx, jobID, currentPrompt, cfg, turnOpts, history)
		if !result.Success {
			return result
		}
		if len(result.FunctionCalls) == 0 {
			return result
		}

		for _, call := range result.FunctionCalls {
			handler, ok := handlers[call.Name]
			if !ok {
				log.Warn().Str("tool", call.Name).Msg("llmgateway: no handler registered for requested tool")
				return &Result{Success: false, Error: fmt.Errorf("no handler for tool %q", call.Name), ErrorReason: ReasonEmpty}
			}
			resp, err := handler(ctx, call.Args)
			if err != nil {
				resp = map[string]any{"error": err.Error()}
			}
			history = append(history,
				HistoryTurn{Role: "model", FunctionCall: &call},
				HistoryTurn{Role: "function", FunctionResp: &FunctionResponse{Name: call.Name, Response: resp}},
			)
		}
		// The provider keeps no session between calls, so the next request
		// re-sends the original prompt together with the accumulated history.
	}

	return &Result{Success: false, Error: fmt.Errorf("tool loop exceeded %d iterations", MaxIterations), ErrorReason: ReasonEmpty}
}

// generateWithHistory is Generate's single-attempt logic extended with a
// running function-call history; used only by RunToolLoop.
func (g *Gateway) generateWithHistory(ctx context.Context, jobID, prompt string, cfg Config, opts Opts, history []HistoryTurn) *Result {
	req := ProviderRequest{
		Prompt:          prompt,
		SystemPrompt:    opts.SystemPrompt,
		InlineParts:     opts.InlineParts,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Timeout:         timeoutOrDefault(cfg.Timeout),
		ResponseFormat:  cfg.ResponseFormat,
		Tools:           opts.Tools,
		History:         history,
		Model:           opts.Model,
	}
	resp, err := g.provider.Call(ctx, req)
	if err != nil {
		return &Result{Success: false, Error: err, ErrorReason: ReasonEmpty}
	}
	g.recordUsage(ctx, jobID, resp)
	return &Result{Success: true, Response: resp.Text, FunctionCalls: resp.FunctionCalls, Usage: usageOf(resp)}
}
