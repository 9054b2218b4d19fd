package llmgateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"google.golang.org/api/option"
)

// GenaiProvider is the Provider backed by Google's genai SDK for
// schema-enforced / vision calls, with a langchaingo tier that serves
// JSON-format calls carrying no schema; plain-text calls go to genai.
type GenaiProvider struct {
	genaiClient  *genai.Client
	textFallback llms.Model
	primaryModel string
	fallbackModel string
}

// NewGenaiProvider wires a genai.Client for the primary (schema-capable)
// tier and a langchaingo googleai.Model for the schema-less JSON tier,
// optionally rewriting requests to a custom endpoint.
func NewGenaiProvider(ctx context.Context, apiKey, primaryModel, fallbackModel, apiEndpoint string) (*GenaiProvider, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if apiEndpoint != "" {
		if httpClient := httpClientForEndpoint(apiEndpoint); httpClient != nil {
			opts = append(opts, option.WithHTTPClient(httpClient))
		}
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("llmgateway: create genai client: %w", err)
	}

	var textFallback llms.Model
	langOpts := []googleai.Option{googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(fallbackModel)}
	if apiEndpoint != "" {
		if httpClient := httpClientForEndpoint(apiEndpoint); httpClient != nil {
			langOpts = append(langOpts, googleai.WithHTTPClient(httpClient))
		}
	}
	textFallback, err = googleai.New(ctx, langOpts...)
	if err != nil {
		log.Warn().Err(err).Msg("llmgateway: text fallback model unavailable, schema-less calls will use genai directly")
		textFallback = nil
	}

	return &GenaiProvider{
		genaiClient:   client,
		textFallback:  textFallback,
		primaryModel:  primaryModel,
		fallbackModel: fallbackModel,
	}, nil
}

// Call implements Provider.
func (p *GenaiProvider) Call(ctx context.Context, req ProviderRequest) (ProviderResponse, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = p.primaryModel
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if req.ResponseFormat != ResponseJSON || req.ResponseSchema != nil {
		return p.callGenai(ctx, modelName, req)
	}
	if p.textFallback != nil {
		return p.callLangchain(ctx, req)
	}
	return p.callGenai(ctx, modelName, req)
}

func (p *GenaiProvider) callGenai(ctx context.Context, modelName string, req ProviderRequest) (ProviderResponse, error) {
	model := p.genaiClient.GenerativeModel(modelName)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxOutputTokens))
	}
	if req.SystemPrompt != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemPrompt))
	}
	if req.ResponseFormat == ResponseJSON {
		model.ResponseMIMEType = "application/json"
		if req.ResponseSchema != nil {
			if schema, err := toGenaiSchema(req.ResponseSchema); err == nil {
				model.ResponseSchema = schema
			}
		}
	}
	for _, tool := range req.Tools {
		model.Tools = append(model.Tools, toGenaiTool(tool))
	}

	parts := buildParts(req)
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		if isSchemaIncompatibility(err) {
			return ProviderResponse{SchemaRejected: true, ResolvedModel: modelName}, nil
		}
		return ProviderResponse{}, err
	}

	out := ProviderResponse{ResolvedModel: modelName}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			out.FunctionCalls = append(out.FunctionCalls, FunctionCall{Name: v.Name, Args: v.Args})
		}
	}
	out.Text = text.String()
	return out, nil
}

func (p *GenaiProvider) callLangchain(ctx context.Context, req ProviderRequest) (ProviderResponse, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxOutputTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxOutputTokens))
	}
	text, err := llms.GenerateFromSinglePrompt(ctx, p.textFallback, req.Prompt, callOpts...)
	if err != nil {
		return ProviderResponse{}, err
	}
	return ProviderResponse{Text: text, ResolvedModel: p.fallbackModel}, nil
}

func buildParts(req ProviderRequest) []genai.Part {
	var parts []genai.Part
	if req.Prompt != "" {
		parts = append(parts, genai.Text(req.Prompt))
	}
	for _, inline := range req.InlineParts {
		parts = append(parts, genai.Blob{MIMEType: inline.MIMEType, Data: inline.Data})
	}
	for _, turn := range req.History {
		if turn.FunctionResp != nil {
			parts = append(parts, genai.FunctionResponse{Name: turn.FunctionResp.Name, Response: turn.FunctionResp.Response})
		}
	}
	return parts
}

func toGenaiTool(decl ToolDeclaration) *genai.Tool {
	schema, _ := toGenaiSchema(decl.Parameters)
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{Name: decl.Name, Description: decl.Description, Parameters: schema},
		},
	}
}

// toGenaiSchema converts the gateway's untyped JSON-schema map into
// genai.Schema. Only the object/array/string/integer/number/boolean subset
// used by the script pipeline and animation agent schemas is supported.
func toGenaiSchema(m map[string]any) (*genai.Schema, error) {
	if m == nil {
		return nil, fmt.Errorf("nil schema")
	}
	s := &genai.Schema{}
	switch t, _ := m["type"].(string); t {
	case "object":
		s.Type = genai.TypeObject
		props := map[string]*genai.Schema{}
		if raw, ok := m["properties"].(map[string]any); ok {
			for k, v := range raw {
				if sub, ok := v.(map[string]any); ok {
					if child, err := toGenaiSchema(sub); err == nil {
						props[k] = child
					}
				}
			}
		}
		s.Properties = props
		if req, ok := m["required"].([]any); ok {
			for _, r := range req {
				if name, ok := r.(string); ok {
					s.Required = append(s.Required, name)
				}
			}
		}
	case "array":
		s.Type = genai.TypeArray
		if sub, ok := m["items"].(map[string]any); ok {
			if child, err := toGenaiSchema(sub); err == nil {
				s.Items = child
			}
		}
	case "string":
		s.Type = genai.TypeString
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		s.Type = genai.TypeString
	}
	if desc, ok := m["description"].(string); ok {
		s.Description = desc
	}
	return s, nil
}

// isSchemaIncompatibility reports whether err carries a recognizable
// provider-side "this model does not support response_schema" signature.
func isSchemaIncompatibility(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "response_schema") && (strings.Contains(msg, "not support") || strings.Contains(msg, "unsupported") || strings.Contains(msg, "invalid"))
}

// httpClientForEndpoint returns an http.Client that rewrites request URLs
// to the given base endpoint (e.g. a local proxy), mirroring the provider
// indirection the teacher used for its self-hosted gateway.
func httpClientForEndpoint(baseEndpoint string) *http.Client {
	base, err := url.Parse(baseEndpoint)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", baseEndpoint).Msg("llmgateway: invalid API endpoint override, using default")
		return nil
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	return &http.Client{Transport: &endpointRoundTripper{base: base, next: http.DefaultTransport}}
}

type endpointRoundTripper struct {
	base *url.URL
	next http.RoundTripper
}

func (e *endpointRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.URL.Scheme = e.base.Scheme
	req2.URL.Host = e.base.Host
	req2.URL.Path = path.Join(e.base.Path, strings.TrimPrefix(req.URL.Path, "/"))
	if req.URL.RawQuery != "" {
		req2.URL.RawQuery = req.URL.RawQuery
	}
	return e.next.RoundTrip(req2)
}
