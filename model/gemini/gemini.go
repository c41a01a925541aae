// Package gemini provides a model wrapper for Google Gemini using the
// google.golang.org/genai SDK.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/model"
)

// Options configures the Gemini model adapter.
type Options struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int32
	APIKey          string
}

// Model wraps the Gemini GenerateContent API behind the generic model.Model interface.
type Model struct {
	client *genai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:           "gemini-2.0-flash",
		Temperature:     0.7,
		MaxOutputTokens: 4096,
	}
}

// NewModel creates a new Gemini model. Without an explicit APIKey the SDK
// falls back to its own environment lookup.
func NewModel(optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient creates a new Gemini model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: client, opts: opts}
}

// Generate implements model.Model. Streaming requests forward text deltas as
// partial responses before the aggregated final response.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		contents := buildContents(req.Contents)
		config := m.buildConfig(req)

		if !req.Stream {
			resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, contents, config)
			if err != nil {
				errCh <- fmt.Errorf("gemini api error: %w", err)
				return
			}

			final, err := toResponse(resp)
			if err != nil {
				errCh <- err
				return
			}

			out <- final

			return
		}

		agg := &streamAggregator{}

		for chunk, err := range m.client.Models.GenerateContentStream(ctx, m.opts.Model, contents, config) {
			if err != nil {
				errCh <- fmt.Errorf("gemini streaming error: %w", err)
				return
			}

			if delta := agg.add(chunk); delta != "" {
				out <- model.Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, delta),
				}
			}
		}

		out <- agg.final()
	}()

	return out, errCh
}

// streamAggregator folds streamed chunks into one final response.
type streamAggregator struct {
	text         strings.Builder
	calls        []core.FunctionCall
	finishReason string
	usage        *model.TokenUsage
}

func (a *streamAggregator) add(chunk *genai.GenerateContentResponse) string {
	if chunk == nil {
		return ""
	}

	if u := toUsage(chunk.UsageMetadata); u != nil {
		a.usage = u
	}

	if len(chunk.Candidates) == 0 {
		return ""
	}

	candidate := chunk.Candidates[0]
	if candidate.FinishReason != "" {
		a.finishReason = mapFinishReason(candidate.FinishReason)
	}

	if candidate.Content == nil {
		return ""
	}

	var delta strings.Builder

	for _, part := range candidate.Content.Parts {
		if part.Text != "" && !part.Thought {
			delta.WriteString(part.Text)
		}

		if part.FunctionCall != nil {
			a.calls = append(a.calls, toFunctionCall(part.FunctionCall, len(a.calls)))
		}
	}

	a.text.WriteString(delta.String())

	return delta.String()
}

func (a *streamAggregator) final() model.Response {
	var parts []core.Part
	if a.text.Len() > 0 {
		parts = append(parts, core.TextPart{Text: a.text.String()})
	}

	for _, fc := range a.calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}

	finishReason := a.finishReason
	if finishReason == "" {
		finishReason = "stop"
	}

	return model.Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finishReason,
		Usage:        a.usage,
	}
}

// buildContents converts contents to Gemini format. Gemini only knows the
// "user" and "model" roles; tool results travel in a user turn.
func buildContents(contents []core.Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(contents))

	for _, c := range contents {
		var parts []*genai.Part

		for _, p := range c.Parts {
			switch part := p.(type) {
			case core.TextPart:
				if part.Text != "" {
					parts = append(parts, &genai.Part{Text: part.Text})
				}
			case core.FunctionCallPart:
				args := map[string]any{}
				if part.FunctionCall.Arguments != "" {
					_ = json.Unmarshal([]byte(part.FunctionCall.Arguments), &args)
				}

				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: args,
				}})
			case core.FunctionResponsePart:
				fr := part.FunctionResponse

				response := map[string]any{"result": fr.Response}
				if fr.Error != "" {
					response = map[string]any{"error": fr.Error}
				}

				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       fr.ID,
					Name:     fr.Name,
					Response: response,
				}})
			}
		}

		if len(parts) == 0 {
			continue
		}

		role := "user"
		if c.Role == core.RoleAssistant {
			role = "model"
		}

		out = append(out, &genai.Content{Role: role, Parts: parts})
	}

	return out
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(m.opts.Temperature)),
		MaxOutputTokens: m.opts.MaxOutputTokens,
	}

	var system []string
	if req.Instructions != "" {
		system = append(system, req.Instructions)
	}

	for _, c := range req.Contents {
		if c.Role == core.RoleSystem {
			system = append(system, c.Text())
		}
	}

	if len(system) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
			Role:  "user",
		}
	}

	if req.JSONMode && len(req.Tools) == 0 {
		config.ResponseMIMEType = "application/json"
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  toSchema(t.Function.Parameters),
			})
		}

		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return config
}

// toSchema converts a JSON schema map into a genai.Schema.
func toSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	s := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}

	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toSchema(propMap)
			}
		}
	}

	switch required := schema["required"].(type) {
	case []string:
		s.Required = append(s.Required, required...)
	case []any:
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}

	if enum, ok := schema["enum"].([]any); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}

	return s
}

func toResponse(resp *genai.GenerateContentResponse) (model.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return model.Response{}, fmt.Errorf("empty response from gemini")
	}

	candidate := resp.Candidates[0]

	var parts []core.Part

	if candidate.Content != nil {
		calls := 0

		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				parts = append(parts, core.TextPart{Text: part.Text})
			}

			if part.FunctionCall != nil {
				parts = append(parts, core.FunctionCallPart{FunctionCall: toFunctionCall(part.FunctionCall, calls)})
				calls++
			}
		}
	}

	return model.Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: mapFinishReason(candidate.FinishReason),
		Usage:        toUsage(resp.UsageMetadata),
	}, nil
}

// toFunctionCall converts a Gemini function call. Gemini may omit call ids;
// a positional id keeps responses matched to their calls.
func toFunctionCall(fc *genai.FunctionCall, index int) core.FunctionCall {
	id := fc.ID
	if id == "" {
		id = fmt.Sprintf("call_%s_%d", fc.Name, index)
	}

	args := "{}"
	if fc.Args != nil {
		if b, err := json.Marshal(fc.Args); err == nil {
			args = string(b)
		}
	}

	return core.FunctionCall{ID: id, Name: fc.Name, Arguments: args}
}

func toUsage(u *genai.GenerateContentResponseUsageMetadata) *model.TokenUsage {
	if u == nil {
		return nil
	}

	return &model.TokenUsage{
		PromptTokens:     int(u.PromptTokenCount),
		CompletionTokens: int(u.CandidatesTokenCount),
		TotalTokens:      int(u.TotalTokenCount),
	}
}

func mapFinishReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return "length"
	case genai.FinishReasonSafety:
		return "content_filter"
	default:
		return "stop"
	}
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}
