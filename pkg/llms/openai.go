package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lexhub/lexhub/pkg/config"
	"github.com/lexhub/lexhub/pkg/httpclient"
	"github.com/lexhub/lexhub/pkg/observability"
)

// openAIRequest is the chat completions request body.
type openAIRequest struct {
	Model       string           `json:"model"`
	Messages    []openAIMessage  `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
}

type openAIMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Choices []openAIChoice `json:"choices"`
	Usage   Usage          `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"`
}

// OpenAIProvider talks to any OpenAI-compatible chat endpoint
// (DashScope compatible-mode by default).
type OpenAIProvider struct {
	cfg    config.LLMConfig
	client *httpclient.Client
}

// NewOpenAIProvider builds a provider from config. The underlying HTTP
// client retries rate limits and transient server errors.
func NewOpenAIProvider(cfg config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultLLMBaseURL
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	client := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(httpclient.ParseRateLimitHeaders),
	)

	return &OpenAIProvider{cfg: cfg, client: client}, nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Message, error) {
	return p.complete(ctx, messages, nil, opts)
}

func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, opts *ChatOptions) (*Message, error) {
	return p.complete(ctx, messages, tools, opts)
}

func (p *OpenAIProvider) complete(ctx context.Context, messages []Message, tools []ToolDefinition, opts *ChatOptions) (*Message, error) {
	req := p.buildRequest(messages, tools, opts)

	tracer := observability.GetTracer("llms")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest)
	defer span.End()
	span.SetAttributes(attribute.String(observability.AttrLLMModel, req.Model))

	resp, err := p.doRequest(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int(observability.AttrTokensInput, resp.Usage.PromptTokens),
		attribute.Int(observability.AttrTokensOutput, resp.Usage.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "")

	msg := resp.Choices[0].Message
	return &Message{
		Role:      msg.Role,
		Content:   msg.Content,
		ToolCalls: msg.ToolCalls,
	}, nil
}

func (p *OpenAIProvider) buildRequest(messages []Message, tools []ToolDefinition, opts *ChatOptions) *openAIRequest {
	req := &openAIRequest{
		Model:       p.cfg.Model,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
		Tools:       tools,
	}
	if opts != nil {
		if opts.Model != "" {
			req.Model = opts.Model
		}
		if opts.Temperature != nil {
			req.Temperature = *opts.Temperature
		}
		if opts.MaxTokens > 0 {
			req.MaxTokens = opts.MaxTokens
		}
	}

	// Windowed history can orphan tool messages; prune before sending
	// or the endpoint rejects the whole request.
	pruned := PruneOrphanToolMessages(messages)
	req.Messages = make([]openAIMessage, 0, len(pruned))
	for _, m := range pruned {
		req.Messages = append(req.Messages, openAIMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		})
	}

	return req
}

func (p *OpenAIProvider) doRequest(ctx context.Context, req *openAIRequest) (*openAIResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := strings.TrimSuffix(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}

	var resp openAIResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse chat response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("LLM API error: %s (%s)", resp.Error.Message, resp.Error.Type)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	return &resp, nil
}
