package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/smartfolderhq/smartfolder/internal/httpkit"
)

// DefaultGatewayURL is the OpenAI-compatible chat completions endpoint
// of the AI gateway. Overridable via config for self-hosted gateways.
const DefaultGatewayURL = "https://ai-gateway.vercel.sh/v1"

// GatewayClient speaks the OpenAI-compatible chat completions protocol
// that the AI gateway fronts for every provider. Model ids are of the
// form "provider/model" and pass through unchanged.
type GatewayClient struct {
	baseURL     string
	apiKey      string
	temperature float64
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewGatewayClient creates a gateway client. An empty baseURL selects
// [DefaultGatewayURL].
func NewGatewayClient(baseURL, apiKey string, temperature float64, logger *slog.Logger) *GatewayClient {
	if baseURL == "" {
		baseURL = DefaultGatewayURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Model responses can take a long time before headers arrive
	// (large prompts, attached file bytes). Generous header timeout,
	// no overall timeout; ctx cancellation is the backstop.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &GatewayClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		temperature: temperature,
		logger:      logger.With("provider", "gateway"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

// Gateway wire types (OpenAI chat completions shape).

type gatewayRequest struct {
	Model       string           `json:"model"`
	Messages    []gatewayMessage `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	Tools       []map[string]any `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type gatewayMessage struct {
	Role       string            `json:"role"`
	Content    any               `json:"content"` // string or []gatewayPart
	ToolCalls  []gatewayToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

type gatewayPart struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *gatewayImageURL `json:"image_url,omitempty"`
	File     *gatewayFile     `json:"file,omitempty"`
}

type gatewayImageURL struct {
	URL string `json:"url"`
}

type gatewayFile struct {
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data"`
}

type gatewayToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type gatewayResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message      gatewayToolCallMessage `json:"message"`
		FinishReason string                 `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type gatewayToolCallMessage struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	ToolCalls []gatewayToolCall `json:"tool_calls,omitempty"`
}

// Chat sends a non-streaming chat completion request.
func (c *GatewayClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := gatewayRequest{
		Model:       model,
		Messages:    convertToGateway(messages),
		Temperature: c.temperature,
		Tools:       tools,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("preparing request",
		"model", model,
		"messages", len(messages),
		"tools", len(tools),
		"payload_bytes", len(jsonData),
	)
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("gateway error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("gateway error %d: %s", resp.StatusCode, errBody)
	}

	var gw gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if gw.Error != nil {
		return nil, fmt.Errorf("gateway error: %s", gw.Error.Message)
	}
	if len(gw.Choices) == 0 {
		return nil, fmt.Errorf("gateway returned no choices")
	}

	result := convertFromGateway(&gw)

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", result.Message.Content)

	return result, nil
}

// Ping verifies the gateway is reachable and the credential works by
// listing models.
func (c *GatewayClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status from gateway: %d", resp.StatusCode)
	}
	return nil
}

// convertToGateway converts internal messages to the wire shape.
// Multimodal parts become content arrays; binary parts are base64
// data URLs.
func convertToGateway(messages []Message) []gatewayMessage {
	var result []gatewayMessage
	for _, msg := range messages {
		gm := gatewayMessage{Role: msg.Role, ToolCallID: msg.ToolCallID}

		switch {
		case len(msg.Parts) > 0:
			var parts []gatewayPart
			for _, p := range msg.Parts {
				switch p.Kind {
				case PartText:
					parts = append(parts, gatewayPart{Type: "text", Text: p.Text})
				case PartImage:
					parts = append(parts, gatewayPart{
						Type:     "image_url",
						ImageURL: &gatewayImageURL{URL: dataURL(p.MediaType, p.Data)},
					})
				case PartFile:
					parts = append(parts, gatewayPart{
						Type: "file",
						File: &gatewayFile{
							Filename: p.FileName,
							FileData: dataURL(p.MediaType, p.Data),
						},
					})
				}
			}
			gm.Content = parts
		default:
			gm.Content = msg.Content
		}

		for i, tc := range msg.ToolCalls {
			args, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("call_%s_%d", tc.Function.Name, i)
			}
			out := gatewayToolCall{ID: id, Type: "function"}
			out.Function.Name = tc.Function.Name
			out.Function.Arguments = string(args)
			gm.ToolCalls = append(gm.ToolCalls, out)
		}

		result = append(result, gm)
	}
	return result
}

// convertFromGateway converts a wire response to the internal shape.
// Tool call arguments arrive as a JSON string and are decoded here;
// malformed argument payloads are preserved under "_raw" so the driver
// can hand the model a useful error.
func convertFromGateway(gw *gatewayResponse) *ChatResponse {
	choice := gw.Choices[0]

	msg := Message{
		Role:    choice.Message.Role,
		Content: choice.Message.Content,
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{"_raw": tc.Function.Arguments}
			}
		}
		msg.ToolCalls = append(msg.ToolCalls, NewToolCall(tc.ID, tc.Function.Name, args))
	}

	return &ChatResponse{
		Model:        gw.Model,
		CreatedAt:    time.Unix(gw.Created, 0),
		Message:      msg,
		Done:         true,
		InputTokens:  gw.Usage.PromptTokens,
		OutputTokens: gw.Usage.CompletionTokens,
	}
}

func dataURL(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
