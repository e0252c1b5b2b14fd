// Package vision adapts an OpenAI-compatible chat-completions endpoint with
// image input to the ADK model.LLM interface.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// Config for the vision endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// JSONMode asks the endpoint for a json_object response format.
	JSONMode bool
}

// Model implements model.LLM. Inline image parts are sent as base64 data URLs.
type Model struct {
	config Config
	client *http.Client
}

var _ model.LLM = (*Model)(nil)

// NewModel creates a vision model client.
func NewModel(cfg Config) *Model {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &Model{
		config: cfg,
		// Per-call deadlines come from the context; this is only a backstop.
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient swaps the HTTP client. Used by tests.
func (m *Model) WithHTTPClient(client *http.Client) *Model {
	m.client = client
	return m
}

func (m *Model) Name() string {
	return m.config.Model
}

// GenerateContent performs one non-streaming completion.
func (m *Model) GenerateContent(ctx context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		yield(resp, err)
	}
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (m *Model) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("vision: nil request")
	}

	messages := make([]chatMessage, 0, len(req.Contents)+1)
	if req.Config != nil && req.Config.SystemInstruction != nil {
		if msg, ok := convertContent("system", req.Config.SystemInstruction); ok {
			messages = append(messages, msg)
		}
	}
	for _, content := range req.Contents {
		if content == nil {
			continue
		}
		if msg, ok := convertContent(roleForContent(content.Role), content); ok {
			messages = append(messages, msg)
		}
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("vision: request has no content")
	}

	payload := map[string]interface{}{
		"model":    m.config.Model,
		"messages": messages,
	}
	if req.Config != nil {
		if req.Config.Temperature != nil {
			payload["temperature"] = float64(*req.Config.Temperature)
		}
		if req.Config.MaxOutputTokens > 0 {
			payload["max_tokens"] = req.Config.MaxOutputTokens
		}
	}
	if m.config.JSONMode {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("vision: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(m.config.BaseURL, "/")+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("vision: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vision: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("vision: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vision: endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("vision: decode response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("vision api error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("vision api error: empty choices")
	}

	text := strings.TrimSpace(result.Choices[0].Message.Content)
	parts := []*genai.Part{}
	if text != "" {
		parts = append(parts, genai.NewPartFromText(text))
	}

	return &model.LLMResponse{
		Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: parts,
		},
	}, nil
}

func convertContent(role string, content *genai.Content) (chatMessage, bool) {
	parts := make([]contentPart, 0, len(content.Parts))
	for _, part := range content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			parts = append(parts, contentPart{
				Type:     "image_url",
				ImageURL: &imageURL{URL: dataURL(part.InlineData.MIMEType, part.InlineData.Data)},
			})
			continue
		}
		if strings.TrimSpace(part.Text) != "" {
			parts = append(parts, contentPart{Type: "text", Text: part.Text})
		}
	}
	if len(parts) == 0 {
		return chatMessage{}, false
	}
	return chatMessage{Role: role, Content: parts}, true
}

func roleForContent(role string) string {
	if role == "model" {
		return "assistant"
	}
	return "user"
}

func dataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
