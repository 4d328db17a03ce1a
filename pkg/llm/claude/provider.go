package claude

import (
	"bytes"
	"campus-assistant-be/pkg/llm"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

type ClaudeProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ llm.VisionProvider = &ClaudeProvider{}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string  `json:"role"`
	Content []block `json:"content"`
}

type block struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func NewClaudeProvider(apiKey, baseURL, model string, timeout time.Duration) *ClaudeProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ClaudeProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *ClaudeProvider) Name() string { return "claude" }

func (p *ClaudeProvider) Configured() bool { return p.apiKey != "" }

func (p *ClaudeProvider) Generate(ctx context.Context, r llm.Request, options ...llm.Option) (string, error) {
	if !p.Configured() {
		return "", llm.ErrMissingCredential
	}

	opts := llm.ApplyOptions(llm.Options{MaxTokens: 1024}, options...)
	model := opts.Model
	if model == "" {
		model = r.Model
	}
	if model == "" {
		model = p.model
	}

	// Images go before the text block.
	content := make([]block, 0, len(r.Images)+1)
	for _, img := range r.Images {
		content = append(content, block{
			Type: "image",
			Source: &imageSource{
				Type:      "base64",
				MediaType: llm.ImageMediaType(img),
				Data:      base64.StdEncoding.EncodeToString(img),
			},
		})
	}
	content = append(content, block{Type: "text", Text: r.Prompt})

	reqBody := messagesRequest{
		Model:     model,
		MaxTokens: opts.MaxTokens,
		System:    r.System,
		Messages:  []message{{Role: "user", Content: content}},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", llm.NewStatusError(p.Name(), resp.StatusCode, bodyBytes)
	}

	var out messagesResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	var sb strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String(), nil
}
