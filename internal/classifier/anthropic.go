package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pbaille/braindump/internal/contract"
)

const anthropicAPI = "https://api.anthropic.com/v1/messages"

// Anthropic classifies via the Anthropic Messages API
type Anthropic struct {
	apiKey    string
	model     string
	endpoint  string
	maxTokens int
	client    *http.Client
}

// NewAnthropic creates an Anthropic oracle. baseURL and maxTokens may be zero.
func NewAnthropic(apiKey, model, baseURL string, maxTokens int) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	endpoint := anthropicAPI
	if baseURL != "" {
		endpoint = strings.TrimRight(baseURL, "/") + "/v1/messages"
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &Anthropic{
		apiKey:    apiKey,
		model:     model,
		endpoint:  endpoint,
		maxTokens: maxTokens,
		client:    &http.Client{},
	}, nil
}

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system,omitempty"`
	Temperature float64      `json:"temperature"`
	Messages    []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Classify sends the contract and returns the first text block of the reply.
// Deadlines come from ctx.
func (a *Anthropic) Classify(ctx context.Context, req Request) (string, error) {
	reqBody := apiRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      contract.SystemPrompt,
		Temperature: 0.5,
		Messages: []apiMessage{
			{Role: "user", Content: req.Contract},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("api error: %s", apiResp.Error.Message)
	}

	for _, c := range apiResp.Content {
		if c.Type == "text" || c.Type == "" {
			return c.Text, nil
		}
	}

	return "", fmt.Errorf("empty response")
}
