package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient calls a generative-model endpoint over HTTP. It carries no
// retry policy: a non-2xx response or transport error is returned as-is, and
// the caller decides whether to degrade.
type HTTPClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// NewHTTPClient wraps httpClient (nil uses a client with DefaultTimeout) for
// calls against endpoint, authenticated with apiKey.
func NewHTTPClient(httpClient *http.Client, endpoint, apiKey string) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPClient{httpClient: httpClient, endpoint: endpoint, apiKey: apiKey}
}

// DefaultTimeout is the provider-level timeout applied when the caller does
// not supply its own *http.Client.
const DefaultTimeout = 30 * time.Second

type generateRequest struct {
	Prompt          string  `json:"prompt"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Prompt:          prompt,
		Temperature:     GenerationParams.Temperature,
		TopP:            GenerationParams.TopP,
		TopK:            GenerationParams.TopK,
		MaxOutputTokens: GenerationParams.MaxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llmclient: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llmclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llmclient: call provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llmclient: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llmclient: provider returned %d: %s", resp.StatusCode, string(raw))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("llmclient: decode response: %w", err)
	}
	return out.Text, nil
}
