package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"genslides/internal/models"
)

// VolcengineEngine generates images through Volcengine Ark's
// OpenAI-compatible images API.
type VolcengineEngine struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewVolcengineEngine creates a Volcengine engine client
func NewVolcengineEngine(apiKey, baseURL, model string) *VolcengineEngine {
	return &VolcengineEngine{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  newHTTPClient(),
	}
}

// Name returns the engine identifier
func (e *VolcengineEngine) Name() string {
	return models.EngineVolcengine
}

// imageGenerationRequest is the OpenAI-compatible request format
type imageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Image          string `json:"image,omitempty"` // base64 style reference
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format"`
	Watermark      bool   `json:"watermark"`
}

// imageGenerationResponse is the OpenAI-compatible API response
type imageGenerationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json,omitempty"`
		URL     string `json:"url,omitempty"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateSlideImage renders a slide illustration
func (e *VolcengineEngine) GenerateSlideImage(ctx context.Context, content, stylePrompt string, styleImage []byte) ([]byte, error) {
	req := imageGenerationRequest{
		Model:          e.model,
		Prompt:         slidePrompt(content, stylePrompt),
		Size:           "1280x720",
		ResponseFormat: "b64_json",
	}
	if len(styleImage) > 0 {
		req.Image = "data:image/png;base64," + base64.StdEncoding.EncodeToString(styleImage)
	}
	return e.generate(ctx, req)
}

// GenerateStyleImage renders one style candidate
func (e *VolcengineEngine) GenerateStyleImage(ctx context.Context, prompt string) ([]byte, error) {
	return e.generate(ctx, imageGenerationRequest{
		Model:          e.model,
		Prompt:         prompt,
		Size:           "1280x720",
		ResponseFormat: "b64_json",
	})
}

func (e *VolcengineEngine) generate(ctx context.Context, req imageGenerationRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var result imageGenerationResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("API error: %s", result.Error.Message)
	}
	if len(result.Data) == 0 || result.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("API returned no image data")
	}

	data, err := base64.StdEncoding.DecodeString(result.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	return data, nil
}

// truncateBody limits error payloads embedded in error messages
func truncateBody(body []byte) string {
	const max = 500
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
