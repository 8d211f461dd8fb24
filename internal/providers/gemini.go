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

// GeminiEngine generates images through the Gemini generateContent API with
// image output enabled.
type GeminiEngine struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewGeminiEngine creates a Gemini engine client
func NewGeminiEngine(apiKey, baseURL, model string) *GeminiEngine {
	return &GeminiEngine{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  newHTTPClient(),
	}
}

// Name returns the engine identifier
func (e *GeminiEngine) Name() string {
	return models.EngineGemini
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateSlideImage renders a slide illustration, attaching the project
// style image as a reference part when one is set.
func (e *GeminiEngine) GenerateSlideImage(ctx context.Context, content, stylePrompt string, styleImage []byte) ([]byte, error) {
	parts := []geminiPart{{Text: slidePrompt(content, stylePrompt)}}
	if len(styleImage) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(styleImage),
		}})
	}
	return e.generate(ctx, parts)
}

// GenerateStyleImage renders one style candidate
func (e *GeminiEngine) GenerateStyleImage(ctx context.Context, prompt string) ([]byte, error) {
	return e.generate(ctx, []geminiPart{{Text: prompt}})
}

func (e *GeminiEngine) generate(ctx context.Context, parts []geminiPart) ([]byte, error) {
	req := geminiRequest{Contents: []geminiContent{{Parts: parts}}}
	req.GenerationConfig.ResponseModalities = []string{"IMAGE"}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", e.baseURL, e.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", e.apiKey)

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

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("API error: %s", result.Error.Message)
	}

	for _, candidate := range result.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("failed to decode image data: %w", err)
				}
				return data, nil
			}
		}
	}

	return nil, fmt.Errorf("API returned no image data")
}
