package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sandevgo/mnemo/internal/config"
	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/retry"
)

const completionsPath = "/v1/chat/completions"

// OpenAICompatible implements core.Generator against any
// /v1/chat/completions endpoint. Retries live here, in the collaborator;
// the core never retries generation.
type OpenAICompatible struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	retrier     *retry.Retrier
}

func NewOpenAICompatible(cfg *config.LLMConfig) *OpenAICompatible {
	return &OpenAICompatible{
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		retrier:     retry.NewDefaultRetrier(),
	}
}

func (o *OpenAICompatible) Generate(ctx context.Context, turns []core.Turn, constraints core.GenConstraints) (string, error) {
	temperature := o.temperature
	if constraints.Temperature > 0 {
		temperature = constraints.Temperature
	}

	payload := map[string]any{
		"model":       o.model,
		"messages":    turns,
		"temperature": temperature,
	}
	if constraints.MaxOutputChars > 0 {
		// Rough chars-per-token estimate keeps output near the char cap.
		payload["max_tokens"] = max(constraints.MaxOutputChars/4, 16)
	}

	var content string
	err := o.retrier.Do(ctx, func() error {
		resp, err := o.postCompletion(ctx, payload)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("generation failed: status %d: %s", resp.StatusCode, string(body))
		}

		var parsed struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("generation returned no choices")
		}

		content = parsed.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (o *OpenAICompatible) postCompletion(ctx context.Context, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+completionsPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return resp, nil
}
