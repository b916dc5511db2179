// Package ai provides the HTTP client for the text/vision generation
// collaborator. It implements Generator, Evaluator, Improver and Fixer
// on a single completion-style endpoint.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/protocol"
)

const defaultTimeout = 120 * time.Second

// Client calls a completion endpoint: POST {prompt, images?} ->
// {text, model?, prompt_tokens?, completion_tokens?}.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a client for the given endpoint URL.
func NewClient(url string) *Client {
	return &Client{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type completionRequest struct {
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
}

type completionResponse struct {
	Text             string `json:"text"`
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

func (c *Client) complete(ctx context.Context, prompt string, images []string) (string, *models.AIInteraction, error) {
	body, err := json.Marshal(completionRequest{Prompt: prompt, Images: images})
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/complete", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create completion request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("completion request failed: status code %d", resp.StatusCode)
	}

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", nil, fmt.Errorf("failed to decode completion response: %w", err)
	}

	interaction := &models.AIInteraction{
		Prompt:           prompt,
		Response:         completion.Text,
		Model:            completion.Model,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		Duration:         time.Since(started),
	}

	return completion.Text, interaction, nil
}

// completeCode runs a completion and extracts shader code from it,
// failing with ErrEmptyGeneration on blank output.
func (c *Client) completeCode(ctx context.Context, prompt string, images []string) (*protocol.GenerationResult, error) {
	text, interaction, err := c.complete(ctx, prompt, images)
	if err != nil {
		return nil, err
	}

	code := ExtractCode(text)
	if code == "" {
		return nil, protocol.ErrEmptyGeneration
	}

	return &protocol.GenerationResult{Code: code, Interaction: interaction}, nil
}

// Generate produces shader code from a text prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (*protocol.GenerationResult, error) {
	return c.completeCode(ctx, GenerationPrompt(prompt), nil)
}

// Evaluate scores rendered screenshots against the original prompt.
func (c *Client) Evaluate(ctx context.Context, prompt, code string, images []string) (*protocol.EvaluationResult, error) {
	text, interaction, err := c.complete(ctx, EvaluationPrompt(prompt, code), images)
	if err != nil {
		return nil, err
	}

	score, feedback, err := ParseEvaluation(text)
	if err != nil {
		return nil, err
	}

	return &protocol.EvaluationResult{Score: score, Feedback: feedback, Interaction: interaction}, nil
}

// Improve revises code given evaluator feedback and screenshots.
func (c *Client) Improve(ctx context.Context, prompt, code, feedback string, images []string) (*protocol.GenerationResult, error) {
	return c.completeCode(ctx, ImprovementPrompt(prompt, code, feedback), images)
}

// Fix repairs code that failed to compile.
func (c *Client) Fix(ctx context.Context, prompt, code, errorMessage, errorDetail string) (*protocol.GenerationResult, error) {
	return c.completeCode(ctx, FixPrompt(prompt, code, errorMessage, errorDetail), nil)
}
