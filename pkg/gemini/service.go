package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

// Error is a Gemini API failure with its HTTP status
type Error struct {
	Code   int
	Status string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gemini API error (%d %s): %v", e.Code, e.Status, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode exposes the HTTP status for retry classification
func (e *Error) StatusCode() int {
	return e.Code
}

// GeminiService generates text with the Gemini API
type GeminiService struct {
	client *genai.Client
	model  string
}

func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required for Gemini provider")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiService{client: client, model: model}, nil
}

func (g *GeminiService) Name() string {
	return "gemini"
}

// Generate sends one prompt and returns the model's text answer
func (g *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	temperature := float32(0.1)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		return "", wrapError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini returned an empty response")
	}
	return text, nil
}

func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Code: apiErr.Code, Status: apiErr.Status, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &Error{Code: apiErrPtr.Code, Status: apiErrPtr.Status, Err: err}
	}
	return err
}
