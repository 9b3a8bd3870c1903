package ai

import (
	"context"
	"fmt"
	"time"

	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
)

// Document is the message content handed to an extractor
type Document struct {
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Text renders the document the way every extractor reads it
func (d Document) Text() string {
	return fmt.Sprintf("Subject: %s\n\n%s", d.Subject, d.Body)
}

// Result of one extraction. A nil Candidate means the message holds no transaction.
type Result struct {
	Candidate *txndomain.TransactionCandidate
	Method    txndomain.ExtractionMethod
}

// Found reports whether a transaction was extracted
func (r *Result) Found() bool {
	return r != nil && r.Candidate != nil
}

// Extractor turns message content into a transaction candidate.
// "No transaction" is a valid result, not an error.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (*Result, error)
}

// TextGenerator is a text-in, text-out generative model
// Implement this interface to add new AI providers (Gemini, Ollama, OpenAI, etc.)
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
	ProviderNone   ProviderType = "none"
)
