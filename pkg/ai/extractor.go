package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
	"github.com/Retr0-XD/FInance-Monkey/pkg/retry"
)

const extractionPrompt = "Extract financial transaction information from this email. " +
	"If there's no transaction, respond with " + NoTransactionSentinel + ". " +
	"If a transaction is found, respond with a JSON object containing these fields: " +
	"transactionDate (YYYY-MM-DD format), amount (numeric), currency (3-letter code), " +
	"vendor (company name), description (brief description), recurring (true/false), " +
	"and recurrencePattern (DAILY, WEEKLY, MONTHLY, QUARTERLY or YEARLY, if recurring is true).\n\n" +
	"Email content:\n"

// Keep prompts inside provider token limits
const maxPromptBody = 12000

// BuildPrompt embeds the message text in the fixed instruction template
func BuildPrompt(doc Document) string {
	text := doc.Text()
	if len(text) > maxPromptBody {
		cut := maxPromptBody
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return extractionPrompt + text
}

// AIExtractor asks a generative model for the transaction fields
type AIExtractor struct {
	gen     TextGenerator
	policy  retry.Policy
	timeout time.Duration
	now     func() time.Time
}

// NewAIExtractor wraps gen with the AI retry policy and a per-call timeout
func NewAIExtractor(gen TextGenerator, policy retry.Policy, timeout time.Duration) *AIExtractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AIExtractor{gen: gen, policy: policy, timeout: timeout, now: time.Now}
}

func (a *AIExtractor) Extract(ctx context.Context, doc Document) (*Result, error) {
	prompt := BuildPrompt(doc)

	var response string
	err := retry.Do(ctx, a.policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		out, err := a.gen.Generate(callCtx, prompt)
		if err != nil {
			return classifyError(err)
		}
		response = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s classifier: %w", a.gen.Name(), err)
	}

	candidate, err := ParseResponse(response, a.now())
	if err != nil {
		return nil, fmt.Errorf("%s classifier: %w", a.gen.Name(), err)
	}
	return &Result{Candidate: candidate, Method: txndomain.MethodAI}, nil
}

// classifyError maps provider failures onto retry semantics. Quota errors
// wait the full cap, connection errors retry with backoff, the rest give up.
func classifyError(err error) error {
	var status interface{ StatusCode() int }
	if errors.As(err, &status) {
		switch code := status.StatusCode(); {
		case code == 429:
			return fmt.Errorf("%w: %w", retry.ErrRateLimited, err)
		case code == 408 || code >= 500:
			return err
		case code >= 400:
			return retry.Permanent(err)
		}
	}

	switch {
	case errors.Is(err, ErrProviderPermanent):
		return retry.Permanent(err)
	case isQuotaError(err):
		return fmt.Errorf("%w: %w", retry.ErrRateLimited, err)
	case isConnectionError(err), errors.Is(err, ErrProviderTransient):
		return err
	default:
		return retry.Permanent(err)
	}
}
