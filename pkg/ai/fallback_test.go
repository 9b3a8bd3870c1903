package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
	"github.com/Retr0-XD/FInance-Monkey/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	responses []string
	errs      []error
	calls     int
	block     bool
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	i := f.calls
	f.calls++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no more responses")
}

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) StatusCode() int { return e.code }

var testPolicy = retry.Policy{Name: "ai", MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 2 * time.Millisecond}

var netflixDoc = Document{
	Subject: "Your Netflix payment confirmation",
	Body:    "Subscription renewal, Netflix, $15.99 monthly",
}

func TestFallback_UsesAIWhenAvailable(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"transactionDate":"2024-03-01","amount":15.99,"currency":"USD","vendor":"Netflix","description":"Plan","recurring":true,"recurrencePattern":"MONTHLY"}`}}
	ex := NewFallbackExtractor(NewAIExtractor(gen, testPolicy, time.Second), NewHeuristicExtractor())

	result, err := ex.Extract(context.Background(), netflixDoc)
	require.NoError(t, err)
	require.True(t, result.Found())
	assert.Equal(t, txndomain.MethodAI, result.Method)
	assert.Equal(t, "Plan", result.Candidate.Description)
}

func TestFallback_AISentinelIsNoTransaction(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"NO_TRANSACTION"}}
	ex := NewFallbackExtractor(NewAIExtractor(gen, testPolicy, time.Second), NewHeuristicExtractor())

	result, err := ex.Extract(context.Background(), netflixDoc)
	require.NoError(t, err)
	assert.False(t, result.Found())
	assert.Equal(t, txndomain.MethodAI, result.Method)
}

func TestFallback_TimeoutDegradesToHeuristic(t *testing.T) {
	gen := &fakeGenerator{block: true}
	ex := NewFallbackExtractor(NewAIExtractor(gen, testPolicy, 5*time.Millisecond), NewHeuristicExtractor())

	result, err := ex.Extract(context.Background(), netflixDoc)
	require.NoError(t, err)
	require.True(t, result.Found())
	assert.Equal(t, txndomain.MethodHeuristic, result.Method)
	assert.Equal(t, "Netflix", result.Candidate.Vendor)
	assert.Equal(t, 3, gen.calls, "timeouts are retried up to the attempt cap")
}

func TestFallback_PermanentErrorNotRetried(t *testing.T) {
	gen := &fakeGenerator{errs: []error{statusErr{code: 403}}}
	ex := NewFallbackExtractor(NewAIExtractor(gen, testPolicy, time.Second), NewHeuristicExtractor())

	result, err := ex.Extract(context.Background(), netflixDoc)
	require.NoError(t, err)
	assert.Equal(t, txndomain.MethodHeuristic, result.Method)
	assert.Equal(t, 1, gen.calls)
}

func TestFallback_TransientErrorRetriedThenSucceeds(t *testing.T) {
	gen := &fakeGenerator{
		errs:      []error{statusErr{code: 503}, statusErr{code: 429}},
		responses: []string{"", "", "NO_TRANSACTION"},
	}
	ai := NewAIExtractor(gen, testPolicy, time.Second)

	result, err := ai.Extract(context.Background(), netflixDoc)
	require.NoError(t, err)
	assert.False(t, result.Found())
	assert.Equal(t, 3, gen.calls)
}

func TestFallback_UnparsableResponseDegrades(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"I think this is a receipt"}}
	ex := NewFallbackExtractor(NewAIExtractor(gen, testPolicy, time.Second), NewHeuristicExtractor())

	result, err := ex.Extract(context.Background(), netflixDoc)
	require.NoError(t, err)
	assert.Equal(t, txndomain.MethodHeuristic, result.Method)
	assert.True(t, result.Found())
}

func TestFallback_NoPrimary(t *testing.T) {
	ex := NewFallbackExtractor(nil, NewHeuristicExtractor())

	result, err := ex.Extract(context.Background(), Document{Subject: "hello", Body: "just saying hi"})
	require.NoError(t, err)
	assert.False(t, result.Found())
}

func TestFallback_CancelledContextSurfaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &fakeGenerator{responses: []string{"NO_TRANSACTION"}}
	ex := NewFallbackExtractor(NewAIExtractor(gen, testPolicy, time.Second), NewHeuristicExtractor())

	_, err := ex.Extract(ctx, netflixDoc)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(netflixDoc)
	assert.Contains(t, prompt, NoTransactionSentinel)
	assert.Contains(t, prompt, "Subject: Your Netflix payment confirmation")
	assert.Contains(t, prompt, "$15.99 monthly")

	long := BuildPrompt(Document{Subject: "Receipt", Body: strings.Repeat("€", maxPromptBody)})
	assert.True(t, utf8.ValidString(long), "truncation keeps whole runes")
	assert.LessOrEqual(t, len(long), len(extractionPrompt)+maxPromptBody)
}

func TestNewTextGenerator(t *testing.T) {
	gen, err := NewTextGenerator(context.Background(), Config{Provider: ProviderNone})
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = NewTextGenerator(context.Background(), Config{Provider: ProviderAuto})
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = NewTextGenerator(context.Background(), Config{Provider: ProviderOllama})
	require.NoError(t, err)
	assert.Equal(t, "ollama", gen.Name())

	_, err = NewTextGenerator(context.Background(), Config{Provider: ProviderGemini})
	assert.Error(t, err)

	_, err = NewTextGenerator(context.Background(), Config{Provider: "openai"})
	assert.Error(t, err)
}
