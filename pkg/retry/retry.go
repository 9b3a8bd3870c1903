package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Retr0-XD/FInance-Monkey/pkg/config"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"
)

var (
	// ErrRateLimited marks a throttled call. The next wait jumps straight to the cap.
	ErrRateLimited = errors.New("rate limited")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// Policy is a capped exponential backoff profile
type Policy struct {
	Name         string
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// FromConfig builds a named policy from a config retry class
func FromConfig(name string, rc config.RetryConfig) Policy {
	return Policy{
		Name:         name,
		MaxAttempts:  rc.MaxAttempts,
		InitialDelay: rc.InitialDelay,
		Multiplier:   rc.Multiplier,
		MaxDelay:     rc.MaxDelay,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2.0
	}
	return p
}

// Delay returns the wait before the given attempt (1-based) under plain backoff
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// PermanentError wraps an error that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as non-retryable. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	p = p.withDefaults()
	log := logger.FromContext(ctx)

	delay := p.InitialDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || ctx.Err() != nil {
			return err
		}

		if errors.Is(err, ErrRateLimited) {
			delay = p.MaxDelay
		}

		if attempt == p.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, p.MaxAttempts, err)
		}

		log.Warn().
			Str("policy", p.Name).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Dur("delay", delay).
			Err(err).
			Msg("operation failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return ErrMaxRetries
}
