package ai

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"
)

var (
	// ErrProviderTransient marks provider errors worth retrying (5xx, timeouts)
	ErrProviderTransient = errors.New("ai provider temporarily unavailable")
	// ErrProviderPermanent marks provider errors that retrying cannot fix (bad key, bad request)
	ErrProviderPermanent = errors.New("ai provider rejected the request")
)

// FallbackExtractor tries the primary extractor and degrades to the
// secondary one when the primary is missing or fails.
type FallbackExtractor struct {
	primary   Extractor
	secondary Extractor
}

// NewFallbackExtractor creates the two-stage strategy. primary may be nil.
func NewFallbackExtractor(primary, secondary Extractor) *FallbackExtractor {
	return &FallbackExtractor{
		primary:   primary,
		secondary: secondary,
	}
}

func (f *FallbackExtractor) Extract(ctx context.Context, doc Document) (*Result, error) {
	log := logger.FromContext(ctx)

	if f.primary != nil {
		result, err := f.primary.Extract(ctx, doc)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if isConnectionError(err) {
			log.Warn().Err(err).Msg("ai classifier unreachable, using heuristic extraction")
		} else {
			log.Warn().Err(err).Msg("ai classifier error, using heuristic extraction")
		}
	}

	return f.secondary.Extract(ctx, doc)
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}

	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
		"resource_exhausted",
	}

	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}
