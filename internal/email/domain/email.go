package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc func(token *oauth2.Token) error

// Email is a message pulled from a mailbox. It only lives for one extraction attempt.
type Email struct {
	ID         string
	Subject    string
	From       string
	Body       string
	ReceivedAt time.Time
}

// Credentials is what a Source needs to open a mailbox
type Credentials struct {
	EmailAddress string
	AccessToken  string // password for IMAP
	RefreshToken string
	ServerAddr   string
	OnRefresh    TokenUpdateFunc
}

// FetchRequest bounds one pull from a mailbox
type FetchRequest struct {
	Since time.Time
	Limit int
}

// Source yields financial correspondence from a mailbox, oldest first
type Source interface {
	Fetch(ctx context.Context, creds Credentials, req FetchRequest) ([]*Email, error)
	Probe(ctx context.Context, creds Credentials) error
}

var (
	ErrSourceUnavailable = errors.New("mail source unavailable")
	ErrSourceRateLimited = errors.New("mail source rate limited")
)

// SourceError classifies a provider failure for the sync orchestrator
type SourceError struct {
	Kind      error // ErrSourceUnavailable or ErrSourceRateLimited
	Permanent bool
	Err       error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Unavailable wraps a transport or auth failure. permanent marks failures
// that need the user to reconnect, such as a revoked credential.
func Unavailable(err error, permanent bool) error {
	return &SourceError{Kind: ErrSourceUnavailable, Permanent: permanent, Err: err}
}

// RateLimited wraps a provider throttling response
func RateLimited(err error) error {
	return &SourceError{Kind: ErrSourceRateLimited, Err: err}
}

// IsPermanent reports whether err is a source failure that retrying cannot fix
func IsPermanent(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Permanent
}
