package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	emaildomain "github.com/Retr0-XD/FInance-Monkey/internal/email/domain"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"
	"github.com/Retr0-XD/FInance-Monkey/pkg/mailtext"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	user          = "me"
	pageSize      = 500
	maxListPages  = 20
	fetchParallel = 10
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc = emaildomain.TokenUpdateFunc

type Service struct {
	clientID     string
	clientSecret string
	clientOpts   []option.ClientOption
}

var _ emaildomain.Source = (*Service)(nil)

type notifyTokenSource struct {
	ctx      context.Context
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log := logger.FromContext(s.ctx)
			log.Error().Err(err).Msg("failed to persist refreshed token")
		}
	}
	return t, nil
}

// NewService builds the Gmail adapter. Extra client options are appended to
// every API client, e.g. option.WithEndpoint for a local server.
func NewService(clientID, clientSecret string, opts ...option.ClientOption) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		clientOpts:   opts,
	}
}

// GetGmailService creates Gmail service with user's access token
func (s *Service) GetGmailService(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if refreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrappedSource := &notifyTokenSource{
		ctx:      ctx,
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, s.clientOpts...)
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	return srv, nil
}

// BuildQuery is the server-side filter for financial correspondence received after since
func BuildQuery(since time.Time) string {
	return fmt.Sprintf("after:%d (category:primary OR category:promotions OR category:updates) "+
		"(subject:payment OR subject:receipt OR subject:transaction OR subject:invoice OR subject:order OR subject:purchase)",
		since.Unix())
}

// Fetch returns up to req.Limit matching messages received after req.Since, oldest first.
// Messages that can never be read are logged and skipped. A transient read
// failure cuts the batch just before that message so the watermark cannot
// move past it.
func (s *Service) Fetch(ctx context.Context, creds emaildomain.Credentials, req emaildomain.FetchRequest) ([]*emaildomain.Email, error) {
	log := logger.FromContext(ctx)

	srv, err := s.GetGmailService(ctx, creds.AccessToken, creds.RefreshToken, creds.OnRefresh)
	if err != nil {
		return nil, emaildomain.Unavailable(err, false)
	}

	ids, err := listMessageIDs(ctx, srv, BuildQuery(req.Since))
	if err != nil {
		return nil, classifyError(err)
	}

	// The list is newest first, keep the oldest ones
	if req.Limit > 0 && len(ids) > req.Limit {
		ids = ids[len(ids)-req.Limit:]
	}
	slices.Reverse(ids)

	type emailResult struct {
		email *emaildomain.Email
		err   error
	}

	results := make([]emailResult, len(ids))
	semaphore := make(chan struct{}, fetchParallel)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(i int, msgID string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			msg, err := srv.Users.Messages.Get(user, msgID).Format("full").Context(ctx).Do()
			if err != nil {
				results[i] = emailResult{err: err}
				return
			}
			results[i] = emailResult{email: convertMessage(msg)}
		}(i, id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		emails  = make([]*emaildomain.Email, 0, len(ids))
		lastErr error
	)
	for i, r := range results {
		if r.err == nil {
			emails = append(emails, r.email)
			continue
		}
		lastErr = classifyError(r.err)
		if !emaildomain.IsPermanent(lastErr) {
			log.Warn().Err(r.err).Str("message_id", ids[i]).Int("dropped", len(ids)-i).Msg("message read failed, batch cut short")
			break
		}
		log.Warn().Err(r.err).Str("message_id", ids[i]).Msg("skipping unreadable message")
	}

	// Nothing readable means the mailbox itself is the problem
	if len(ids) > 0 && len(emails) == 0 && lastErr != nil {
		return nil, lastErr
	}

	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].ReceivedAt.Before(emails[j].ReceivedAt)
	})

	return emails, nil
}

func listMessageIDs(ctx context.Context, srv *gmail.Service, q string) ([]string, error) {
	var (
		ids       []string
		pageToken string
	)
	for page := 0; page < maxListPages; page++ {
		call := srv.Users.Messages.List(user).Q(q).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to list messages: %w", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return ids, nil
}

// Probe validates the credential with a cheap profile lookup
func (s *Service) Probe(ctx context.Context, creds emaildomain.Credentials) error {
	srv, err := s.GetGmailService(ctx, creds.AccessToken, creds.RefreshToken, creds.OnRefresh)
	if err != nil {
		return emaildomain.Unavailable(err, false)
	}

	if _, err := srv.Users.GetProfile(user).Context(ctx).Do(); err != nil {
		return classifyError(err)
	}
	return nil
}

// Watch sets up push notifications for the user's mailbox and returns the starting history id
func (s *Service) Watch(ctx context.Context, creds emaildomain.Credentials, topicName string) (uint64, error) {
	log := logger.FromContext(ctx)

	srv, err := s.GetGmailService(ctx, creds.AccessToken, creds.RefreshToken, creds.OnRefresh)
	if err != nil {
		return 0, emaildomain.Unavailable(err, false)
	}

	// Only one push client is allowed per mailbox
	_ = srv.Users.Stop(user).Context(ctx).Do()

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}

	resp, err := srv.Users.Watch(user, req).Context(ctx).Do()
	if err != nil {
		return 0, classifyError(fmt.Errorf("unable to watch mailbox: %w", err))
	}
	log.Info().
		Str("email", creds.EmailAddress).
		Int64("expiration", resp.Expiration).
		Uint64("history_id", resp.HistoryId).
		Msg("gmail watch started")

	return resp.HistoryId, nil
}

// Stop stops push notifications for the user's mailbox
func (s *Service) Stop(ctx context.Context, creds emaildomain.Credentials) error {
	srv, err := s.GetGmailService(ctx, creds.AccessToken, creds.RefreshToken, creds.OnRefresh)
	if err != nil {
		return err
	}

	if err := srv.Users.Stop(user).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %w", err)
	}
	return nil
}

// classifyError maps Gmail and OAuth failures onto source errors
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return emaildomain.Unavailable(err, false)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch {
		case gErr.Code == http.StatusTooManyRequests || isRateLimitReason(gErr):
			return emaildomain.RateLimited(err)
		case gErr.Code == http.StatusUnauthorized || gErr.Code == http.StatusForbidden:
			return emaildomain.Unavailable(err, true)
		case gErr.Code >= 500:
			return emaildomain.Unavailable(err, false)
		default:
			return emaildomain.Unavailable(err, true)
		}
	}

	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		switch rErr.ErrorCode {
		case "invalid_grant", "unauthorized_client", "invalid_client":
			return emaildomain.Unavailable(err, true)
		}
		return emaildomain.Unavailable(err, false)
	}

	return emaildomain.Unavailable(err, false)
}

// Gmail reports per-user quota exhaustion as 403 with a rate limit reason
func isRateLimitReason(gErr *googleapi.Error) bool {
	for _, item := range gErr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

// Helper functions

func convertMessage(msg *gmail.Message) *emaildomain.Email {
	email := &emaildomain.Email{
		ID:         msg.Id,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload == nil {
		return email
	}

	htmlBody, plainBody := getEmailBody(msg.Payload)
	email.Subject = getHeader(msg.Payload.Headers, "Subject")
	email.From = getHeader(msg.Payload.Headers, "From")
	email.Body = mailtext.Body(htmlBody, plainBody)
	return email
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// getEmailBody walks the MIME tree and returns the first html and plain leaves
func getEmailBody(payload *gmail.MessagePart) (htmlBody, plainBody string) {
	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part == nil {
			return
		}
		if part.Body != nil && part.Body.Data != "" && part.Filename == "" {
			if data, err := decodeData(part.Body.Data); err == nil {
				switch {
				case strings.HasPrefix(part.MimeType, "text/html") && htmlBody == "":
					htmlBody = data
				case strings.HasPrefix(part.MimeType, "text/plain") && plainBody == "":
					plainBody = data
				}
			}
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)
	return htmlBody, plainBody
}

// decodeData accepts base64url with or without padding
func decodeData(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return "", err
		}
	}
	return string(b), nil
}
