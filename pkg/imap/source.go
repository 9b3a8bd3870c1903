// Package imap reads financial correspondence from any IMAP mailbox that
// accepts password or app-password login.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"time"

	emaildomain "github.com/Retr0-XD/FInance-Monkey/internal/email/domain"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"
	"github.com/Retr0-XD/FInance-Monkey/pkg/mailtext"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const (
	DefaultServerAddr = "imap.gmail.com:993"
	mailbox           = "INBOX"
)

// SubjectKeywords narrows the server-side search to financial correspondence
var SubjectKeywords = []string{"payment", "receipt", "transaction", "invoice", "order", "purchase"}

type Source struct {
	timeout  time.Duration
	insecure bool
}

var _ emaildomain.Source = (*Source)(nil)

type Option func(*Source)

// WithoutTLS dials plaintext connections, for local test servers
func WithoutTLS() Option {
	return func(s *Source) { s.insecure = true }
}

func NewSource(timeout time.Duration, opts ...Option) *Source {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Source{timeout: timeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) connect(ctx context.Context, creds emaildomain.Credentials) (*client.Client, func(), error) {
	addr := creds.ServerAddr
	if addr == "" {
		addr = DefaultServerAddr
	}

	dialer := &net.Dialer{Timeout: s.timeout}
	var (
		c   *client.Client
		err error
	)
	if s.insecure {
		c, err = client.DialWithDialer(dialer, addr)
	} else {
		host, _, _ := net.SplitHostPort(addr)
		c, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: host})
	}
	if err != nil {
		return nil, nil, emaildomain.Unavailable(fmt.Errorf("dial %s: %w", addr, err), false)
	}
	c.Timeout = s.timeout

	// Tear the connection down if the caller gives up mid-command
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Terminate()
		case <-stop:
		}
	}()
	closeFn := func() {
		close(stop)
		_ = c.Logout()
	}

	if err := c.Login(creds.EmailAddress, creds.AccessToken); err != nil {
		closeFn()
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, emaildomain.Unavailable(fmt.Errorf("login: %w", err), true)
	}
	return c, closeFn, nil
}

// Probe checks that the server is reachable and the credential is accepted
func (s *Source) Probe(ctx context.Context, creds emaildomain.Credentials) error {
	_, closeFn, err := s.connect(ctx, creds)
	if err != nil {
		return err
	}
	closeFn()
	return nil
}

// Fetch returns up to req.Limit matching messages received at or after req.Since, oldest first.
// Message ids are "<uidvalidity>:<uid>" so they stay stable across sessions.
func (s *Source) Fetch(ctx context.Context, creds emaildomain.Credentials, req emaildomain.FetchRequest) ([]*emaildomain.Email, error) {
	log := logger.FromContext(ctx)

	c, closeFn, err := s.connect(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	mbox, err := c.Select(mailbox, true)
	if err != nil {
		return nil, s.commandError(ctx, "select", err)
	}

	uids, err := c.UidSearch(BuildCriteria(req.Since))
	if err != nil {
		return nil, s.commandError(ctx, "search", err)
	}
	if len(uids) == 0 {
		return []*emaildomain.Email{}, nil
	}

	// SINCE matches by calendar day, so the exact cut happens on INTERNALDATE
	// before the batch limit is applied
	uids, err = selectBatch(c, uids, req)
	if err != nil {
		return nil, s.commandError(ctx, "fetch dates", err)
	}
	if len(uids) == 0 {
		return []*emaildomain.Email{}, nil
	}

	section := &goimap.BodySectionName{Peek: true}
	msgs, err := uidFetch(c, uids, []goimap.FetchItem{goimap.FetchUid, goimap.FetchInternalDate, section.FetchItem()})
	if err != nil {
		return nil, s.commandError(ctx, "fetch", err)
	}

	emails := make([]*emaildomain.Email, 0, len(msgs))
	for _, msg := range msgs {
		id := fmt.Sprintf("%d:%d", mbox.UidValidity, msg.Uid)
		body := msg.GetBody(section)
		if body == nil {
			log.Warn().Str("message_id", id).Msg("skipping message without body")
			continue
		}
		email, err := ParseMessage(body)
		if err != nil {
			log.Warn().Err(err).Str("message_id", id).Msg("skipping unreadable message")
			continue
		}
		email.ID = id
		if !msg.InternalDate.IsZero() {
			email.ReceivedAt = msg.InternalDate.UTC()
		}
		emails = append(emails, email)
	}

	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].ReceivedAt.Before(emails[j].ReceivedAt)
	})
	return emails, nil
}

// selectBatch drops uids received before req.Since and keeps the oldest req.Limit of the rest
func selectBatch(c *client.Client, uids []uint32, req emaildomain.FetchRequest) ([]uint32, error) {
	msgs, err := uidFetch(c, uids, []goimap.FetchItem{goimap.FetchUid, goimap.FetchInternalDate})
	if err != nil {
		return nil, err
	}

	kept := msgs[:0]
	for _, msg := range msgs {
		if !req.Since.IsZero() && msg.InternalDate.Before(req.Since) {
			continue
		}
		kept = append(kept, msg)
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].InternalDate.Equal(kept[j].InternalDate) {
			return kept[i].Uid < kept[j].Uid
		}
		return kept[i].InternalDate.Before(kept[j].InternalDate)
	})
	if req.Limit > 0 && len(kept) > req.Limit {
		kept = kept[:req.Limit]
	}

	out := make([]uint32, 0, len(kept))
	for _, msg := range kept {
		out = append(out, msg.Uid)
	}
	return out, nil
}

func uidFetch(c *client.Client, uids []uint32, items []goimap.FetchItem) ([]*goimap.Message, error) {
	seqset := new(goimap.SeqSet)
	seqset.AddNum(uids...)

	messages := make(chan *goimap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	out := make([]*goimap.Message, 0, len(uids))
	for msg := range messages {
		out = append(out, msg)
	}
	return out, <-done
}

func (s *Source) commandError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return emaildomain.Unavailable(fmt.Errorf("%s: %w", op, err), false)
}

// BuildCriteria matches any subject keyword, restricted to messages since the watermark
func BuildCriteria(since time.Time) *goimap.SearchCriteria {
	criteria := subjectAny(SubjectKeywords)
	if !since.IsZero() {
		criteria.Since = since
	}
	return criteria
}

func subjectAny(words []string) *goimap.SearchCriteria {
	leaf := goimap.NewSearchCriteria()
	leaf.Header.Add("Subject", words[0])
	if len(words) == 1 {
		return leaf
	}
	or := goimap.NewSearchCriteria()
	or.Or = [][2]*goimap.SearchCriteria{{leaf, subjectAny(words[1:])}}
	return or
}

// ParseMessage decodes an RFC 5322 message into an Email, preferring the html part
func ParseMessage(r io.Reader) (*emaildomain.Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && mr == nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	email := &emaildomain.Email{}
	email.Subject, _ = mr.Header.Subject()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		email.From = from[0].String()
	}
	if date, err := mr.Header.Date(); err == nil {
		email.ReceivedAt = date.UTC()
	}

	var htmlBody, plainBody string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if htmlBody == "" && plainBody == "" {
				return nil, fmt.Errorf("read message part: %w", err)
			}
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.EqualFold(contentType, "text/html") && htmlBody == "":
			htmlBody = string(data)
		case (contentType == "" || strings.EqualFold(contentType, "text/plain")) && plainBody == "":
			plainBody = string(data)
		}
	}

	email.Body = mailtext.Body(htmlBody, plainBody)
	return email, nil
}
