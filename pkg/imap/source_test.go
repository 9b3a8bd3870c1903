package imap

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	emaildomain "github.com/Retr0-XD/FInance-Monkey/internal/email/domain"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const receiptMessage = "From: Netflix <info@netflix.example>\r\n" +
	"To: user@example.org\r\n" +
	"Subject: Your payment receipt\r\n" +
	"Date: Fri, 01 Mar 2024 09:30:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"plain version\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Subscription renewal, Netflix, $15.99 monthly</p>\r\n" +
	"--b1--\r\n"

const lunchMessage = "From: friend@example.org\r\n" +
	"To: user@example.org\r\n" +
	"Subject: Lunch tomorrow?\r\n" +
	"Date: Fri, 01 Mar 2024 10:00:00 +0000\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"Noon works.\r\n"

func TestParseMessage_PrefersHTML(t *testing.T) {
	email, err := ParseMessage(strings.NewReader(receiptMessage))
	require.NoError(t, err)

	assert.Equal(t, "Your payment receipt", email.Subject)
	assert.Contains(t, email.From, "info@netflix.example")
	assert.Equal(t, "Subscription renewal, Netflix, $15.99 monthly", email.Body)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), email.ReceivedAt)
}

func TestParseMessage_PlainSinglePart(t *testing.T) {
	email, err := ParseMessage(strings.NewReader(lunchMessage))
	require.NoError(t, err)

	assert.Equal(t, "Lunch tomorrow?", email.Subject)
	assert.Equal(t, "Noon works.", email.Body)
}

func TestBuildCriteria(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := BuildCriteria(since)
	assert.Equal(t, since, c.Since)
	require.Len(t, c.Or, 1)
	assert.Equal(t, "payment", c.Or[0][0].Header.Get("Subject"))

	// Walk the OR chain to the last keyword
	node := c
	for len(node.Or) > 0 {
		node = node.Or[0][1]
	}
	assert.Equal(t, "purchase", node.Header.Get("Subject"))

	assert.True(t, BuildCriteria(time.Time{}).Since.IsZero())
}

func startServer(t *testing.T, messages ...string) string {
	t.Helper()

	be := memory.New()
	u, err := be.Login(nil, "username", "password")
	require.NoError(t, err)
	inbox, err := u.GetMailbox("INBOX")
	require.NoError(t, err)
	for i, m := range messages {
		date := time.Date(2024, 3, 1, 9, 30+i, 0, 0, time.UTC)
		require.NoError(t, inbox.CreateMessage(nil, date, bytes.NewBufferString(m)))
	}

	s := server.New(be)
	s.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(l) }()
	t.Cleanup(func() { _ = s.Close() })

	return l.Addr().String()
}

func TestSource_FetchAgainstServer(t *testing.T) {
	addr := startServer(t, receiptMessage, lunchMessage)
	src := NewSource(5*time.Second, WithoutTLS())
	creds := emaildomain.Credentials{EmailAddress: "username", AccessToken: "password", ServerAddr: addr}

	emails, err := src.Fetch(context.Background(), creds, emaildomain.FetchRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, emails, 1)

	assert.Equal(t, "Your payment receipt", emails[0].Subject)
	assert.Regexp(t, `^\d+:\d+$`, emails[0].ID)
	assert.Contains(t, emails[0].Body, "$15.99")
}

func TestSource_ProbeRejectsBadPassword(t *testing.T) {
	addr := startServer(t)
	src := NewSource(5*time.Second, WithoutTLS())

	require.NoError(t, src.Probe(context.Background(), emaildomain.Credentials{EmailAddress: "username", AccessToken: "password", ServerAddr: addr}))

	err := src.Probe(context.Background(), emaildomain.Credentials{EmailAddress: "username", AccessToken: "wrong", ServerAddr: addr})
	require.Error(t, err)
	assert.ErrorIs(t, err, emaildomain.ErrSourceUnavailable)
	assert.True(t, emaildomain.IsPermanent(err))
}

func TestSource_DialFailureIsTransient(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	src := NewSource(time.Second, WithoutTLS())
	err = src.Probe(context.Background(), emaildomain.Credentials{EmailAddress: "u", AccessToken: "p", ServerAddr: addr})
	require.Error(t, err)
	assert.ErrorIs(t, err, emaildomain.ErrSourceUnavailable)
	assert.False(t, emaildomain.IsPermanent(err))
}
