package infra

import (
	"errors"
	"net/smtp"
	"testing"

	"fairtrace/internal/config"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReviewBuildsMessage(t *testing.T) {
	m := NewMailer(&config.Config{SMTPHost: "smtp.test", SMTPPort: 2525, SMTPFrom: "trace@fairtrace.test"})
	var got *email.Email
	var gotAddr string
	m.send = func(e *email.Email, addr string, _ smtp.Auth) error {
		got, gotAddr = e, addr
		return nil
	}

	err := m.SendReview([]string{"review@fairtrace.test"}, "Claim review", []string{"claim <x> partial", "batch 7"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Equal(t, "trace@fairtrace.test", got.From)
	assert.Equal(t, "claim <x> partial\nbatch 7\n", string(got.Text))
	assert.Contains(t, string(got.HTML), "<li>claim &lt;x&gt; partial</li>")
}

func TestSendReviewRequiresHost(t *testing.T) {
	m := NewMailer(&config.Config{})
	assert.False(t, m.Configured())
	assert.Error(t, m.SendReview([]string{"a@b.c"}, "s", nil))
}

func TestSendReviewWrapsTransportError(t *testing.T) {
	m := NewMailer(&config.Config{SMTPHost: "smtp.test", SMTPPort: 25})
	boom := errors.New("connection refused")
	m.send = func(*email.Email, string, smtp.Auth) error { return boom }
	assert.ErrorIs(t, m.SendReview([]string{"a@b.c"}, "s", []string{"x"}), boom)
}
