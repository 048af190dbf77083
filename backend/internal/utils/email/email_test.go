package email

import (
	"strings"
	"testing"
	"time"

	"github.com/parley-dev/parley/shared/config"
	"github.com/stretchr/testify/assert"
)

func TestIsCorrect(t *testing.T) {
	e := New(&config.Email{})

	assert.NoError(t, e.IsCorrect("ada@example.com"))
	assert.Error(t, e.IsCorrect("not-an-email"))
	assert.Error(t, e.IsCorrect("Ada <ada@example.com>"))
	assert.Error(t, e.IsCorrect(""))
}

func TestBuildMessage(t *testing.T) {
	e := New(&config.Email{SMTPServer: "smtp.example.com", Username: "noreply@parley.dev", SenderName: "Parley"})

	msg := string(e.buildMessage("ada@example.com", "Password reset", "follow the link"))
	head, body, ok := strings.Cut(msg, "\r\n\r\n")
	assert.True(t, ok)
	assert.Equal(t, "follow the link", body)
	assert.Contains(t, head, "To: ada@example.com\r\n")
	assert.Contains(t, head, "From: Parley <noreply@parley.dev>\r\n")
	assert.Contains(t, head, "Subject: Password reset\r\n")
	assert.Regexp(t, `Message-ID: <[0-9a-f-]{36}@parley\.dev>`, head)
}

func TestSenderHost(t *testing.T) {
	assert.Equal(t, "parley.dev", New(&config.Email{Username: "bot@parley.dev"}).senderHost())
	assert.Equal(t, "smtp.example.com", New(&config.Email{Username: "bot", SMTPServer: "smtp.example.com"}).senderHost())
}

func TestBuildMessage_EncodesNonASCII(t *testing.T) {
	e := New(&config.Email{Username: "noreply@parley.dev", SenderName: "Párley"})
	e.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	head, _, _ := strings.Cut(string(e.buildMessage("ada@example.com", "Réinitialiser", "x")), "\r\n\r\n")
	assert.Contains(t, head, "Date: Fri, 01 Mar 2024 12:00:00 +0000\r\n")
	assert.Contains(t, head, "Subject: =?utf-8?q?R=C3=A9initialiser?=\r\n")
	assert.Contains(t, head, "From: =?utf-8?q?P=C3=A1rley?= <noreply@parley.dev>\r\n")
}

func TestSend_UnreachableServer(t *testing.T) {
	e := New(&config.Email{SMTPServer: "127.0.0.1", SMTPPort: 1, Timeout: 1, Username: "bot@parley.dev"})
	err := e.Send("ada@example.com", "hi", "body")
	assert.ErrorContains(t, err, "smtp connect")
}
