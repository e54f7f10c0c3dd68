package mailer

import (
	"bytes"
	"errors"
	"testing"

	"cancelflow-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type captureDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *captureDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSendStatusUpdate(t *testing.T) {
	dialer := &captureDialer{}
	svc := NewEmailServiceWithDialer(dialer, "noreply@cancelflow.test", logger.NewNopLogger())

	err := svc.SendStatusUpdate("user@example.com", StatusEmail{
		Subject: "Action needed",
		Heading: "Finish cancelling <Netflix>",
		Lines:   []string{"We could not cancel automatically."},
		Steps:   []string{"Sign in", "Open Account"},
	})
	require.NoError(t, err)
	require.Len(t, dialer.sent, 1)

	msg := dialer.sent[0]
	assert.Equal(t, []string{"user@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Action needed"}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "&lt;Netflix&gt;")
	assert.Contains(t, buf.String(), "Open Account")
}

func TestSendStatusUpdate_DialFailure(t *testing.T) {
	dialer := &captureDialer{err: errors.New("connection refused")}
	svc := NewEmailServiceWithDialer(dialer, "noreply@cancelflow.test", logger.NewNopLogger())

	err := svc.SendStatusUpdate("user@example.com", StatusEmail{Subject: "x", Heading: "y"})
	assert.Error(t, err)
}
