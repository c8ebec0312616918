// internal/notify/notifier_test.go
package notify

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permit-intake/internal/common/config"
	"permit-intake/internal/common/logger"
	"permit-intake/internal/models"
)

type fakeSMS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSMS) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	return &sns.PublishOutput{}, nil
}

type fakeEmail struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeEmail) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	return &ses.SendEmailOutput{}, nil
}

func testConfig(sms, email bool) config.NotificationConfig {
	var cfg config.NotificationConfig
	cfg.SMS.Enabled = sms
	cfg.Email.Enabled = email
	cfg.Email.FromEmail = "permits@example.com"
	return cfg
}

func testServer() config.ServerConfig {
	return config.ServerConfig{BaseURL: "https://permits.example.com"}
}

func testApplication() *models.Application {
	now := time.Now()
	return &models.Application{
		TrackingID:         "APP-20270615-AB12",
		EstablishmentName:  "The Rolling Scone",
		EstablishmentEmail: "info@rollingscone.com",
		OwnerName:          "Sam Baker",
		OwnerPhone:         "5559876543",
		SubmittedAt:        &now,
	}
}

func TestSendSessionLink(t *testing.T) {
	sms := &fakeSMS{}
	n := NewNotifier(sms, nil, testConfig(true, false), testServer(), "+15550001111", logger.NewTestLogger(t))

	err := n.SendSessionLink(context.Background(), "5551234567", "sess-1")
	require.NoError(t, err)
	require.Len(t, sms.inputs, 1)

	assert.Equal(t, "+15551234567", *sms.inputs[0].PhoneNumber)
	assert.Contains(t, *sms.inputs[0].Message, "https://permits.example.com/session/sess-1")
	assert.Contains(t, *sms.inputs[0].Message, "+15550001111")
}

func TestSendSessionLink_DisabledSkips(t *testing.T) {
	sms := &fakeSMS{}
	n := NewNotifier(sms, nil, testConfig(false, false), testServer(), "+15550001111", logger.NewTestLogger(t))

	err := n.SendSessionLink(context.Background(), "5551234567", "sess-1")
	require.NoError(t, err)
	assert.Empty(t, sms.inputs)
}

func TestSendSessionLink_ProviderFailure(t *testing.T) {
	sms := &fakeSMS{err: stderrors.New("throttled")}
	n := NewNotifier(sms, nil, testConfig(true, false), testServer(), "+15550001111", logger.NewTestLogger(t))

	err := n.SendSessionLink(context.Background(), "5551234567", "sess-1")
	assert.Error(t, err)
}

func TestSendConfirmationEmail(t *testing.T) {
	email := &fakeEmail{}
	n := NewNotifier(nil, email, testConfig(false, true), testServer(), "+15550001111", logger.NewTestLogger(t))

	n.SendConfirmationEmail(context.Background(), testApplication())
	require.Len(t, email.inputs, 1)

	input := email.inputs[0]
	assert.Equal(t, "permits@example.com", *input.Source)
	assert.Equal(t, []string{"info@rollingscone.com"}, input.Destination.ToAddresses)
	assert.Contains(t, *input.Message.Subject.Data, "APP-20270615-AB12")
	assert.Contains(t, *input.Message.Body.Text.Data, "The Rolling Scone")
	assert.Contains(t, *input.Message.Body.Text.Data, "(555) 987-6543")
}

func TestSendConfirmationEmail_FailureSwallowed(t *testing.T) {
	email := &fakeEmail{err: stderrors.New("rejected")}
	n := NewNotifier(nil, email, testConfig(false, true), testServer(), "+15550001111", logger.NewTestLogger(t))

	assert.NotPanics(t, func() {
		n.SendConfirmationEmail(context.Background(), testApplication())
	})
}

func TestSendConfirmationEmail_DisabledSkips(t *testing.T) {
	email := &fakeEmail{}
	n := NewNotifier(nil, email, testConfig(false, false), testServer(), "+15550001111", logger.NewTestLogger(t))

	n.SendConfirmationEmail(context.Background(), testApplication())
	assert.Empty(t, email.inputs)
}
