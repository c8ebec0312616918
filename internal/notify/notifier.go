// Package notify sends the two outbound messages this service produces: the
// SMS carrying a session link when a caller asks to start by phone, and the
// confirmation email carrying a tracking id after an application is created.
// Both are best effort; delivery failure never fails the primary operation.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"permit-intake/internal/common/config"
	"permit-intake/internal/common/errors"
	"permit-intake/internal/common/logger"
	"permit-intake/internal/models"
	"permit-intake/internal/permit"
)

// SMSClient matches the SNS wrapper in internal/common/aws.
type SMSClient interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// EmailClient matches the SES wrapper in internal/common/aws.
type EmailClient interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

type Notifier struct {
	sms    SMSClient
	email  EmailClient
	cfg    config.NotificationConfig
	server config.ServerConfig
	phone  string // E.164 callback number callers can dial instead
	logger logger.Logger
}

func NewNotifier(sms SMSClient, email EmailClient, cfg config.NotificationConfig, server config.ServerConfig, callbackNumber string, log logger.Logger) *Notifier {
	return &Notifier{
		sms:    sms,
		email:  email,
		cfg:    cfg,
		server: server,
		phone:  callbackNumber,
		logger: log,
	}
}

// SendSessionLink texts the caller a link to the live session view. Returns
// a StandardError so the HTTP layer can report failures on this path; the
// caller decides whether that failure is fatal.
func (n *Notifier) SendSessionLink(ctx context.Context, phoneNumber, sessionID string) error {
	if !n.cfg.SMS.Enabled || n.sms == nil {
		n.logger.Info("sms disabled, skipping session link", map[string]interface{}{
			"sessionId": sessionID,
		})
		return nil
	}

	link := fmt.Sprintf("%s/session/%s", n.server.BaseURL, sessionID)
	message := fmt.Sprintf(
		"Your food permit application session is ready: %s\nOr call %s to apply by phone.",
		link, n.phone,
	)

	_, err := n.sms.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String("+1" + phoneNumber),
		Message:     aws.String(message),
	})
	if err != nil {
		n.logger.Error("failed to send session link sms", map[string]interface{}{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
		return errors.NewSMSSendFailedError(err)
	}

	n.logger.Info("session link sent", map[string]interface{}{"sessionId": sessionID})
	return nil
}

// SendConfirmationEmail mails the applicant their tracking id. Failures are
// logged and swallowed; the application is already created.
func (n *Notifier) SendConfirmationEmail(ctx context.Context, app *models.Application) {
	if !n.cfg.Email.Enabled || n.email == nil {
		return
	}

	subject := fmt.Sprintf("Food permit application received: %s", app.TrackingID)
	body := fmt.Sprintf(
		"Hello %s,\n\nWe received your food permit application for %s.\n"+
			"Your tracking id is %s. Keep it for status lookups.\n\n"+
			"We will reach you at %s with any questions.\n",
		app.OwnerName, app.EstablishmentName, app.TrackingID,
		permit.FormatPhoneNumber(app.OwnerPhone),
	)

	_, err := n.email.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.cfg.Email.FromEmail),
		Destination: &types.Destination{ToAddresses: []string{app.EstablishmentEmail}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		n.logger.Error("failed to send confirmation email", map[string]interface{}{
			"trackingId": app.TrackingID,
			"error":      err.Error(),
		})
		return
	}
	n.logger.Info("confirmation email sent", map[string]interface{}{
		"trackingId": app.TrackingID,
	})
}
