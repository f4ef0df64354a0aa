package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/avelery/jobdeck/internal/models"
)

// AlertSender notifies a user of a sign-in from a device they have not used
// before.
type AlertSender interface {
	SendNewDeviceAlert(ctx context.Context, user *models.User, session *models.Session) error
}

// AWSSESEmailService sends alert emails using AWS SES.
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service.
func NewAWSSESEmailService(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendNewDeviceAlert emails the user about a sign-in from an unrecognized
// device. The email names the device, location, and time so the user can
// judge whether it was them, and points at the sessions page if it was not.
func (s *AWSSESEmailService) SendNewDeviceAlert(ctx context.Context, user *models.User, session *models.Session) error {
	deviceDesc := session.Describe()
	location := "Unknown location"
	if session.City != "" && session.Country != "" {
		location = session.City + ", " + session.Country
	} else if session.Country != "" {
		location = session.Country
	}
	when := session.CreatedAt.UTC().Format("Jan 2, 2006 at 15:04 MST")

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .details { background-color: #f8f9fa; padding: 15px; border-radius: 4px; margin: 15px 0; }
        .details td { padding: 4px 12px 4px 0; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>New Sign-In to Your Account</h1>
        </div>
        <div class="content">
            <p>Hi %s,</p>
            <p>Your account was just signed in to from a device we haven't seen before:</p>
            <div class="details">
                <table>
                    <tr><td><strong>Device</strong></td><td>%s</td></tr>
                    <tr><td><strong>Location</strong></td><td>%s</td></tr>
                    <tr><td><strong>IP address</strong></td><td>%s</td></tr>
                    <tr><td><strong>Time</strong></td><td>%s</td></tr>
                </table>
            </div>
            <p>If this was you, no action is needed.</p>
            <div class="warning">
                <strong>Wasn't you?</strong> Open your account's active sessions page, sign the
                device out, and change your password right away.
            </div>
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, user.Name, deviceDesc, location, session.IPAddress, when)

	textBody := fmt.Sprintf(`New Sign-In to Your Account

Hi %s,

Your account was just signed in to from a device we haven't seen before:

Device:     %s
Location:   %s
IP address: %s
Time:       %s

If this was you, no action is needed.

Wasn't you? Open your account's active sessions page, sign the device out,
and change your password right away.

This is an automated message. Please do not reply to this email.
`, user.Name, deviceDesc, location, session.IPAddress, when)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{user.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("New sign-in from " + deviceDesc),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send new device alert via SES",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("new device alert sent",
		slog.String("user_id", user.ID),
		slog.String("message_id", *result.MessageId))

	return nil
}
