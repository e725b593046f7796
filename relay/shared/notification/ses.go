package notification

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type SESEmailer struct {
	client     *ses.Client
	sender     string
	recipients []string
	charSet    string
}

func NewEmailer(client *ses.Client, sender string, recipients []string) (*SESEmailer, error) {
	if err := LoadTemplates(); err != nil {
		return nil, err
	}
	return &SESEmailer{
		client:     client,
		sender:     sender,
		recipients: recipients,
		charSet:    "UTF-8",
	}, nil
}

type htmlEmail struct {
	Subject string
	Body    string
}

func (e *SESEmailer) SendTransferFailures(ctx context.Context, summary FailureSummary) error {
	body, err := TransferFailuresEmailBody(summary)
	if err != nil {
		return err
	}
	return e.sendEmail(ctx, htmlEmail{
		Subject: fmt.Sprintf("SFTP Relay: %d transfer(s) failed", len(summary.Failures)),
		Body:    body,
	})
}

func (e *SESEmailer) sendEmail(ctx context.Context, email htmlEmail) error {
	sendInput := &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: e.recipients,
		},
		Message: &types.Message{
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(email.Body),
					Charset: aws.String(e.charSet),
				},
			},
			Subject: &types.Content{
				Data:    aws.String(email.Subject),
				Charset: aws.String(e.charSet),
			},
		},
		Source: aws.String(e.sender),
	}
	if _, err := e.client.SendEmail(ctx, sendInput); err != nil {
		return fmt.Errorf("error sending email from %s to %v: %w",
			e.sender,
			e.recipients,
			err)
	}
	return nil
}
