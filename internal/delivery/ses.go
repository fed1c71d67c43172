package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sesClient is the slice of the sesv2 API the provider uses. Narrowed
// for test fakes.
type sesClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESProvider sends through AWS SES v2. Messages without attachments use
// Simple content; attachments force a raw MIME build.
type SESProvider struct {
	client sesClient
}

// NewSESProvider initializes the AWS SDK client from static credentials.
func NewSESProvider(accessKey, secretKey, region string) (*SESProvider, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing AWS config: %w", err)
	}
	return &SESProvider{client: sesv2.NewFromConfig(cfg)}, nil
}

func (p *SESProvider) Name() string { return "ses" }

func (p *SESProvider) Send(ctx context.Context, msg *Message) (*ProviderResult, error) {
	var input *sesv2.SendEmailInput
	if msg.Attachment != nil {
		raw, err := buildRawMIME(msg)
		if err != nil {
			return nil, fmt.Errorf("building MIME message: %w", err)
		}
		input = &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(fromAddress(msg)),
			Destination:      &types.Destination{ToAddresses: []string{msg.To}},
			Content:          &types.EmailContent{Raw: &types.RawMessage{Data: raw}},
		}
	} else {
		body := &types.Body{}
		if msg.HTMLBody != "" {
			body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
		}
		if msg.TextBody != "" {
			body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
		}
		input = &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(fromAddress(msg)),
			Destination:      &types.Destination{ToAddresses: []string{msg.To}},
			Content: &types.EmailContent{
				Simple: &types.Message{
					Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
					Body:    body,
				},
			},
		}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("SES send failed: %w", err)
	}
	return &ProviderResult{MessageID: aws.ToString(out.MessageId)}, nil
}

func fromAddress(msg *Message) string {
	if msg.FromName != "" {
		return fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}
	return msg.FromEmail
}

// buildRawMIME assembles a multipart/mixed message with the text body and
// the attachment.
func buildRawMIME(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", fromAddress(msg))
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", w.Boundary())

	textPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return nil, err
	}
	body := msg.TextBody
	if body == "" {
		body = msg.HTMLBody
	}
	if _, err := textPart.Write([]byte(body)); err != nil {
		return nil, err
	}

	a := msg.Attachment
	attPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {a.ContentType},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", a.Filename)},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64Wrapped(attPart, a.Data); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mimeLineLength is the RFC 2045 limit for an encoded body line. SES
// rejects raw messages containing lines longer than 998 bytes, so the
// attachment base64 must be wrapped, not emitted as one line.
const mimeLineLength = 76

func writeBase64Wrapped(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 0 {
		n := mimeLineLength
		if n > len(enc) {
			n = len(enc)
		}
		if _, err := io.WriteString(w, enc[:n]+"\r\n"); err != nil {
			return err
		}
		enc = enc[n:]
	}
	return nil
}

var _ Provider = (*SESProvider)(nil)
