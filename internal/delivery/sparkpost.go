package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const sparkPostBaseURL = "https://api.sparkpost.com/api/v1"

// SparkPostProvider sends through the SparkPost transmissions API.
type SparkPostProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewSparkPostProvider creates a SparkPost provider. The chain owns
// retry; the HTTP client here only carries the per-request timeout.
func NewSparkPostProvider(apiKey string, timeout time.Duration) *SparkPostProvider {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &SparkPostProvider{
		apiKey:     apiKey,
		baseURL:    sparkPostBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *SparkPostProvider) Name() string { return "sparkpost" }

type spAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type spRecipient struct {
	Address  spAddress              `json:"address"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type spAttachment struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Data string `json:"data"`
}

type spContent struct {
	From        spAddress      `json:"from"`
	Subject     string         `json:"subject"`
	HTML        string         `json:"html,omitempty"`
	Text        string         `json:"text,omitempty"`
	ReplyTo     string         `json:"reply_to,omitempty"`
	Attachments []spAttachment `json:"attachments,omitempty"`
}

type spTransmission struct {
	Recipients []spRecipient `json:"recipients"`
	Content    spContent     `json:"content"`
}

func (p *SparkPostProvider) Send(ctx context.Context, msg *Message) (*ProviderResult, error) {
	content := spContent{
		From:    spAddress{Email: msg.FromEmail, Name: msg.FromName},
		Subject: msg.Subject,
		HTML:    msg.HTMLBody,
		Text:    msg.TextBody,
		ReplyTo: msg.ReplyTo,
	}
	if msg.Attachment != nil {
		content.Attachments = []spAttachment{{
			Type: msg.Attachment.ContentType,
			Name: msg.Attachment.Filename,
			Data: base64.StdEncoding.EncodeToString(msg.Attachment.Data),
		}}
	}

	transmission := spTransmission{
		Recipients: []spRecipient{{
			Address:  spAddress{Email: msg.To, Name: msg.ToName},
			Metadata: msg.Metadata,
		}},
		Content: content,
	}

	jsonData, err := json.Marshal(transmission)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transmission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/transmissions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResponse struct {
		Results struct {
			ID string `json:"id"`
		} `json:"results"`
		Errors []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}

	if resp.StatusCode >= 400 {
		var errMsgs []string
		for _, e := range apiResponse.Errors {
			errMsgs = append(errMsgs, fmt.Sprintf("%s: %s", e.Code, e.Message))
		}
		return nil, fmt.Errorf("SparkPost API error %d: %v", resp.StatusCode, errMsgs)
	}

	return &ProviderResult{MessageID: apiResponse.Results.ID}, nil
}

var _ Provider = (*SparkPostProvider)(nil)
