package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/notify-engine/internal/notification"
	"github.com/ignite/notify-engine/internal/pkg/httpretry"
	"github.com/ignite/notify-engine/internal/pkg/logger"
)

// GatewayProvider sends SMS through the gateway's REST messaging API
// (form-encoded POST with basic auth, JSON responses). Sends go out on a
// plain client because the API is not idempotent; status queries use the
// retrying client.
type GatewayProvider struct {
	accountID    string
	authToken    string
	baseURL      string
	client       *http.Client
	statusClient httpretry.HTTPDoer
}

// NewGatewayProvider creates an SMS gateway provider.
func NewGatewayProvider(accountID, authToken, baseURL string, timeout time.Duration) (*GatewayProvider, error) {
	if accountID == "" || authToken == "" {
		return nil, fmt.Errorf("SMS gateway credentials missing")
	}
	if baseURL == "" {
		baseURL = "https://api.smsgateway.example.com/v1"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	return &GatewayProvider{
		accountID:    accountID,
		authToken:    authToken,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		statusClient: httpretry.NewRetryClient(client, 3),
	}, nil
}

// gatewayResponse is the JSON body for both send and status calls.
type gatewayResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// SendSMS delivers one message part through the gateway.
func (p *GatewayProvider) SendSMS(ctx context.Context, msg *SMSMessage) (*SMSResult, error) {
	form := url.Values{}
	form.Add("to", msg.To)
	form.Add("from", msg.From)
	form.Add("body", msg.Body)
	if msg.Rich {
		form.Add("format", "mms")
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/messages", p.baseURL, p.accountID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.accountID, p.authToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &notification.ProviderError{
			Channel: notification.ChannelSMS,
			Code:    "GATEWAY_UNREACHABLE",
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var gw gatewayResponse
	json.Unmarshal(body, &gw)

	if resp.StatusCode >= 400 {
		code := gw.ErrorCode
		if code == "" {
			code = fmt.Sprintf("GATEWAY_HTTP_%d", resp.StatusCode)
		}
		message := gw.ErrorMessage
		if message == "" {
			message = string(body)
		}
		return nil, &notification.ProviderError{
			Channel: notification.ChannelSMS,
			Code:    code,
			Message: message,
		}
	}

	log.Printf("[SMSGateway] Sent to %s (id: %s)", logger.RedactPhone(msg.To), gw.ID)
	return &SMSResult{MessageID: gw.ID, StatusCode: resp.StatusCode, SentAt: time.Now()}, nil
}

// QueryStatus fetches the delivery status of a previously accepted message.
func (p *GatewayProvider) QueryStatus(ctx context.Context, messageID string) (string, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/messages/%s", p.baseURL, p.accountID, messageID)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(p.accountID, p.authToken)

	resp, err := p.statusClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("query status: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("gateway status error %d: %s", resp.StatusCode, string(body))
	}

	var gw gatewayResponse
	if err := json.Unmarshal(body, &gw); err != nil {
		return "", fmt.Errorf("parse status response: %w", err)
	}
	return gw.Status, nil
}
