package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"pulsewatch/pkg/apperror"
)

// Provider delivers one message on one channel. Concrete transports are
// external collaborators reached over HTTP.
type Provider interface {
	Send(ctx context.Context, ch Channel, subject, body string) error
}

type ProviderSet struct {
	email Provider
	sms   Provider
}

func NewProviderSet(email, sms Provider) *ProviderSet {
	return &ProviderSet{email: email, sms: sms}
}

func (p *ProviderSet) For(kind ChannelKind) (Provider, error) {
	const op string = "notify.provider_for"

	switch kind {
	case ChannelEmail:
		return p.email, nil
	case ChannelSMS:
		return p.sms, nil
	default:
		return nil, apperror.New(apperror.InvalidInput, op, nil).
			WithMessage(fmt.Sprintf("unknown channel kind %q", kind))
	}
}

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// HTTPEmailProvider posts to an email relay API.
type HTTPEmailProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPEmailProvider(endpoint, apiKey string, client *http.Client) *HTTPEmailProvider {
	return &HTTPEmailProvider{endpoint: endpoint, apiKey: apiKey, client: client}
}

func (p *HTTPEmailProvider) Send(ctx context.Context, ch Channel, subject, body string) error {
	const op string = "notify.email.send"

	return postJSON(ctx, p.client, p.endpoint, p.apiKey, op, emailPayload{
		To:      ch.Address,
		Subject: subject,
		Body:    body,
	})
}

type smsPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// HTTPSMSProvider posts to an SMS gateway API.
type HTTPSMSProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPSMSProvider(endpoint, apiKey string, client *http.Client) *HTTPSMSProvider {
	return &HTTPSMSProvider{endpoint: endpoint, apiKey: apiKey, client: client}
}

func (p *HTTPSMSProvider) Send(ctx context.Context, ch Channel, subject, body string) error {
	const op string = "notify.sms.send"

	// SMS has no subject line; prepend it
	return postJSON(ctx, p.client, p.endpoint, p.apiKey, op, smsPayload{
		To:      ch.Address,
		Message: subject + "\n" + body,
	})
}

func postJSON(ctx context.Context, client *http.Client, endpoint, apiKey, op string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperror.New(apperror.Internal, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return apperror.New(apperror.Internal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return apperror.New(apperror.Dependency, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperror.New(apperror.Dependency, op, fmt.Errorf("provider returned status %d", resp.StatusCode))
	}
	return nil
}
