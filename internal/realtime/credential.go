package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/lexiqai/voice-scribe/internal/resilience"
)

// CredentialSource yields the short-lived secret for one session
type CredentialSource interface {
	Fetch(ctx context.Context) (string, error)
}

type credentialResponse struct {
	ClientSecret *struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at,omitempty"`
	} `json:"client_secret"`
}

// CredentialClient fetches ephemeral session secrets from the token issuer
type CredentialClient struct {
	http    *resty.Client
	url     string
	breaker *resilience.CircuitBreaker
}

// NewCredentialClient creates a client for the issuer at url.
// apiKey, if set, is sent as a bearer token. breaker may be nil.
func NewCredentialClient(url, apiKey string, breaker *resilience.CircuitBreaker) *CredentialClient {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &CredentialClient{
		http:    client,
		url:     url,
		breaker: breaker,
	}
}

// Fetch requests a new credential. Any failure, including a response
// without client_secret.value, is a ConnectionError.
func (c *CredentialClient) Fetch(ctx context.Context) (string, error) {
	var secret string
	call := func(ctx context.Context) error {
		var err error
		secret, err = c.fetch(ctx)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Call(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return "", &ConnectionError{Op: "credential", Err: fmt.Errorf("token issuer unavailable: %w", err)}
		}
		return "", AsConnectionError("credential", err)
	}
	return secret, nil
}

func (c *CredentialClient) fetch(ctx context.Context) (string, error) {
	var body credentialResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		ForceContentType("application/json").
		Post(c.url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("token request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("token issuer returned status %d", resp.StatusCode())
	}
	if body.ClientSecret == nil || body.ClientSecret.Value == "" {
		return "", errors.New("token response missing client_secret.value")
	}
	return body.ClientSecret.Value, nil
}
