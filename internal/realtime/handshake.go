package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// maxErrorBody bounds how much of a rejected handshake body is kept in errors
const maxErrorBody = 256

// Handshaker performs the single offer/answer HTTP exchange
type Handshaker struct {
	http    *resty.Client
	baseURL string
	model   string
}

// NewHandshaker creates a handshaker for the endpoint at baseURL
func NewHandshaker(baseURL, model string) *Handshaker {
	return &Handshaker{
		http:    resty.New(),
		baseURL: baseURL,
		model:   model,
	}
}

// Exchange posts the offer SDP and returns the answer SDP.
// A non-2xx response is a ConnectionError; there is no retry.
func (h *Handshaker) Exchange(ctx context.Context, credential, offer string) (string, error) {
	resp, err := h.http.R().
		SetContext(ctx).
		SetAuthToken(credential).
		SetHeader("Content-Type", "application/sdp").
		SetQueryParam("model", h.model).
		SetBody(offer).
		Post(h.baseURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", AsConnectionError("handshake", ctxErr)
		}
		return "", &ConnectionError{Op: "handshake", Err: err}
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		detail := strings.TrimSpace(resp.String())
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
		return "", &ConnectionError{
			Op:  "handshake",
			Err: fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode(), detail),
		}
	}

	// The SDP parser needs the trailing CRLF that resp.String() trims
	answer := string(resp.Body())
	if !strings.HasPrefix(strings.TrimSpace(answer), "v=") {
		return "", &ConnectionError{Op: "handshake", Err: errors.New("response is not a session description")}
	}
	return answer, nil
}
