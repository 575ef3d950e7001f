// Package upload implements the remote submission endpoint client.
// Failures are mapped onto the shared error taxonomy so the submission
// machine can tell a retryable outage from a rejected payload.
package upload

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/pulsetrack/recorder/pkg/infrastructure/oauth"
	"github.com/pulsetrack/recorder/pkg/types"
)

// Client uploads finished activity payloads over authenticated HTTP.
type Client struct {
	rest *resty.Client
}

// NewClient builds an uploader against the given base URL. The client
// never retries on its own: a re-POST after an ambiguous transport
// failure could duplicate the activity on the remote side, so every
// attempt maps to one explicit submit.
func NewClient(baseURL string, source oauth2.TokenSource) *Client {
	rest := resty.NewWithClient(oauth.NewClient(source)).
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{rest: rest}
}

func (c *Client) Upload(ctx context.Context, payload *types.UploadPayload) (*types.UploadAck, error) {
	var ack types.UploadAck
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&ack).
		Post("/v1/activities")
	if err != nil {
		return nil, &types.NetworkError{Op: "upload activity", Err: err}
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, &types.AuthError{StatusCode: resp.StatusCode(), Reason: resp.Status()}
	case resp.StatusCode() >= 500:
		return nil, &types.NetworkError{Op: "upload activity", StatusCode: resp.StatusCode()}
	case resp.StatusCode() >= 400:
		return nil, &types.ValidationError{Field: "payload", Reason: resp.Status() + ": " + string(resp.Body())}
	}

	if ack.RemoteID == "" {
		return nil, &types.ValidationError{Field: "ack", Reason: "endpoint acknowledged without a remote id"}
	}
	return &ack, nil
}
