// internal/gateway/client.go
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/syagroup/bulksms-backend/internal/errors"
	"github.com/syagroup/bulksms-backend/internal/retry"
)

// AllowedDomains is the fixed set of trusted SMS provider hostnames. The
// gateway URL is tenant-supplied configuration, so anything outside this set
// is rejected before any network call (SSRF defense).
var AllowedDomains = map[string]bool{
	"api.trusted-sms.com": true,
	"api.another-sms.com": true,
	"rest.nexmo.com":      true,
	"api.infobip.com":     true,
	"api.ng.termii.com":   true,
	"bulk.whysms.com":     true,
}

// IsAllowedAPIURL reports whether the URL's hostname is in the allow-list.
func IsAllowedAPIURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	hostname := strings.ToLower(parsed.Hostname())
	return AllowedDomains[hostname]
}

// MaskToken hides a credential for logging: first 4 and last 4 characters
// only, or "****" when the token is 8 characters or shorter.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}

// Payload is the outbound message body expected by the upstream provider.
type Payload struct {
	Recipient string `json:"recipient"`
	SenderID  string `json:"sender_id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}

// Response is the provider's reply to one send. A received HTTP response is
// never retried at the transport layer; whether it counts as delivered is the
// caller's decision via Delivered.
type Response struct {
	StatusCode int
	Status     string // provider-reported logical status, e.g. "success"
	Body       []byte
}

// Delivered reports a success-shaped response: HTTP 200 and the provider body
// reporting logical success.
func (r *Response) Delivered() bool {
	return r.StatusCode == http.StatusOK && r.Status == "success"
}

// Client posts messages to an SMS provider with bounded transport retries.
type Client struct {
	HTTPClient *http.Client
	Retry      retry.Policy
	Logger     *logrus.Logger
}

// NewClient builds a gateway client with the given request timeout and
// transport retry ceiling. Backoff starts at one second and doubles.
func NewClient(timeout time.Duration, retries int, log *logrus.Logger) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		Retry: retry.Policy{
			MaxAttempts: retries,
			BaseDelay:   time.Second,
			Multiplier:  2,
		},
		Logger: log,
	}
}

// Send posts one message to apiURL. It fails with ErrBlockedDestination
// before any network I/O when the hostname is not allow-listed, retries
// transport failures up to the policy ceiling, and wraps the last transport
// error in ErrDeliveryFailed once retries are exhausted.
func (c *Client) Send(apiURL string, p Payload, authToken string) (*Response, error) {
	if !IsAllowedAPIURL(apiURL) {
		return nil, appErrors.NewBlockedDestination(apiURL)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var resp *Response
	attempt := 0
	retryErr := c.Retry.Do(func() error {
		attempt++
		req, err := http.NewRequest(http.MethodPost, apiURL, bytes.NewReader(body))
		if err != nil {
			return retry.Stop(err)
		}
		req.Header.Set("Authorization", "Bearer "+authToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		httpResp, err := c.HTTPClient.Do(req)
		if err != nil {
			c.Logger.WithFields(logrus.Fields{
				"url":     apiURL,
				"attempt": attempt,
				"token":   MaskToken(authToken),
			}).Warnf("gateway POST failed: %v", err)
			return err
		}
		defer httpResp.Body.Close()

		raw, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return err
		}

		resp = &Response{StatusCode: httpResp.StatusCode, Body: raw}
		if len(raw) > 0 {
			var parsed struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(raw, &parsed); err == nil {
				resp.Status = parsed.Status
			}
		}
		return nil
	})
	if retryErr != nil {
		return nil, fmt.Errorf("%w after %d attempts: %v", appErrors.ErrDeliveryFailed, attempt, retryErr)
	}

	c.Logger.WithFields(logrus.Fields{
		"url":      apiURL,
		"attempts": attempt,
		"code":     resp.StatusCode,
		"token":    MaskToken(authToken),
	}).Info("gateway POST completed")

	return resp, nil
}
