// Package identity resolves recipient ids against the subscriber-identity
// service. Lookup failures are a typed result, not an error: the pipeline's
// policy is fail-open-by-skip, and NotFound and LookupFailed are handled by
// the same code path.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Outcome classifies a recipient lookup.
type Outcome string

const (
	OutcomeFound        Outcome = "FOUND"
	OutcomeNotFound     Outcome = "NOT_FOUND"
	OutcomeLookupFailed Outcome = "LOOKUP_FAILED" // timeout, network error, 5xx
)

// Recipient is the identity service's view of a user.
type Recipient struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

// Lookup is the result of one recipient resolution. Recipient is non-nil
// only when Outcome is FOUND.
type Lookup struct {
	Outcome   Outcome
	Recipient *Recipient
}

// Client is a synchronous, time-bounded HTTP client for recipient lookups.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewClient returns a Client against baseURL. Every lookup is bounded by
// timeout and reported as LOOKUP_FAILED when it elapses.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

// LookupRecipient resolves one recipient id. It never returns an error:
// timeouts and transport failures map to LOOKUP_FAILED, a 404 maps to
// NOT_FOUND, and callers treat both identically (skip with a warning).
func (c *Client) LookupRecipient(ctx context.Context, id string) Lookup {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/internal/recipients/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Lookup{Outcome: OutcomeLookupFailed}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Lookup{Outcome: OutcomeLookupFailed}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Lookup{Outcome: OutcomeNotFound}
	case resp.StatusCode != http.StatusOK:
		return Lookup{Outcome: OutcomeLookupFailed}
	}

	var r Recipient
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Lookup{Outcome: OutcomeLookupFailed}
	}
	if !r.IsActive {
		return Lookup{Outcome: OutcomeNotFound}
	}
	return Lookup{Outcome: OutcomeFound, Recipient: &r}
}
