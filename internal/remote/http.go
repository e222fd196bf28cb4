package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tillpoint/patron/internal/fault"
	"github.com/tillpoint/patron/internal/schema"
)

// HTTPClient talks to the directory service's REST API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client for the directory API at baseURL.
// The token is sent as a bearer credential on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchCustomers implements Client.FetchCustomers.
func (c *HTTPClient) FetchCustomers(ctx context.Context, venueID string, page, perPage int, updatedSince *time.Time) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if updatedSince != nil {
		q.Set("updated_since", updatedSince.UTC().Format(time.RFC3339))
	}

	endpoint := fmt.Sprintf("%s/api/v1/venues/%s/customers?%s",
		c.baseURL, url.PathEscape(venueID), q.Encode())

	var result Page
	if err := c.do(ctx, http.MethodGet, endpoint, nil, "", &result); err != nil {
		return nil, fmt.Errorf("failed to fetch customers page %d: %w", page, err)
	}
	return &result, nil
}

// CreateCustomer implements Client.CreateCustomer.
func (c *HTTPClient) CreateCustomer(ctx context.Context, venueID string, fields CustomerFields) (*schema.CustomerRecord, error) {
	endpoint := fmt.Sprintf("%s/api/v1/venues/%s/customers", c.baseURL, url.PathEscape(venueID))

	var rec schema.CustomerRecord
	if err := c.do(ctx, http.MethodPost, endpoint, fields, "", &rec); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return &rec, nil
}

// UpdateCustomer implements Client.UpdateCustomer.
func (c *HTTPClient) UpdateCustomer(ctx context.Context, venueID string, remoteID int64, fields CustomerFields) (*schema.CustomerRecord, error) {
	endpoint := fmt.Sprintf("%s/api/v1/venues/%s/customers/%d",
		c.baseURL, url.PathEscape(venueID), remoteID)

	var rec schema.CustomerRecord
	if err := c.do(ctx, http.MethodPut, endpoint, fields, "", &rec); err != nil {
		return nil, fmt.Errorf("failed to update customer %d: %w", remoteID, err)
	}
	return &rec, nil
}

// SubmitCheckIn implements Client.SubmitCheckIn.
func (c *HTTPClient) SubmitCheckIn(ctx context.Context, sub CheckInSubmission) (*CheckInResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/venues/%s/checkins", c.baseURL, url.PathEscape(sub.VenueID))

	var resp CheckInResponse
	if err := c.do(ctx, http.MethodPost, endpoint, sub, sub.IdempotencyKey, &resp); err != nil {
		return nil, fmt.Errorf("failed to submit check-in: %w", err)
	}
	return &resp, nil
}

// do performs one request and decodes a JSON response into out.
// Transport failures and non-2xx statuses wrap fault.ErrRemoteUnavailable.
func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body any, idempotencyKey string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", fault.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body for the log line, then discard.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: %s returned %d: %s",
			fault.ErrRemoteUnavailable, endpoint, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
