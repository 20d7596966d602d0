// Package gcal is a minimal Google Calendar v3 client covering the three
// operations the sync engine needs: list (windowed, filtered by private
// extended property), insert, and patch.
package gcal

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

	"github.com/rs/zerolog"

	cserrors "github.com/p-blackswan/calsync-agent/internal/errors"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// listPageSize is the maxResults sent when the caller does not set one.
const listPageSize = 250

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource supplies a bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client wraps the Google Calendar REST API.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	tokens     TokenSource
	logger     zerolog.Logger
}

// NewClient creates a new calendar API client.
func NewClient(tokens TokenSource, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		logger:     logger.With().Str("component", "gcal").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// SetBaseURL overrides the API endpoint (for testing).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// do executes an authenticated API request.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, cserrors.NewAPIError("gcal", resp.StatusCode, string(respBody))
	}

	return resp, nil
}

// decodeResponse reads and decodes a JSON response.
func decodeResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// ListEvents returns one page of events in the query window. Recurring
// events are expanded into instances so the private-property filter sees
// every occurrence.
func (c *Client) ListEvents(ctx context.Context, q ListQuery) (*EventPage, error) {
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = listPageSize
	}

	params := url.Values{}
	params.Set("timeMin", q.TimeMin.UTC().Format(time.RFC3339))
	params.Set("timeMax", q.TimeMax.UTC().Format(time.RFC3339))
	params.Set("singleEvents", "true")
	params.Set("maxResults", strconv.Itoa(maxResults))
	if q.PrivateProperty != "" {
		params.Set("privateExtendedProperty", q.PrivateProperty)
	}
	if q.PageToken != "" {
		params.Set("pageToken", q.PageToken)
	}

	resp, err := c.do(ctx, http.MethodGet, "/calendars/"+url.PathEscape(q.CalendarID)+"/events", params, nil)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	var page EventPage
	if err := decodeResponse(resp, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Insert creates a new event; the store assigns the event ID.
func (c *Client) Insert(ctx context.Context, calendarID string, body *EventBody) (*Event, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling event: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/calendars/"+url.PathEscape(calendarID)+"/events", nil, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}

	var ev Event
	if err := decodeResponse(resp, &ev); err != nil {
		return nil, err
	}
	c.logger.Info().Str("event_id", ev.ID).Str("source_id", ev.SourceID()).Msg("event created")
	return &ev, nil
}

// Patch updates an existing event in place. The store leaves fields absent
// from the body unchanged, but callers here always send the full body.
func (c *Client) Patch(ctx context.Context, calendarID, eventID string, body *EventBody) (*Event, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling event: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPatch, "/calendars/"+url.PathEscape(calendarID)+"/events/"+url.PathEscape(eventID), nil, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("patching event %s: %w", eventID, err)
	}

	var ev Event
	if err := decodeResponse(resp, &ev); err != nil {
		return nil, err
	}
	c.logger.Info().Str("event_id", ev.ID).Str("source_id", ev.SourceID()).Msg("event updated")
	return &ev, nil
}
