// Package directory provides a rate-limited client for the event organizer's
// attendee directory. Published profiles enrich own cards at session start.
package directory

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
	"github.com/cardlinkapp/cardlink-server/internal/ratelimit"
)

const (
	// Burst allows a handful of lookups at session-start spikes.
	defaultBurst = 5

	// HTTP client settings
	defaultTimeout = 10 * time.Second
)

// Client is a rate-limited attendee directory client.
// It implements the exchange service's ProfileSource.
type Client struct {
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	baseURL *url.URL
	logger  *slog.Logger
}

// New creates a new directory client. requestsPerMinute caps outbound
// lookups against the organizer's server.
func New(baseURL string, requestsPerMinute int, logger *slog.Logger) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse directory URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("directory URL must be http or https, got %q", baseURL)
	}

	return &Client{
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: ratelimit.New(float64(requestsPerMinute)/60.0, defaultBurst),
		baseURL: parsed,
		logger:  logger,
	}, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// profileResponse is the organizer directory's attendee payload.
type profileResponse struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Title     string `json:"title"`
	Company   string `json:"company"`
	Mobile    string `json:"mobile"`
	Email     string `json:"email"`
	LinkedIn  string `json:"linkedin"`
	Twitter   string `json:"twitter"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

// FetchProfile fetches the published directory profile for a user.
// A nil card with nil error means the user has no published profile.
func (c *Client) FetchProfile(ctx context.Context, scope domain.Scope) (*domain.Card, error) {
	body, err := c.doRequest(ctx, fmt.Sprintf("/events/%s/attendees/%s",
		url.PathEscape(scope.EventID), url.PathEscape(scope.UserID)))
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, wrapError("fetchProfile", scope.UserID, err)
	}

	var profile profileResponse
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, wrapError("fetchProfile", scope.UserID, fmt.Errorf("decode profile: %w", err))
	}

	card := &domain.Card{
		ID:        scope.UserID,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Title:     profile.Title,
		Company:   profile.Company,
		Mobile:    profile.Mobile,
		Email:     profile.Email,
		LinkedIn:  profile.LinkedIn,
		Twitter:   profile.Twitter,
		AvatarURL: profile.AvatarURL,
		// Rich-text bios come down as HTML
		Notes: htmlToMarkdown(profile.Bio),
	}
	return card, nil
}

// doRequest executes an HTTP request with rate limiting.
func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	// One shared bucket per directory host
	if err := c.limiter.Wait(ctx, c.baseURL.Host); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "CardLink/1.0")

	c.logger.Debug("directory request", "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusBadRequest:
		return nil, ErrBadRequest
	default:
		if resp.StatusCode >= 500 {
			return nil, ErrServer
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}
