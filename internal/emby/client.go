// Package emby is a client for the Emby server REST API.
package emby

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/embywatch/embywatch/internal/config"
)

// ErrNotConfigured is returned when the server host or API key is missing
// from settings. Background loops treat it as skip-this-iteration.
var ErrNotConfigured = errors.New("emby: host or api key not configured")

const (
	defaultTimeout = 10 * time.Second
	imageTimeout   = 35 * time.Second
)

// Client calls the Emby REST API. Connection settings are read from the
// settings store on every call so administrative changes take effect
// without a restart.
type Client struct {
	store      *config.Store
	httpClient *http.Client
}

// New creates a Client bound to the settings store.
func New(store *config.Store) *Client {
	return &Client{
		store:      store,
		httpClient: &http.Client{},
	}
}

// base returns the configured host and API key, or ErrNotConfigured.
func (c *Client) base() (string, string, error) {
	cfg := c.store.Snapshot()
	if cfg.Emby.Host == "" || cfg.Emby.APIKey == "" {
		return "", "", ErrNotConfigured
	}
	return cfg.Emby.Host, cfg.Emby.APIKey, nil
}

// do issues a request against path (relative to the host, api_key appended)
// and decodes the JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any, timeout time.Duration) error {
	host, key, err := c.base()
	if err != nil {
		return err
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", key)

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("emby: marshal body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, host+path+"?"+query.Encode(), reqBody)
	if err != nil {
		return fmt.Errorf("emby: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("emby: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("emby: %s %s: unexpected status %s", method, path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("emby: decode %s: %w", path, err)
		}
	}
	return nil
}

// Sessions returns the current live session list.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.do(ctx, http.MethodGet, "/emby/Sessions", nil, nil, &sessions, defaultTimeout); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Item fetches full item details by id.
func (c *Client) Item(ctx context.Context, id string) (*Item, error) {
	q := url.Values{}
	q.Set("Ids", id)
	q.Set("Fields", "Overview,ProductionYear,CommunityRating,OfficialRating")
	var wrapper struct {
		Items []Item `json:"Items"`
	}
	if err := c.do(ctx, http.MethodGet, "/emby/Items", q, nil, &wrapper, defaultTimeout); err != nil {
		return nil, err
	}
	if len(wrapper.Items) == 0 {
		return nil, fmt.Errorf("emby: item %s not found", id)
	}
	return &wrapper.Items[0], nil
}

// Users lists all accounts on the server.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, "/emby/Users", nil, nil, &users, defaultTimeout); err != nil {
		return nil, err
	}
	return users, nil
}

// SetUserDisabled enables or disables an account. Disabling an already
// disabled account is harmless on the server side.
func (c *Client) SetUserDisabled(ctx context.Context, userID string, disabled bool) error {
	body := map[string]any{"IsDisabled": disabled}
	path := "/emby/Users/" + url.PathEscape(userID) + "/Policy"
	return c.do(ctx, http.MethodPost, path, nil, body, nil, defaultTimeout)
}

// DeleteUser removes an account from the server.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/emby/Users/"+url.PathEscape(userID), nil, nil, nil, defaultTimeout)
}

// Tasks lists the server's scheduled tasks.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := c.do(ctx, http.MethodGet, "/emby/ScheduledTasks", nil, nil, &tasks, defaultTimeout); err != nil {
		return nil, err
	}
	return tasks, nil
}

// RunTask starts a scheduled task by id.
func (c *Client) RunTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/emby/ScheduledTasks/Running/"+url.PathEscape(taskID), nil, nil, nil, defaultTimeout)
}

// Image downloads the primary image for an item. Returns the raw bytes and
// the content type.
func (c *Client) Image(ctx context.Context, itemID string) ([]byte, string, error) {
	host, key, err := c.base()
	if err != nil {
		return nil, "", err
	}

	ctx, cancel := context.WithTimeout(ctx, imageTimeout)
	defer cancel()

	u := host + "/emby/Items/" + url.PathEscape(itemID) + "/Images/Primary?api_key=" + url.QueryEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("emby: build image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("emby: fetch image %s: %w", itemID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("emby: fetch image %s: unexpected status %s", itemID, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("emby: read image %s: %w", itemID, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
