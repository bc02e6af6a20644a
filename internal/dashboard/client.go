package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crisiswatch/internal/domain"
)

// Client is the typed HTTP client for the crisis backend. Run requests
// use a dedicated client without a timeout because the backend may hold
// the request open until the pipeline finishes.
type Client struct {
	baseURL string
	http    *http.Client
	longRun *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		longRun: &http.Client{},
	}
}

func (c *Client) GetStatus(ctx context.Context) (domain.RunStatus, error) {
	var out struct {
		Status domain.RunStatus `json:"status"`
	}
	if err := c.getJSON(ctx, "/status", &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) GetEvents(ctx context.Context) ([]domain.Event, error) {
	var out struct {
		Events []domain.Event `json:"events"`
	}
	if err := c.getJSON(ctx, "/events", &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) GetDecisions(ctx context.Context) (domain.Decisions, error) {
	var out domain.Decisions
	if err := c.getJSON(ctx, "/decisions", &out); err != nil {
		return domain.Decisions{}, err
	}
	return out, nil
}

func (c *Client) GetLogs(ctx context.Context) (string, error) {
	var out struct {
		Logs string `json:"logs"`
	}
	if err := c.getJSON(ctx, "/logs", &out); err != nil {
		return "", err
	}
	return out.Logs, nil
}

func (c *Client) GetTweets(ctx context.Context, wave int) (domain.Wave, error) {
	var out domain.Wave
	if err := c.getJSON(ctx, fmt.Sprintf("/tweets/%d", wave), &out); err != nil {
		return domain.Wave{}, err
	}
	return out, nil
}

// Run triggers the pipeline and blocks until the backend responds,
// which may be when the run has already finished.
func (c *Client) Run(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", nil)
	if err != nil {
		return err
	}
	resp, err := c.longRun.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

func (c *Client) InjectCrisis(ctx context.Context, wave int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/inject-crisis/%d", c.baseURL, wave), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return err
	}
	return nil
}
