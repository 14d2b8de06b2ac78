package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ollmchat/permission"
)

const webFetchDoc = `Fetch a URL with HTTP GET and return the response body as text.
@param url {string} required Absolute http or https URL
@param max_bytes {integer} optional Maximum number of body bytes to return (default 100000)`

const fetchTimeout = 30 * time.Second

type WebFetch struct {
	*Base
	client *http.Client
}

type webFetchArgs struct {
	URL      string `json:"url"`
	MaxBytes int    `json:"max_bytes"`
}

// NewWebFetch uses client, or a client with a 30s timeout when nil.
func NewWebFetch(client *http.Client) *WebFetch {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &WebFetch{Base: NewBase("web_fetch", webFetchDoc), client: client}
}

func parseFetchURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: only absolute http and https URLs are supported", raw)
	}
	return u, nil
}

// Prepare asks for read access to the origin, "scheme://host".
func (t *WebFetch) Prepare(ctx context.Context, args Args) (*permission.Request, error) {
	var a webFetchArgs
	if err := t.Bind(args, &a); err != nil {
		return nil, err
	}
	u, err := parseFetchURL(a.URL)
	if err != nil {
		return nil, err
	}
	origin := u.Scheme + "://" + u.Host
	return &permission.Request{
		TargetPath: origin,
		Operation:  permission.Read,
		Question:   fmt.Sprintf("Allow web_fetch to fetch %s?", a.URL),
	}, nil
}

func (t *WebFetch) Run(ctx context.Context, args Args) (string, error) {
	var a webFetchArgs
	if err := t.Bind(args, &a); err != nil {
		return "", err
	}
	u, err := parseFetchURL(a.URL)
	if err != nil {
		return "", err
	}
	limit := a.MaxBytes
	if limit <= 0 || limit > maxFetchBytes {
		limit = maxFetchBytes
	}

	Status(ctx, "fetching "+u.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, u)
	}

	text, cut := Head(string(body), limit)
	if cut {
		text += "\n[... response truncated ...]"
	}
	return text, nil
}
