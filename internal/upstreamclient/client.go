// Package upstreamclient is one upstream HTTP session: it fetches a page
// of the changes feed and fetches a single resource document by id.
//
// A Client talks to exactly one upstream session. It carries its own
// http.Client and User-Agent; the client pool (internal/clientpool) is
// responsible for rotating many of these so the upstream never pins all
// traffic to one session.
package upstreamclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"
)

// ResourceRef is the (id, dateModified) tuple the changes feed advertises.
type ResourceRef struct {
	ID           string `json:"id"`
	DateModified string `json:"dateModified"`
}

// ChangesPage is one page of the changes feed.
type ChangesPage struct {
	Data     []ResourceRef `json:"data"`
	NextPage struct {
		Offset string `json:"offset"`
	} `json:"next_page"`
}

// ResourceDocument is an opaque upstream document. The bridge never reads
// anything from it beyond id/dateModified, which are pulled out explicitly
// by the caller.
type ResourceDocument map[string]any

// Client is one upstream API session.
type Client struct {
	host       string
	version    string
	resource   string
	userAgent  string
	httpClient *http.Client

	lastCookie string // Set-Cookie value seen on the most recent response
}

// New creates a Client bound to a single host/version/resource triple and
// a caller-supplied unique user agent. Each Client gets its own cookie jar.
func New(host, version, resource, userAgent string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		host:      host,
		version:   version,
		resource:  resource,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}
}

// UserAgent reports the client's unique User-Agent string.
func (c *Client) UserAgent() string { return c.userAgent }

// LastCookie reports the Set-Cookie value observed on the most recent
// response, used by the client pool to detect upstream session affinity.
// Workers only ever hold a client for the duration of one request, so no
// synchronization is needed here.
func (c *Client) LastCookie() string { return c.lastCookie }

// FetchChanges requests one page of the "all items" changes feed starting
// at offset (empty for the first page).
func (c *Client) FetchChanges(ctx context.Context, limit int, offset string) (ChangesPage, error) {
	q := url.Values{}
	q.Set("mode", "_all_")
	q.Set("limit", strconv.Itoa(limit))
	if offset != "" {
		q.Set("offset", offset)
	}

	u := fmt.Sprintf("%s/api/%s/%s?%s", c.host, c.version, c.resource, q.Encode())

	var page ChangesPage
	if err := c.getJSON(ctx, u, &page); err != nil {
		return ChangesPage{}, err
	}
	return page, nil
}

// FetchResource requests the full document for id.
func (c *Client) FetchResource(ctx context.Context, id string) (ResourceDocument, error) {
	u := fmt.Sprintf("%s/api/%s/%s/%s", c.host, c.version, c.resource, id)

	var envelope struct {
		Data ResourceDocument `json:"data"`
	}
	if err := c.getJSON(ctx, u, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data != nil {
		return envelope.Data, nil
	}
	return nil, ErrMalformed
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &StatusError{Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if cookies := resp.Cookies(); len(cookies) > 0 {
		c.lastCookie = cookies[0].Value
	} else {
		c.lastCookie = ""
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
