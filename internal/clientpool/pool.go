// Package clientpool holds the set of upstream API clients workers rotate
// through before each request.
//
// Every client gets a unique User-Agent at construction so the upstream
// can never collapse distinct clients into one session. Each client also
// carries its own pacing interval, adjusted up on failure and down on
// success, and is retired (replaced) once its cookie looks "sticky" — the
// upstream is pinning every response from this client to the same cached
// backend instead of serving fresh data.
package clientpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"edge-bridge/internal/upstreamclient"
)

// Client is one pooled ApiClient: the upstream session plus the pacing and
// cookie-stickiness state the pool tracks across requests.
type Client struct {
	API             *upstreamclient.Client
	RequestInterval time.Duration

	lastCookie    string
	cookieRepeats int
}

// Pace sleeps for the client's current pacing interval, or returns early if
// ctx is done — shutdown must never be held up behind a long pacing sleep.
func (c *Client) Pace(ctx context.Context) {
	if c.RequestInterval <= 0 {
		return
	}
	t := time.NewTimer(c.RequestInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// OnSuccess reduces the client's pacing interval by decStep, floored at 0.
func (c *Client) OnSuccess(decStep time.Duration) {
	c.RequestInterval -= decStep
	if c.RequestInterval < 0 {
		c.RequestInterval = 0
	}
}

// OnFailure grows the client's pacing interval by incStep.
func (c *Client) OnFailure(incStep time.Duration) {
	c.RequestInterval += incStep
}

// ObserveCookie records the upstream's session-affinity cookie for this
// response and reports whether the client has now seen the same cookie
// (no progress) dropThreshold times in a row and should be retired.
func (c *Client) ObserveCookie(cookie string, dropThreshold int) (stale bool) {
	if cookie == "" {
		c.cookieRepeats = 0
		c.lastCookie = ""
		return false
	}
	if cookie == c.lastCookie {
		c.cookieRepeats++
	} else {
		c.lastCookie = cookie
		c.cookieRepeats = 1
	}
	return dropThreshold > 0 && c.cookieRepeats >= dropThreshold
}

// Config configures Pool construction.
type Config struct {
	Host, Version, Resource, UserAgentPrefix string
	Timeout                                  time.Duration
	Ceiling                                  int // max concurrently-held clients
}

// Pool is a FIFO of idle clients, created lazily up to Ceiling.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	idle    []*Client
	created int
	notify  chan struct{} // signalled when a client is returned
}

// New creates an empty Pool; clients are created lazily by Take.
func New(cfg Config) *Pool {
	return &Pool{
		cfg:    cfg,
		notify: make(chan struct{}, 1),
	}
}

// Take returns an idle client, creating one if the FIFO is empty and the
// pool hasn't hit its ceiling, or blocking for a returned client if it has.
func (p *Pool) Take(ctx context.Context) (*Client, error) {
	for {
		p.mu.Lock()
		if len(p.idle) > 0 {
			c := p.idle[0]
			p.idle = p.idle[1:]
			p.mu.Unlock()
			return c, nil
		}
		atCeiling := p.cfg.Ceiling > 0 && p.created >= p.cfg.Ceiling
		p.mu.Unlock()

		if !atCeiling {
			c, err := p.create(ctx)
			if err != nil {
				return nil, err
			}
			return c, nil
		}

		select {
		case <-p.notify:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Return puts c back onto the FIFO for the next Take.
func (p *Pool) Return(c *Client) {
	p.mu.Lock()
	p.idle = append(p.idle, c)
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Retire discards c (cookie-sticky or repeatedly failing) and creates its
// replacement, handing the new client back to the caller so a worker that
// just detected staleness can keep going without a second Take round-trip.
func (p *Pool) Retire(ctx context.Context, c *Client) (*Client, error) {
	_ = c // nothing to release explicitly; http.Client has no Close
	p.mu.Lock()
	p.created--
	p.mu.Unlock()
	return p.create(ctx)
}

// Size reports the number of clients currently idle in the pool —
// `free_api_clients` in the stats snapshot.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// create constructs a new ApiClient with a unique user agent and registers
// it against the ceiling. Building an *upstreamclient.Client cannot itself
// fail, so there is no backoff-and-retry loop here; one lives in the feed
// reader instead, around the network calls that can actually fail.
func (p *Pool) create(ctx context.Context) (*Client, error) {
	p.mu.Lock()
	p.created++
	p.mu.Unlock()

	userAgent := fmt.Sprintf("%s/%s", p.cfg.UserAgentPrefix, uuid.New().String())
	api := upstreamclient.New(p.cfg.Host, p.cfg.Version, p.cfg.Resource, userAgent, p.cfg.Timeout)
	return &Client{API: api}, nil
}
