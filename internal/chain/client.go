package chain

import (
	"fmt"
	"math/rand/v2"
	"time"

	"proxy-pow-filter/internal/httpadapter"
	"proxy-pow-filter/internal/response"
	"proxy-pow-filter/internal/task"
)

// Logger is the minimal sink the refresher needs; satisfied by
// internal/logging.Logger.
type Logger interface {
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Config controls the background refresh task.
type Config struct {
	Upstream     string        // cluster name passed to the HTTP call adapter
	Path         string        // tip-hash endpoint path
	Capacity     int           // not read by RefreshTask: the ring's capacity is set by NewClient
	BaseInterval time.Duration // defaults to 60s
	Jitter       time.Duration // defaults to 5s
	MaxBackoff   time.Duration // defaults to 10m
	CallTimeout  time.Duration // defaults to 5s
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BaseInterval <= 0 {
		out.BaseInterval = 60 * time.Second
	}
	if out.Jitter <= 0 {
		out.Jitter = 5 * time.Second
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = 10 * time.Minute
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = 5 * time.Second
	}
	return out
}

// Client exposes the read surface (Component F's get_latest_hash and
// check_in_list) over a Ring that is otherwise owned exclusively by the
// background refresh task.
type Client struct {
	ring *Ring
}

// NewClient constructs a Client with an empty ring of the given
// capacity (defaultCapacity if capacity <= 0).
func NewClient(capacity int) *Client {
	return &Client{ring: NewRing(capacity)}
}

// GetLatestHash returns the current chain head, if the ring has ever
// been populated.
func (c *Client) GetLatestHash() (Hash, bool) { return c.ring.Head() }

// CheckInList reports whether h is still an admissible PoW seed.
func (c *Client) CheckInList(h Hash) bool { return c.ring.Contains(h) }

// refreshPhase is the explicit state machine driving the never-ending
// background poll: sleep, dispatch, await, repeat. It never completes —
// Poll always returns false — matching a task spawned once at VM start
// and left running for the VM's lifetime.
type refreshPhase int

const (
	phaseSleep refreshPhase = iota
	phaseDispatch
	phaseAwait
)

// RefreshTask polls the configured upstream for the current chain tip
// and folds distinct hashes into the shared Ring, on a jittered interval
// with exponential backoff on failure.
type RefreshTask struct {
	client *Client
	http   *httpadapter.Adapter
	timers *task.Timers
	clock  func() time.Time
	cfg    Config
	log    Logger

	phase    refreshPhase
	interval time.Duration
	sleep    *task.Sleep
	call     *task.Promise[response.Response]
}

// NewRefreshTask constructs the background poller. clock supplies "now"
// for scheduling sleeps — normally time.Now, overridden in tests.
func NewRefreshTask(client *Client, http *httpadapter.Adapter, timers *task.Timers, clock func() time.Time, cfg Config, log Logger) *RefreshTask {
	cfg = cfg.withDefaults()
	return &RefreshTask{
		client:   client,
		http:     http,
		timers:   timers,
		clock:    clock,
		cfg:      cfg,
		log:      log,
		interval: cfg.BaseInterval,
	}
}

// Poll advances the refresh state machine. It is driven exclusively by
// the task runtime's tick loop, per component F/B's contract — never
// called directly.
func (t *RefreshTask) Poll(wake func()) bool {
	for {
		switch t.phase {
		case phaseSleep:
			if t.sleep == nil {
				t.sleep = task.NewSleep(t.timers, t.clock(), t.interval+jitter(t.cfg.Jitter))
			}
			if !t.sleep.Poll(wake) {
				return false
			}
			t.sleep = nil
			t.phase = phaseDispatch
		case phaseDispatch:
			headers := []response.Header{
				{Name: ":method", Value: "GET"},
				{Name: ":path", Value: t.cfg.Path},
				{Name: ":authority", Value: t.cfg.Upstream},
			}
			p, err := t.http.Call(t.cfg.Upstream, headers, nil, nil, t.cfg.CallTimeout)
			if err != nil {
				t.fail(fmt.Sprintf("dispatch failed: %s", err))
				continue // phaseSleep: arm the next sleep within this same poll
			}
			t.call = p
			t.phase = phaseAwait
		case phaseAwait:
			resp, err, ready := t.call.Poll(wake)
			if !ready {
				return false
			}
			t.call = nil
			if err != nil {
				t.fail(fmt.Sprintf("call rejected: %s", err))
				continue // phaseSleep: arm the next sleep within this same poll
			}
			t.handleResponse(resp)
			continue // phaseSleep: arm the next sleep within this same poll
		}
	}
}

func (t *RefreshTask) handleResponse(resp response.Response) {
	h, err := ParseHash(string(resp.Body))
	if err != nil {
		t.fail(fmt.Sprintf("malformed tip hash body: %s", err))
		return
	}
	if t.client.ring.Push(h) {
		t.log.Debugf("chain: new head %s", h)
	}
	t.interval = t.cfg.BaseInterval
	t.phase = phaseSleep
}

func (t *RefreshTask) fail(reason string) {
	t.interval *= 2
	if t.interval > t.cfg.MaxBackoff {
		t.interval = t.cfg.MaxBackoff
	}
	t.log.Warnf("chain: refresh failed, backing off %s: %s", t.interval, reason)
	t.phase = phaseSleep
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
