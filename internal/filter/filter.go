// Package filter binds the task runtime, chain client, validator,
// router and config to the host ABI lifecycle: the root-context
// callbacks (on_vm_start, on_configure, on_tick, on_queue_ready,
// create_http_context) and the per-request hook (on_http_request_headers,
// on_http_response_headers). Plugin owns every long-lived component for
// the VM's lifetime; Hook is a thin per-request handle sharing it
// read-only.
package filter

import (
	"fmt"
	"time"

	"proxy-pow-filter/internal/chain"
	"proxy-pow-filter/internal/config"
	"proxy-pow-filter/internal/hostabi"
	"proxy-pow-filter/internal/httpadapter"
	"proxy-pow-filter/internal/kvstore"
	"proxy-pow-filter/internal/logging"
	"proxy-pow-filter/internal/pow"
	"proxy-pow-filter/internal/response"
	"proxy-pow-filter/internal/task"
)

// FilterName is appended to the X-Filter-Name response header, per
// component H's on_http_response_headers contract.
const FilterName = "pow-filter"

// tickPeriod is how often the host invokes on_tick. The task runtime's
// own timers are only as precise as this cadence.
const tickPeriod = 100 * time.Millisecond

const counterNamespace = "pow"

// maxTasks bounds the task table against unbounded growth under load.
// The timer wheel needs no separate cap: every timer is armed by
// exactly one task's Sleep, so its size is already bounded by maxTasks.
const maxTasks = 1024

// RootHost is the subset of the host ABI the Plugin itself calls,
// outside of any particular request.
type RootHost interface {
	hostabi.TickController
	hostabi.LogSink
	hostabi.Dispatcher
	hostabi.KVStore
}

// RequestHost is the per-request subset a Hook calls, bound to one
// context id via SetEffectiveContext.
type RequestHost interface {
	hostabi.PropertyStore
	hostabi.RequestReader
	hostabi.RequestControl
}

// Plugin is the single immutable-after-configure record shared
// read-only across every per-request Hook, for the VM configuration's
// lifetime.
type Plugin struct {
	host  RootHost
	clock func() time.Time

	log     *logging.Logger
	cfg     *config.Config
	runtime *task.Runtime
	timers  *task.Timers
	http    *httpadapter.Adapter
	counter *kvstore.CounterBucket
	chain   *chain.Client
}

// NewPlugin constructs a Plugin bound to host. clock overrides time.Now
// in tests; nil means time.Now.
func NewPlugin(host RootHost, clock func() time.Time) *Plugin {
	if clock == nil {
		clock = time.Now
	}
	return &Plugin{
		host:    host,
		clock:   clock,
		runtime: task.NewRuntime(task.WithMaxTasks(maxTasks)),
		timers:  task.NewTimers(),
		http:    httpadapter.New(host),
		counter: kvstore.New(host, counterNamespace),
	}
}

// OnVMStart sets the host tick cadence. Always returns true: there is no
// log sink configured yet (on_configure hasn't run), so a failure here
// has nowhere to go but must not block VM startup.
func (p *Plugin) OnVMStart() bool {
	_ = p.host.SetTickPeriod(tickPeriod)
	return true
}

// OnConfigure parses raw (the host-provided config blob), wires every
// component against it and spawns the background chain refresher. A
// false return means the host must refuse to activate the plugin — per
// component H, configuration is never partially applied.
func (p *Plugin) OnConfigure(raw []byte) bool {
	cfg, err := config.Parse(raw)
	if err != nil {
		return false
	}
	p.cfg = cfg
	p.log = logging.New(p.host, cfg.LogLevel)
	if err := p.host.SetLogLevel(cfg.LogLevel); err != nil {
		p.log.Warnf("filter: failed to set host log level: %s", err)
	}
	p.chain = chain.NewClient(cfg.ChainRingCapacity)

	refresh := chain.NewRefreshTask(p.chain, p.http, p.timers, p.clock, chain.Config{
		Upstream:     cfg.MempoolUpstreamName,
		Path:         cfg.ChainPollPath,
		Capacity:     cfg.ChainRingCapacity,
		BaseInterval: cfg.ChainPollInterval,
	}, p.log)
	if _, err := p.runtime.Spawn(refresh); err != nil {
		p.log.Errorf("filter: failed to spawn chain refresher: %s", err)
		return false
	}

	p.log.Infof("filter: configured, difficulty=%d routes upstream=%s", cfg.Difficulty, cfg.MempoolUpstreamName)
	return true
}

// OnTick drives the task runtime and then expires due timers, in that
// order: a task woken by a timer that fires during this call is polled
// by the runtime pass of the following OnTick call.
func (p *Plugin) OnTick() {
	p.runtime.OnTick()
	p.timers.Advance(p.clock())
}

// OnQueueReady wakes every task parked on queue.
func (p *Plugin) OnQueueReady(queue task.QueueID) {
	p.runtime.WakeQueue(queue)
}

// OnHTTPCallResponse forwards a completed host HTTP call to the
// adapter, resolving or rejecting its promise.
func (p *Plugin) OnHTTPCallResponse(token uint32, numHeaders, bodySize, numTrailers int, reader hostabi.CallResponseReader) {
	p.http.OnCallResponse(token, numHeaders, bodySize, numTrailers, reader)
}

// CreateHTTPContext constructs the per-request Hook for contextID,
// bound read-only to the shared Plugin.
func (p *Plugin) CreateHTTPContext(contextID uint32, host RequestHost) *Hook {
	return &Hook{plugin: p, contextID: contextID, host: host}
}

// Hook is the per-request handle spawned once per HTTP exchange: a
// context id plus a shared, read-only reference to Plugin.
type Hook struct {
	plugin    *Plugin
	contextID uint32
	host      RequestHost
}

// validateFuture adapts the synchronous Validate call into a task.Future
// so it always runs through Spawn/OnTick rather than synchronously —
// per component B, a caller must never observe re-entrancy into the
// host from within Spawn. Every step pow.Validate takes is itself a
// synchronous hostcall (the only genuinely suspending component is the
// chain refresher), so no real suspension logic is needed here.
type validateFuture struct {
	hook *Hook
	done func(err error)
}

func (f *validateFuture) Poll(func()) bool {
	plugin := f.hook.plugin
	req := pow.Request{
		ClientAddress: f.hook.clientAddress,
		Header:        f.hook.requestHeader,
		Path:          f.hook.requestPathRaw,
	}
	deps := pow.Deps{
		Whitelist:  plugin.cfg.Whitelist,
		Router:     plugin.cfg.Router,
		Counter:    plugin.counter,
		Chain:      plugin.chain,
		Difficulty: plugin.cfg.Difficulty,
		Now:        plugin.clock,
	}
	f.done(pow.Validate(req, deps))
	return true
}

// OnHTTPRequestHeaders spawns the validator and pauses the request;
// per component H, the request resumes or is rejected once the
// validator settles, never inline. The one exception is the difficulty
// probe: once the chain has a head, it is answered directly within this
// call, without spawning anything.
func (p *Plugin) OnHTTPRequestHeaders(h *Hook) {
	if resp, ok := p.difficultyProbe(h); ok {
		h.sendResponse(resp)
		return
	}
	future := &validateFuture{hook: h, done: func(err error) { h.finish(err) }}
	if _, err := p.runtime.Spawn(future); err != nil {
		p.log.Errorf("filter: failed to spawn validator: %s", err)
		h.finish(&response.OtherError{Reason: "failed to spawn validator", Err: err})
	}
}

// difficultyProbe answers the ADDED /api/difficulty debug route before
// any routing/rate-limit logic runs, per 5.G.
func (p *Plugin) difficultyProbe(h *Hook) (response.Response, bool) {
	path, err := h.requestPathRaw()
	if err != nil || path != pow.DifficultyProbePath {
		return response.Response{}, false
	}
	return pow.DifficultyProbe(p.chain)
}

// finish converts the validator's outcome into a host action: resume on
// success, send the mapped rejection otherwise.
func (h *Hook) finish(err error) {
	if err == nil {
		if resumeErr := h.resumeRequest(); resumeErr != nil {
			h.plugin.log.Warnf("filter: failed to resume request: %s", resumeErr)
		}
		return
	}
	h.sendResponse(response.ToResponse(err))
}

func (h *Hook) sendResponse(resp response.Response) {
	if err := h.setEffectiveContext(); err != nil {
		h.plugin.log.Warnf("filter: failed to set effective context: %s", err)
		return
	}
	if err := h.host.SendResponse(resp); err != nil {
		h.plugin.log.Warnf("filter: failed to send response: %s", err)
	}
}

func (h *Hook) resumeRequest() error {
	if err := h.setEffectiveContext(); err != nil {
		return err
	}
	return h.host.ResumeRequest()
}

func (h *Hook) setEffectiveContext() error {
	return h.host.SetEffectiveContext(h.contextID)
}

func (h *Hook) clientAddress() (string, error) {
	if err := h.setEffectiveContext(); err != nil {
		return "", err
	}
	raw, err := h.host.GetProperty([]string{"source", "address"})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (h *Hook) requestHeader(name string) (string, bool, error) {
	if err := h.setEffectiveContext(); err != nil {
		return "", false, err
	}
	return h.host.GetRequestHeader(name)
}

func (h *Hook) requestPathRaw() (string, error) {
	value, ok, err := h.requestHeader(":path")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("filter: missing :path header")
	}
	return value, nil
}

// OnHTTPResponseHeaders appends FilterName to X-Filter-Name,
// comma-separated with any prior value set by another filter in the
// chain.
func (p *Plugin) OnHTTPResponseHeaders(h *Hook, previous string, hasPrevious bool) string {
	if !hasPrevious {
		return FilterName
	}
	return previous + ", " + FilterName
}
