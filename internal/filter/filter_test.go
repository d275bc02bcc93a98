package filter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxy-pow-filter/internal/filter"
	"proxy-pow-filter/internal/hostabi"
	"proxy-pow-filter/internal/response"
)

const sampleConfig = `
log_level: debug
difficulty: 1
mempool_upstream_name: mempool
virtual_hosts:
  - authority: example.com
    routes:
      - path: /api
        requests_per_unit: 1000000
        unit: 1s
`

// fakeHost implements both filter.RootHost and filter.RequestHost
// against plain in-memory state, standing in for the sandboxed proxy
// host in tests.
type fakeHost struct {
	tickPeriod time.Duration
	logLevel   hostabi.LogLevel
	lines      []string

	kv  map[string][]byte
	cas map[string]uint32

	effectiveContext uint32
	headers          map[string]string
	sourceAddress    string

	resumed      bool
	sentResponse *response.Response

	dispatchCalls int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		kv:            map[string][]byte{},
		cas:           map[string]uint32{},
		headers:       map[string]string{},
		sourceAddress: "198.51.100.7:1234",
	}
}

func (h *fakeHost) SetTickPeriod(d time.Duration) error { h.tickPeriod = d; return nil }
func (h *fakeHost) Log(level hostabi.LogLevel, line string) error {
	h.lines = append(h.lines, line)
	return nil
}
func (h *fakeHost) SetLogLevel(level hostabi.LogLevel) error { h.logLevel = level; return nil }

func (h *fakeHost) DispatchHTTPCall(string, []response.Header, []byte, []response.Header, time.Duration) (uint32, error) {
	h.dispatchCalls++
	return uint32(h.dispatchCalls), nil
}

func (h *fakeHost) Get(key string) ([]byte, uint32, error) { return h.kv[key], h.cas[key], nil }
func (h *fakeHost) Set(key string, value []byte, cas uint32) error {
	if cas != h.cas[key] {
		return hostabi.ErrCASConflict
	}
	h.kv[key] = value
	h.cas[key]++
	return nil
}

func (h *fakeHost) GetProperty(path []string) ([]byte, error) {
	if len(path) == 2 && path[0] == "source" && path[1] == "address" {
		return []byte(h.sourceAddress), nil
	}
	return nil, nil
}

func (h *fakeHost) GetRequestHeader(name string) (string, bool, error) {
	v, ok := h.headers[name]
	return v, ok, nil
}

func (h *fakeHost) SetEffectiveContext(contextID uint32) error {
	h.effectiveContext = contextID
	return nil
}

func (h *fakeHost) ResumeRequest() error { h.resumed = true; return nil }

func (h *fakeHost) SendResponse(resp response.Response) error {
	r := resp
	h.sentResponse = &r
	return nil
}

func TestPlugin_ConfigureFailureRejectsActivation(t *testing.T) {
	p := filter.NewPlugin(newFakeHost(), nil)
	assert.False(t, p.OnConfigure([]byte("not: [valid")))
}

func TestPlugin_AdmitsBelowBudgetAndResumes(t *testing.T) {
	host := newFakeHost()
	now := time.Unix(1_700_000_000, 0)
	p := filter.NewPlugin(host, func() time.Time { return now })
	require.True(t, p.OnConfigure([]byte(sampleConfig)))

	host.headers[":authority"] = "example.com"
	host.headers[":path"] = "/api"
	hook := p.CreateHTTPContext(1, host)

	p.OnHTTPRequestHeaders(hook)
	p.OnTick() // drives the spawned validator future

	assert.True(t, host.resumed)
	assert.Nil(t, host.sentResponse)
}

func TestPlugin_RejectsMissingRouteHeaders(t *testing.T) {
	host := newFakeHost()
	p := filter.NewPlugin(host, nil)
	require.True(t, p.OnConfigure([]byte(sampleConfig)))

	// no :authority header set at all.
	hook := p.CreateHTTPContext(1, host)
	p.OnHTTPRequestHeaders(hook)
	p.OnTick()

	require.NotNil(t, host.sentResponse)
	assert.EqualValues(t, 403, host.sentResponse.Code)
	assert.False(t, host.resumed)
}

type fakeCallReader struct{ body []byte }

func (r fakeCallReader) GetCallResponseHeaders(int) ([]response.Header, error) {
	return []response.Header{{Name: ":status", Value: "200"}}, nil
}
func (r fakeCallReader) GetCallResponseBody(int) ([]byte, error) { return r.body, nil }
func (r fakeCallReader) GetCallResponseTrailers(int) ([]response.Header, error) { return nil, nil }

func TestPlugin_DifficultyProbeBypassesValidatorOnceChainHasAHead(t *testing.T) {
	host := newFakeHost()
	now := time.Unix(1_700_000_000, 0)
	p := filter.NewPlugin(host, func() time.Time { return now })
	require.True(t, p.OnConfigure([]byte(sampleConfig)))

	p.OnTick() // arms the chain refresher's initial sleep

	now = now.Add(70 * time.Second) // past base interval (60s) + max jitter (5s)
	p.OnTick()                      // fires the sleep, wakes the refresher
	p.OnTick()                      // dispatches the tip-hash HTTP call
	require.Equal(t, 1, host.dispatchCalls)

	tip := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	p.OnHTTPCallResponse(1, 1, len(tip), 0, fakeCallReader{body: []byte(tip)})
	p.OnTick() // consumes the settled promise, populates the chain ring

	host.headers[":path"] = "/api/difficulty"
	hook := p.CreateHTTPContext(2, host)
	p.OnHTTPRequestHeaders(hook)

	require.NotNil(t, host.sentResponse)
	assert.EqualValues(t, 200, host.sentResponse.Code)
	assert.Contains(t, string(host.sentResponse.Body), tip)
	assert.False(t, host.resumed, "the probe must answer directly, never through the validator path")
}

func TestPlugin_OnHTTPResponseHeadersAppendsFilterName(t *testing.T) {
	host := newFakeHost()
	p := filter.NewPlugin(host, nil)
	require.True(t, p.OnConfigure([]byte(sampleConfig)))
	hook := p.CreateHTTPContext(1, host)

	assert.Equal(t, "pow-filter", p.OnHTTPResponseHeaders(hook, "", false))
	assert.Equal(t, "upstream-filter, pow-filter", p.OnHTTPResponseHeaders(hook, "upstream-filter", true))
}

func TestPlugin_OnVMStartSetsTickPeriod(t *testing.T) {
	host := newFakeHost()
	p := filter.NewPlugin(host, nil)
	assert.True(t, p.OnVMStart())
	assert.NotZero(t, host.tickPeriod)
}
