package chain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxy-pow-filter/internal/chain"
	"proxy-pow-filter/internal/httpadapter"
	"proxy-pow-filter/internal/response"
	"proxy-pow-filter/internal/task"
)

type fakeDispatcher struct {
	nextToken uint32
	calls     int
}

func (f *fakeDispatcher) DispatchHTTPCall(string, []response.Header, []byte, []response.Header, time.Duration) (uint32, error) {
	f.calls++
	f.nextToken++
	return f.nextToken, nil
}

type fakeReader struct{ body []byte }

func (r fakeReader) GetCallResponseHeaders(int) ([]response.Header, error) {
	return []response.Header{{Name: ":status", Value: "200"}}, nil
}
func (r fakeReader) GetCallResponseBody(int) ([]byte, error)          { return r.body, nil }
func (r fakeReader) GetCallResponseTrailers(int) ([]response.Header, error) { return nil, nil }

type nopLogger struct{}

func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Debugf(string, ...any) {}

func TestRefreshTask_PopulatesRingOnSuccess(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	http := httpadapter.New(dispatcher)
	timers := task.NewTimers()
	client := chain.NewClient(16)

	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	rt := chain.NewRefreshTask(client, http, timers, clock, chain.Config{
		Upstream:     "mempool",
		Path:         "/api/v1/blocks/tip/hash",
		BaseInterval: time.Minute,
		Jitter:       0, // zero selects the 5s default
	}, nopLogger{})

	runtime := task.NewRuntime()
	_, err := runtime.Spawn(rt)
	require.NoError(t, err)

	runtime.OnTick() // enters phaseSleep, arms the sleep
	assert.Zero(t, dispatcher.calls)

	now = now.Add(70 * time.Second) // past base interval (60s) + max jitter (5s)
	timers.Advance(now)             // fires the sleep, wakes the task
	runtime.OnTick()    // dispatches the HTTP call
	assert.Equal(t, 1, dispatcher.calls)

	tip := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	http.OnCallResponse(1, 1, len(tip), 0, fakeReader{body: []byte(tip)})
	runtime.OnTick() // consumes the settled promise, repopulates the ring, re-arms sleep

	head, ok := client.GetLatestHash()
	require.True(t, ok)
	assert.Equal(t, tip, head.String())
	assert.True(t, client.CheckInList(head))
}

func TestRefreshTask_BacksOffOnRejection(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	http := httpadapter.New(dispatcher)
	timers := task.NewTimers()
	client := chain.NewClient(16)

	now := time.Unix(1_800_000_000, 0)
	clock := func() time.Time { return now }
	rt := chain.NewRefreshTask(client, http, timers, clock, chain.Config{
		Upstream:     "mempool",
		BaseInterval: time.Minute,
		MaxBackoff:   4 * time.Minute,
		Jitter:       0, // zero selects the 5s default
	}, nopLogger{})

	runtime := task.NewRuntime()
	_, err := runtime.Spawn(rt)
	require.NoError(t, err)

	runtime.OnTick()
	now = now.Add(70 * time.Second) // past base interval (60s) + max jitter (5s)
	timers.Advance(now)
	runtime.OnTick() // dispatches
	require.Equal(t, 1, dispatcher.calls)

	// zero headers => httpadapter rejects the promise.
	http.OnCallResponse(1, 0, 0, 0, fakeReader{})
	runtime.OnTick() // observes the rejection, backs off, re-arms sleep

	_, ok := client.GetLatestHash()
	assert.False(t, ok, "a failed refresh must not populate the ring")

	// The backed-off sleep is 2m (+ jitter): 70s more is not enough...
	now = now.Add(70 * time.Second)
	timers.Advance(now)
	runtime.OnTick()
	assert.Equal(t, 1, dispatcher.calls, "backoff must outlast the base interval")

	// ...but 130s in total clears 2m + max jitter.
	now = now.Add(time.Minute)
	timers.Advance(now)
	runtime.OnTick()
	assert.Equal(t, 2, dispatcher.calls)
}
