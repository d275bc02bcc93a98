// Package httpadapter wraps the host's dispatch-HTTP-call hostcall into
// an awaitable task.Promise.
package httpadapter

import (
	"fmt"
	"time"

	"proxy-pow-filter/internal/hostabi"
	"proxy-pow-filter/internal/response"
	"proxy-pow-filter/internal/task"
)

// Adapter owns the process-wide token -> promise mapping. No locking is
// required: the host is single-threaded per VM, so Call and OnCallResponse are
// always invoked from the same callback thread.
type Adapter struct {
	dispatcher hostabi.Dispatcher
	pending    map[uint32]*task.Promise[response.Response]
}

// New constructs an Adapter bound to the host's dispatcher.
func New(dispatcher hostabi.Dispatcher) *Adapter {
	return &Adapter{dispatcher: dispatcher, pending: make(map[uint32]*task.Promise[response.Response])}
}

// Call issues the outbound HTTP call and returns a promise for its
// response. If the host rejects the dispatch outright, the returned
// error is a *response.HostCallError and no promise is registered.
func (a *Adapter) Call(upstream string, headers []response.Header, body []byte, trailers []response.Header, timeout time.Duration) (*task.Promise[response.Response], error) {
	token, err := a.dispatcher.DispatchHTTPCall(upstream, headers, body, trailers, timeout)
	if err != nil {
		return nil, &response.HostCallError{Reason: "dispatch_http_call", Status: err.Error()}
	}
	p := task.NewPromise[response.Response]()
	a.pending[token] = p
	return p, nil
}

// OnCallResponse is the host's on_http_call_response callback. reader
// reads back headers/body/trailers for the now-completed call, valid
// only for the duration of this call. By convention, a response bearing
// zero headers signals a host-side failure (e.g. timeout or connection
// reset) and rejects the promise instead of resolving it. A genuine
// response that carries no headers is therefore also treated as a
// failure.
func (a *Adapter) OnCallResponse(token uint32, numHeaders, bodySize, numTrailers int, reader hostabi.CallResponseReader) {
	p, ok := a.pending[token]
	if !ok {
		return // timed out and dropped, or an unknown token; nothing to resolve
	}
	delete(a.pending, token)

	if numHeaders == 0 {
		p.Reject(fmt.Errorf("httpadapter: host reported call failure (token %d)", token))
		return
	}

	headers, err := reader.GetCallResponseHeaders(numHeaders)
	if err != nil {
		p.Reject(err)
		return
	}
	body, err := reader.GetCallResponseBody(bodySize)
	if err != nil {
		p.Reject(err)
		return
	}
	trailers, err := reader.GetCallResponseTrailers(numTrailers)
	if err != nil {
		p.Reject(err)
		return
	}

	p.Resolve(response.Response{Headers: headers, Body: body, Trailers: trailers})
}

// Pending reports the number of in-flight calls, exposed for tests and
// diagnostics.
func (a *Adapter) Pending() int { return len(a.pending) }
