// Command pow-filter is the WASM entry point: the thin adapter shimming
// github.com/tetratelabs/proxy-wasm-go-sdk's hostcall functions onto the
// internal/hostabi interfaces internal/filter depends on. Everything
// interesting lives in internal/filter and the packages it wires
// together; this file only shims hostcalls.
package main

import (
	"time"

	"github.com/tetratelabs/proxy-wasm-go-sdk/proxywasm"
	"github.com/tetratelabs/proxy-wasm-go-sdk/proxywasm/types"

	"proxy-pow-filter/internal/filter"
	"proxy-pow-filter/internal/hostabi"
	"proxy-pow-filter/internal/response"
	"proxy-pow-filter/internal/task"
)

func main() {
	proxywasm.SetVMContext(&vmContext{})
}

type vmContext struct {
	types.DefaultVMContext
}

func (*vmContext) NewPluginContext(uint32) types.PluginContext {
	return &pluginContext{plugin: filter.NewPlugin(hostBindings{}, time.Now)}
}

type pluginContext struct {
	types.DefaultPluginContext
	plugin *filter.Plugin
}

func (p *pluginContext) OnVMStart(int) types.OnVMStartStatus {
	if !p.plugin.OnVMStart() {
		return types.OnVMStartStatusFailed
	}
	return types.OnVMStartStatusOK
}

func (p *pluginContext) OnPluginStart(int) types.OnPluginStartStatus {
	data, err := proxywasm.GetPluginConfiguration()
	if err != nil && err != types.ErrorStatusNotFound {
		proxywasm.LogCritical("pow-filter: failed to read plugin configuration: " + err.Error())
		return types.OnPluginStartStatusFailed
	}
	if !p.plugin.OnConfigure(data) {
		return types.OnPluginStartStatusFailed
	}
	return types.OnPluginStartStatusOK
}

func (p *pluginContext) OnTick() { p.plugin.OnTick() }

func (p *pluginContext) OnQueueReady(queueID uint32) { p.plugin.OnQueueReady(task.QueueID(queueID)) }

func (p *pluginContext) NewHttpContext(contextID uint32) types.HttpContext {
	return &httpContext{
		plugin: p.plugin,
		hook:   p.plugin.CreateHTTPContext(contextID, hostBindings{}),
	}
}

type httpContext struct {
	types.DefaultHttpContext
	plugin *filter.Plugin
	hook   *filter.Hook
}

func (h *httpContext) OnHttpRequestHeaders(int, bool) types.Action {
	h.plugin.OnHTTPRequestHeaders(h.hook)
	return types.ActionPause
}

func (h *httpContext) OnHttpResponseHeaders(int, bool) types.Action {
	previous, err := proxywasm.GetHttpResponseHeader("X-Filter-Name")
	hasPrevious := err == nil
	value := h.plugin.OnHTTPResponseHeaders(h.hook, previous, hasPrevious)
	_ = proxywasm.ReplaceHttpResponseHeader("X-Filter-Name", value)
	return types.ActionContinue
}

func (h *httpContext) OnHttpCallResponse(calloutID uint32, numHeaders, bodySize, numTrailers int) {
	h.plugin.OnHTTPCallResponse(calloutID, numHeaders, bodySize, numTrailers, callResponseReader{})
}

// hostBindings implements every per-VM and per-request internal/hostabi
// interface directly against package-level proxywasm hostcalls. It
// carries no state of its own: set_effective_context makes the host
// track which context a call applies to, so there is nothing to hold
// onto between calls.
type hostBindings struct{}

func (hostBindings) DispatchHTTPCall(upstream string, headers []response.Header, body []byte, trailers []response.Header, timeout time.Duration) (uint32, error) {
	return proxywasm.DispatchHttpCall(upstream, toPairs(headers), body, toPairs(trailers), uint32(timeout.Milliseconds()))
}

func (hostBindings) Get(key string) ([]byte, uint32, error) {
	value, cas, err := proxywasm.GetSharedData(key)
	if err == types.ErrorStatusNotFound {
		return nil, 0, nil
	}
	return value, cas, err
}

func (hostBindings) Set(key string, value []byte, cas uint32) error {
	err := proxywasm.SetSharedData(key, value, cas)
	if err == types.ErrorStatusCasMismatch {
		return hostabi.ErrCASConflict
	}
	return err
}

func (hostBindings) SetTickPeriod(d time.Duration) error {
	return proxywasm.SetTickPeriodMilliSeconds(uint32(d.Milliseconds()))
}

func (hostBindings) Log(level hostabi.LogLevel, line string) error {
	switch level {
	case hostabi.LogTrace:
		return proxywasm.LogTrace(line)
	case hostabi.LogDebug:
		return proxywasm.LogDebug(line)
	case hostabi.LogInfo:
		return proxywasm.LogInfo(line)
	case hostabi.LogWarn:
		return proxywasm.LogWarn(line)
	default:
		return proxywasm.LogCritical(line)
	}
}

func (hostBindings) SetLogLevel(level hostabi.LogLevel) error {
	return proxywasm.SetLogLevel(toSDKLogLevel(level))
}

func (hostBindings) GetProperty(path []string) ([]byte, error) {
	return proxywasm.GetProperty(path)
}

func (hostBindings) GetRequestHeader(name string) (string, bool, error) {
	value, err := proxywasm.GetHttpRequestHeader(name)
	if err == types.ErrorStatusNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (hostBindings) SetEffectiveContext(contextID uint32) error {
	return proxywasm.SetEffectiveContext(contextID)
}

func (hostBindings) ResumeRequest() error {
	return proxywasm.ResumeHttpRequest()
}

func (hostBindings) SendResponse(resp response.Response) error {
	return proxywasm.SendHttpResponse(resp.Code, toPairs(resp.Headers), resp.Body, -1)
}

// callResponseReader implements hostabi.CallResponseReader for the call
// response currently in scope, valid only within OnHttpCallResponse.
type callResponseReader struct{}

func (callResponseReader) GetCallResponseHeaders(int) ([]response.Header, error) {
	pairs, err := proxywasm.GetHttpCallResponseHeaders()
	if err != nil {
		return nil, err
	}
	return fromPairs(pairs), nil
}

func (callResponseReader) GetCallResponseBody(bodySize int) ([]byte, error) {
	return proxywasm.GetHttpCallResponseBody(0, bodySize)
}

func (callResponseReader) GetCallResponseTrailers(int) ([]response.Header, error) {
	pairs, err := proxywasm.GetHttpCallResponseTrailers()
	if err != nil {
		return nil, err
	}
	return fromPairs(pairs), nil
}

func toPairs(headers []response.Header) [][2]string {
	pairs := make([][2]string, len(headers))
	for i, h := range headers {
		pairs[i] = [2]string{h.Name, h.Value}
	}
	return pairs
}

func fromPairs(pairs [][2]string) []response.Header {
	headers := make([]response.Header, len(pairs))
	for i, p := range pairs {
		headers[i] = response.Header{Name: p[0], Value: p[1]}
	}
	return headers
}

func toSDKLogLevel(level hostabi.LogLevel) types.LogLevel {
	switch level {
	case hostabi.LogTrace:
		return types.LogLevelTrace
	case hostabi.LogDebug:
		return types.LogLevelDebug
	case hostabi.LogInfo:
		return types.LogLevelInfo
	case hostabi.LogWarn:
		return types.LogLevelWarn
	default:
		return types.LogLevelCritical
	}
}
