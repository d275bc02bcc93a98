// Package hostabi declares the host contract this filter depends on: the
// non-blocking hostcalls exposed by the proxy's sandboxed extension host.
// The host proxy itself, the real hostcall bindings and the WASM export
// table are out of scope for this module (see cmd/pow-filter); everything
// here is an interface so the core packages never import the ABI glue
// directly.
package hostabi

import (
	"time"

	"proxy-pow-filter/internal/response"
)

// Dispatcher issues an outbound HTTP call and returns a token identifying
// it, or a non-nil error if the host rejected the dispatch outright
// (before any response callback could ever fire).
type Dispatcher interface {
	DispatchHTTPCall(upstream string, headers []response.Header, body []byte, trailers []response.Header, timeout time.Duration) (token uint32, err error)
}

// CallResponseReader reads back the pieces of a completed HTTP call,
// identified by the token from a prior Dispatcher call. Called only from
// within the host's response callback, while that call's data is still
// addressable.
type CallResponseReader interface {
	GetCallResponseHeaders(numHeaders int) ([]response.Header, error)
	GetCallResponseBody(bodySize int) ([]byte, error)
	GetCallResponseTrailers(numTrailers int) ([]response.Header, error)
}

// PropertyStore resolves host-managed request properties, such as the
// client source address.
type PropertyStore interface {
	GetProperty(path []string) ([]byte, error)
}

// RequestReader reads the current request's headers.
type RequestReader interface {
	GetRequestHeader(name string) (value string, ok bool, err error)
}

// RequestControl resumes or terminates the paused request this hook is
// bound to.
type RequestControl interface {
	SetEffectiveContext(contextID uint32) error
	ResumeRequest() error
	SendResponse(resp response.Response) error
}

// KVStore is the host's shared key-value surface, used for the counter
// bucket. Get returns cas=0 and no error for an absent key. Set fails
// with ErrCASConflict if cas no longer matches the stored value's token.
type KVStore interface {
	Get(key string) (value []byte, cas uint32, err error)
	Set(key string, value []byte, cas uint32) error
}

// ErrCASConflict is returned by KVStore.Set when the supplied CAS token
// is stale.
var ErrCASConflict = errCASConflict{}

type errCASConflict struct{}

func (errCASConflict) Error() string { return "hostabi: compare-and-swap conflict" }

// TickController configures the host's tick cadence.
type TickController interface {
	SetTickPeriod(d time.Duration) error
}

// LogLevel mirrors the host's log level enum.
type LogLevel int

const (
	LogTrace LogLevel = iota
	LogDebug
	LogInfo
	LogWarn
	LogError
)

func (l LogLevel) String() string {
	switch l {
	case LogTrace:
		return "trace"
	case LogDebug:
		return "debug"
	case LogInfo:
		return "info"
	case LogWarn:
		return "warn"
	case LogError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLogLevel parses the config file's log_level string, defaulting to
// LogTrace (the documented default) for an empty string.
func ParseLogLevel(s string) (LogLevel, bool) {
	switch s {
	case "", "trace":
		return LogTrace, true
	case "debug":
		return LogDebug, true
	case "info":
		return LogInfo, true
	case "warn":
		return LogWarn, true
	case "error":
		return LogError, true
	default:
		return LogTrace, false
	}
}

// LogSink writes a rendered log line to the host's log surface.
type LogSink interface {
	Log(level LogLevel, line string) error
	SetLogLevel(level LogLevel) error
}
