// Package response defines the canonical response shape the filter sends
// back through the host, and the error taxonomy that converts into it.
package response

// Header is a single name/value pair, kept ordered (unlike a map) since
// hostcalls take headers as ordered lists.
type Header struct {
	Name  string
	Value string
}

// Response is the canonical response shape: what the filter sends to the
// host as a direct reply (send_http_response), and what an outbound HTTP
// call resolves to. Resuming a request (resume_http_request) sends none.
type Response struct {
	Code     uint32
	Headers  []Header
	Body     []byte
	Trailers []Header
}

// Header looks up the first header matching name (case-sensitive, as the
// host hands them over verbatim), returning ok=false if absent.
func (r Response) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}
