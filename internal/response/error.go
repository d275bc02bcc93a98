package response

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is satisfied by every error kind the validator can raise. The
// conversion to a Response is total: whatever the validator returns,
// ToResponse always produces something sendable.
type Error interface {
	error
	Response() Response
}

// HostCallError means a host API returned a non-OK status. It surfaces
// as 500 text/plain with a diagnostic body — never shown verbatim to an
// untrusted caller in a production deployment, but useful for debugging
// a misbehaving host integration.
type HostCallError struct {
	Reason string
	Status string
}

func (e *HostCallError) Error() string {
	return fmt.Sprintf("hostcall failed: %s: %s", e.Reason, e.Status)
}

func (e *HostCallError) Response() Response {
	return Response{
		Code:    500,
		Headers: []Header{{"Content-Type", "text/plain"}},
		Body:    []byte(fmt.Sprintf("%s: %s", e.Status, e.Reason)),
	}
}

// ForbiddenError means the client's input cannot be processed at all —
// missing or unparseable source address, missing routing headers. It
// surfaces as 403 JSON.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return "forbidden: " + e.Message }

func (e *ForbiddenError) Response() Response {
	body, _ := json.Marshal(struct {
		Message string `json:"message"`
	}{e.Message})
	return Response{
		Code:    403,
		Headers: []Header{{"Content-Type", "application/json"}},
		Body:    body,
	}
}

// ChallengeError means the request either exceeded its rate budget and
// needs to mint a nonce, or presented one that didn't check out. It
// surfaces as 429 JSON carrying the current seed and target difficulty
// so the client can discover the required work without a separate
// round-trip.
type ChallengeError struct {
	Current    string // current chain head, lowercase hex
	Difficulty string // 32-byte target, lowercase hex
	Reason     string
}

func (e *ChallengeError) Error() string { return "challenge: " + e.Reason }

func (e *ChallengeError) Response() Response {
	body, _ := json.Marshal(struct {
		Current    string `json:"current"`
		Difficulty string `json:"difficulty"`
		Error      string `json:"error"`
		Message    string `json:"message"`
	}{e.Current, e.Difficulty, e.Reason, "Access restriction triggered"})
	return Response{
		Code:    429,
		Headers: []Header{{"Content-Type", "application/json"}},
		Body:    body,
	}
}

// OtherError wraps any unexpected failure with a reason, surfacing as
// 500 text/plain like HostCallError but without implying the failure was
// a hostcall specifically.
type OtherError struct {
	Reason string
	Err    error
}

func (e *OtherError) Error() string { return fmt.Sprintf("%s: %s", e.Reason, e.Err) }

func (e *OtherError) Unwrap() error { return e.Err }

func (e *OtherError) Response() Response {
	return Response{
		Code:    500,
		Headers: []Header{{"Content-Type", "text/plain"}},
		Body:    []byte(fmt.Sprintf("%s: %s", e.Reason, e.Err)),
	}
}

// ToResponse converts any error into a Response. The conversion is
// total: an err that isn't an Error still becomes a 500 text/plain body
// rather than being dropped.
func ToResponse(err error) Response {
	if err == nil {
		return Response{Code: 200}
	}
	var e Error
	if errors.As(err, &e) {
		return e.Response()
	}
	return (&OtherError{Reason: "unhandled error", Err: err}).Response()
}
