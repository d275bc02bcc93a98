package pow

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"proxy-pow-filter/internal/chain"
	"proxy-pow-filter/internal/response"
)

// RouteMatch is a router match record: the canonical route pattern and
// its rate-limit parameters.
type RouteMatch struct {
	Pattern         string
	RequestsPerUnit uint64
	Unit            time.Duration
}

// CurrentBucket is floor(now / unit).
func (m RouteMatch) CurrentBucket(now time.Time) int64 {
	unit := m.Unit
	if unit <= 0 {
		unit = time.Second
	}
	return now.UnixNano() / int64(unit)
}

// Router resolves a request's virtual host and path to a RouteMatch.
// This package only depends on the interface; internal/router provides
// the concrete default implementation.
type Router interface {
	Matches(host, path string) (RouteMatch, bool)
}

// Whitelist answers whether an IP bypasses rate limiting entirely.
type Whitelist interface {
	Contains(ip netip.Addr) bool
}

// Counter is the subset of kvstore.CounterBucket the validator needs.
type Counter interface {
	Get(key string) (uint64, error)
	Inc(key string, delta uint64) (dropped bool, err error)
}

// Chain is the subset of chain.Client the validator needs.
type Chain interface {
	GetLatestHash() (chain.Hash, bool)
	CheckInList(h chain.Hash) bool
}

// Request is the per-request surface the validator reads from. Backed
// by the filter adapter's per-request Hook in production.
type Request struct {
	ClientAddress func() (string, error)
	Header        func(name string) (string, bool, error)
	Path          func() (string, error)
}

// Deps bundles the shared, read-only Plugin state the validator
// consults. Constructed once at configure time and shared across every
// per-request Hook.
type Deps struct {
	Whitelist  Whitelist
	Router     Router
	Counter    Counter
	Chain      Chain
	Difficulty uint64 // configured base difficulty multiplier
	Now        func() time.Time
}

// Validate runs the eleven-step PoW validation state machine: whitelist,
// routing, rate key, count, bypass/challenge split, challenge material,
// freshness, seed admissibility, verification, admit. A nil return means
// admit; otherwise the error is always a response.Error, ready to
// convert into a Response.
func Validate(req Request, d Deps) error {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	// 1. Whitelist check.
	rawAddr, err := req.ClientAddress()
	if err != nil || rawAddr == "" {
		return &response.ForbiddenError{Message: "missing or invalid client address"}
	}
	host, _, err := net.SplitHostPort(rawAddr)
	if err != nil {
		host = rawAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return &response.ForbiddenError{Message: fmt.Sprintf("invalid client address %q", rawAddr)}
	}
	if d.Whitelist != nil && d.Whitelist.Contains(addr) {
		return nil
	}

	// 2. Routing.
	authority, ok, err := req.Header(":authority")
	if err != nil {
		return &response.HostCallError{Reason: "get :authority header", Status: err.Error()}
	}
	if !ok || authority == "" {
		return &response.ForbiddenError{Message: "missing :authority header"}
	}
	path, err := req.Path()
	if err != nil || path == "" {
		return &response.ForbiddenError{Message: "missing :path"}
	}

	match, ok := d.Router.Matches(authority, path)
	if !ok {
		return nil // no matched route, skip rate limit
	}

	// 3. Rate key.
	key := fmt.Sprintf("%s:%d:%s%s", addr, match.CurrentBucket(now()), authority, match.Pattern)

	// 4. Count.
	counter, err := d.Counter.Get(key)
	if err != nil {
		return &response.OtherError{Reason: "failed to get counter", Err: err}
	}
	requestsPerUnit := match.RequestsPerUnit
	if requestsPerUnit == 0 {
		requestsPerUnit = 1
	}
	level := (counter / requestsPerUnit) * d.Difficulty

	// 5. Low-level bypass.
	if level == 0 {
		if dropped, incErr := d.Counter.Inc(key, 1); incErr != nil {
			return &response.OtherError{Reason: "failed to increment counter", Err: incErr}
		} else if dropped {
			_ = dropped // acceptable under contention, bucket rotates
		}
		return nil
	}

	// 6. Seed.
	current, ok := d.Chain.GetLatestHash()
	if !ok {
		return &response.OtherError{Reason: "chain head unavailable", Err: fmt.Errorf("pow: no chain head cached yet")}
	}

	target := GetDifficulty(level)
	challenge := func(reason string) error {
		return &response.ChallengeError{
			Current:    current.String(),
			Difficulty: hex.EncodeToString(target[:]),
			Reason:     reason,
		}
	}

	// 7. Challenge material.
	timestampRaw, ok, _ := req.Header("X-PoW-Timestamp")
	if !ok {
		return challenge("missing X-PoW-Timestamp header")
	}
	timestamp, err := strconv.ParseUint(timestampRaw, 10, 64)
	if err != nil {
		return challenge("malformed X-PoW-Timestamp header")
	}

	// 8. Freshness.
	if int64(timestamp)+60 < now().Unix() {
		return challenge("timestamp expired")
	}

	nonceRaw, ok, _ := req.Header("X-PoW-Nonce")
	if !ok {
		return challenge("missing X-PoW-Nonce header")
	}
	nonce, err := hex.DecodeString(nonceRaw)
	if err != nil {
		return challenge("X-PoW-Nonce must be a hex string")
	}

	baseRaw, ok, _ := req.Header("X-PoW-Base")
	if !ok {
		return challenge("missing X-PoW-Base header")
	}

	// 9. Seed admissibility.
	base, err := chain.ParseHash(baseRaw)
	if err != nil {
		return challenge("X-PoW-Base must be a 32-byte hex hash")
	}
	if !d.Chain.CheckInList(base) {
		return challenge("X-PoW-Base are expired, please use current")
	}

	// 10. Verification.
	data := make([]byte, 0, 32+8+len(path))
	data = append(data, base.Bytes()...)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], timestamp)
	data = append(data, tsBuf[:]...)
	data = append(data, path...)

	if !ValidNonce(data, nonce, target) {
		return challenge("invalid nonce, maybe difficulty upgraded")
	}

	// 11. Admit.
	if _, incErr := d.Counter.Inc(key, 1); incErr != nil {
		return &response.OtherError{Reason: "failed to increment counter", Err: incErr}
	}
	return nil
}
