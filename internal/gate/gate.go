package gate

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/satellite/internal/config"
)

type Reason string

const (
	ReasonOK          Reason = "ok"
	ReasonDisabled    Reason = "disabled"
	ReasonMissingKey  Reason = "missing_key"
	ReasonInvalidKey  Reason = "invalid_key"
	ReasonRateLimited Reason = "rate_limited"
	ReasonIPDenied    Reason = "ip_denied"
)

// Status maps the reason to the HTTP status returned to the caller.
func (r Reason) Status() int {
	switch r {
	case ReasonOK:
		return http.StatusOK
	case ReasonDisabled:
		return http.StatusServiceUnavailable
	case ReasonMissingKey, ReasonInvalidKey:
		return http.StatusUnauthorized
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	case ReasonIPDenied:
		return http.StatusForbidden
	default:
		return http.StatusForbidden
	}
}

func (r Reason) Message() string {
	switch r {
	case ReasonDisabled:
		return "Satellite endpoints are disabled"
	case ReasonMissingKey:
		return "API key required"
	case ReasonInvalidKey:
		return "Invalid API key"
	case ReasonRateLimited:
		return "Rate limit exceeded"
	case ReasonIPDenied:
		return "IP address not allowed"
	default:
		return ""
	}
}

// Decision is the outcome of evaluating one request. Allowed is true iff Reason is ReasonOK.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Reason   Reason `json:"reason"`
	ClientIP string `json:"client_ip,omitempty"`

	// PresentedKey is the credential the caller sent. Never serialized or logged.
	PresentedKey string `json:"-"`
}

func (d Decision) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("allowed", d.Allowed).
		Str("reason", string(d.Reason)).
		Str("client_ip", d.ClientIP)
}

func deny(reason Reason, clientIP, key string) Decision {
	return Decision{Allowed: false, Reason: reason, ClientIP: clientIP, PresentedKey: key}
}

// Limiter is the part of the rate limiter the gate needs.
type Limiter interface {
	Allow(ctx context.Context, clientKey string) (bool, error)
}

type Options struct {
	Enabled   bool
	Secret    config.Secret
	Allowlist []string
	Limiter   Limiter // nil disables rate limiting
}

// Gate authenticates inbound satellite requests. The checks run in a fixed order
// and stop at the first rejection.
type Gate struct {
	enabled   bool
	secret    config.Secret
	allowlist []string
	limiter   Limiter
}

func New(opts Options) *Gate {
	var allowlist []string
	for _, rule := range opts.Allowlist {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		if !ValidRule(rule) {
			log.Warn().Str("rule", rule).Msg("ip allowlist entry is malformed and will never match")
		}
		allowlist = append(allowlist, rule)
	}
	return &Gate{
		enabled:   opts.Enabled,
		secret:    opts.Secret,
		allowlist: allowlist,
		limiter:   opts.Limiter,
	}
}

// Restricted reports whether an IP allowlist is configured.
func (g *Gate) Restricted() bool {
	return len(g.allowlist) > 0
}

// Evaluate runs the checks for r. clientIP is the already resolved caller address.
func (g *Gate) Evaluate(r *http.Request, clientIP string) Decision {
	if !g.enabled {
		return deny(ReasonDisabled, clientIP, "")
	}

	key := ExtractKey(r)
	if key == "" {
		return deny(ReasonMissingKey, clientIP, "")
	}

	if !g.secret.Equal(key) {
		return deny(ReasonInvalidKey, clientIP, key)
	}

	// budget is consumed here even if the allowlist rejects below
	if g.limiter != nil {
		ok, err := g.limiter.Allow(r.Context(), clientIP)
		if err != nil {
			log.Ctx(r.Context()).Error().Err(err).Str("client_ip", clientIP).
				Msg("rate limiter unavailable, rejecting request")
			return deny(ReasonRateLimited, clientIP, key)
		}
		if !ok {
			return deny(ReasonRateLimited, clientIP, key)
		}
	}

	if len(g.allowlist) > 0 && !g.ipAllowed(clientIP) {
		return deny(ReasonIPDenied, clientIP, key)
	}

	return Decision{Allowed: true, Reason: ReasonOK, ClientIP: clientIP, PresentedKey: key}
}

func (g *Gate) ipAllowed(clientIP string) bool {
	for _, rule := range g.allowlist {
		if MatchCIDR(clientIP, rule) {
			return true
		}
	}
	return false
}

// ExtractKey returns the credential from the Authorization bearer token, the X-API-Key
// header or the api_key query parameter, in that order.
func ExtractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get("api_key"))
}

// ClientIP returns the host part of r.RemoteAddr. When the server trusts a proxy,
// RemoteAddr has already been rewritten from the forwarding headers.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type decisionKey struct{}

// WithDecision attaches d to ctx. Handlers may read it but must not base authorization on it.
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

func DecisionFrom(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(Decision)
	return d, ok
}
