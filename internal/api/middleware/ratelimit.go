package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	"github.com/rohits-web03/clipdrop/internal/utils"
)

const limiterTTL = time.Minute

// RateLimiter keeps one token bucket per client IP. Idle buckets expire.
// X-Forwarded-For is only consulted when the peer is a trusted proxy.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	trusted []netip.Prefix
	cache   *ttlcache.Cache[string, *rate.Limiter]
	logger  *slog.Logger
}

// NewRateLimiter accepts trusted proxies as bare IPs or CIDRs; malformed
// entries are logged and skipped.
func NewRateLimiter(limit float64, burst int, trustedProxies []string, logger *slog.Logger) *RateLimiter {
	logger = logger.With("component", "rate-limiter")
	trusted := make([]netip.Prefix, 0, len(trustedProxies))
	for _, raw := range trustedProxies {
		prefix, err := parseProxy(raw)
		if err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "value", raw, "error", err)
			continue
		}
		trusted = append(trusted, prefix)
	}

	cache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](limiterTTL),
		ttlcache.WithDisableTouchOnHit[string, *rate.Limiter](),
	)
	go cache.Start()
	return &RateLimiter{
		limit:   rate.Limit(limit),
		burst:   burst,
		trusted: trusted,
		cache:   cache,
		logger:  logger,
	}
}

func parseProxy(raw string) (netip.Prefix, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "/") {
		prefix, err := netip.ParsePrefix(raw)
		return prefix.Masked(), err
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (rl *RateLimiter) Stop() {
	rl.cache.Stop()
}

func (rl *RateLimiter) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP walks X-Forwarded-For from the nearest hop and returns the first
// address that is not a trusted proxy. Untrusted peers cannot spoof the header.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !rl.isTrusted(peer) {
		return host
	}

	hops := r.Header.Values("X-Forwarded-For")
	var chain []string
	for _, h := range hops {
		chain = append(chain, strings.Split(h, ",")...)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(chain[i]))
		if err != nil {
			// Anything left of a garbled hop is unverifiable.
			break
		}
		if !rl.isTrusted(addr) {
			return addr.Unmap().String()
		}
	}
	return host
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	item, _ := rl.cache.GetOrSet(ip, rate.NewLimiter(rl.limit, rl.burst))
	return item.Value()
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.limiter(rl.clientIP(r))
		res := limiter.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			rl.logger.Warn("Rate limit exceeded", "path", r.URL.Path, "remote_addr", r.RemoteAddr)

			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(delay.Seconds())))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%v", limiter.Limit()))
			w.Header().Set("X-RateLimit-Burst", fmt.Sprintf("%d", limiter.Burst()))
			utils.JSONResponse(w, http.StatusTooManyRequests, utils.Payload{
				Success: false,
				Message: "Too many requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
