package security

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync/atomic"

	applog "tablero/internal/log"
)

// Detector resolves client addresses and turns away scanner probes.
type Detector struct {
	trustedProxies []netip.Prefix
	probes         atomic.Int64
	logger         *applog.Logger
}

// probePatterns are path fragments no dashboard route contains.
var probePatterns = []string{
	"../", "..\\", "/.env", "/.git", "/.ssh", "wp-admin", "wp-login",
	"phpmyadmin", ".php", "etc/passwd", "cmd.exe", "<script",
}

// NewDetector trusts forwarding headers only from loopback and private networks.
func NewDetector(logger *applog.Logger) *Detector {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Detector{
		trustedProxies: []netip.Prefix{
			netip.MustParsePrefix("127.0.0.0/8"),
			netip.MustParsePrefix("::1/128"),
			netip.MustParsePrefix("10.0.0.0/8"),
			netip.MustParsePrefix("172.16.0.0/12"),
			netip.MustParsePrefix("192.168.0.0/16"),
		},
		logger: logger.WithComponent(applog.ComponentSecurity),
	}
}

func (d *Detector) trusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range d.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller's address. X-Forwarded-For and X-Real-IP are
// honoured only when the direct peer is a trusted proxy.
func (d *Detector) ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	direct, err := netip.ParseAddr(host)
	if err != nil || !d.trusted(direct) {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr.String()
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.String()
		}
	}
	return host
}

// IsProbe reports whether the request path looks like a vulnerability scan.
func IsProbe(r *http.Request) bool {
	path := strings.ToLower(r.URL.Path)
	for _, p := range probePatterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return r.Method == http.MethodTrace || r.Method == http.MethodConnect
}

// Probes returns how many probe requests were rejected.
func (d *Detector) Probes() int64 {
	return d.probes.Load()
}

// Middleware answers probes with 404 before they reach the router.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsProbe(r) {
			d.probes.Add(1)
			d.logger.WarnContext(r.Context(), "Probe request rejected",
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldClientIP, d.ClientIP(r))
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
