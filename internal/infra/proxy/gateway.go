package proxy

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/essay-coach-gateway/internal/middleware"
)

const unavailableBody = `{"error":"Backend service unavailable"}`

// headers that belong to a single hop and are never forwarded
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Gateway forwards /api/<version>/* to the grading backend.
type Gateway struct {
	Origin     string // e.g. http://127.0.0.1:8000
	Version    string // v1 or v2
	Prefix     string // path prefix stripped from the incoming request, e.g. /api/v2/
	AuthScheme string // default "Token"
	Client     *http.Client
	Log        *logrus.Entry
}

// NewGateway mounts version under /api/<version>/.
func NewGateway(origin, version, authScheme string, timeout time.Duration, log *logrus.Entry) *Gateway {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gateway{
		Origin:     strings.TrimRight(origin, "/"),
		Version:    version,
		Prefix:     "/api/" + version + "/",
		AuthScheme: authScheme,
		Client:     &http.Client{Timeout: timeout},
		Log:        log,
	}
}

// Target builds <origin>/api/<version>/<suffix>/?<query>.
func (g *Gateway) Target(r *http.Request) string {
	suffix := strings.Trim(strings.TrimPrefix(r.URL.Path, g.Prefix), "/")
	var b strings.Builder
	b.WriteString(strings.TrimRight(g.Origin, "/"))
	b.WriteString("/api/")
	b.WriteString(g.Version)
	b.WriteString("/")
	if suffix != "" {
		b.WriteString(suffix)
		b.WriteString("/")
	}
	if r.URL.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(r.URL.RawQuery)
	}
	return b.String()
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := g.Target(r)
	log := g.logger().WithFields(logrus.Fields{"method": r.Method, "target": target})

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		log.WithError(err).Warn("proxy: build request")
		g.unavailable(w)
		return
	}
	copyHeaders(out.Header, r.Header)
	// biar transport yang decompress, header Content-Encoding dibuang di response
	out.Header.Del("Accept-Encoding")
	out.Header.Del("Host")
	if body != nil {
		out.ContentLength = r.ContentLength
	}

	if tok := middleware.ExtractCredential(r); tok != "" {
		out.Header.Set("Authorization", g.scheme()+" "+tok)
	}

	resp, err := g.client().Do(out)
	if err != nil {
		log.WithError(err).Warn("proxy: backend unreachable")
		g.unavailable(w)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.Header().Del("Content-Encoding")
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.WithError(err).Debug("proxy: copy response body")
	}
}

func (g *Gateway) unavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	io.WriteString(w, unavailableBody)
}

func (g *Gateway) scheme() string {
	if g.AuthScheme != "" {
		return g.AuthScheme
	}
	return "Token"
}

func (g *Gateway) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

func (g *Gateway) logger() *logrus.Entry {
	if g.Log != nil {
		return g.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if isHopHeader(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopHeader(k string) bool {
	for _, h := range hopHeaders {
		if http.CanonicalHeaderKey(k) == h {
			return true
		}
	}
	return false
}
