// Package middleware provides HTTP middleware for the relay API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// The REST API is read-only; chat traffic goes over the WebSocket, which
// checks origins on its own.
var defaultMethods = []string{http.MethodGet, http.MethodOptions}

// CORSOptions configures CORS.
type CORSOptions struct {
	// Origins lists exact origins; "*" admits any origin without credentials.
	Origins []string
	Methods []string // defaults to GET, OPTIONS
	Headers []string // request headers a preflight may ask for
	MaxAge  time.Duration
}

type cors struct {
	wildcard bool
	origins  map[string]bool
	methods  string
	headers  map[string]string // lowercased -> canonical
	maxAge   string
}

// CORS returns middleware that answers preflights and sets CORS headers for
// the configured origins.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	c := &cors{
		origins: make(map[string]bool, len(opts.Origins)),
		headers: make(map[string]string, len(opts.Headers)),
	}
	for _, o := range opts.Origins {
		if o == "*" {
			c.wildcard = true
			continue
		}
		c.origins[o] = true
	}
	methods := opts.Methods
	if len(methods) == 0 {
		methods = defaultMethods
	}
	c.methods = strings.Join(methods, ", ")
	for _, h := range opts.Headers {
		c.headers[strings.ToLower(h)] = http.CanonicalHeaderKey(h)
	}
	if opts.MaxAge > 0 {
		c.maxAge = strconv.Itoa(int(opts.MaxAge / time.Second))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			explicit := c.origins[origin]
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if origin == "" || !(explicit || c.wildcard) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			// An echoed wildcard origin with credentials would let any site
			// read authenticated history.
			if explicit {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", c.methods)
			if allowed := c.allowedHeaders(r.Header.Get("Access-Control-Request-Headers")); allowed != "" {
				h.Set("Access-Control-Allow-Headers", allowed)
			}
			if c.maxAge != "" {
				h.Set("Access-Control-Max-Age", c.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

// allowedHeaders filters the requested headers down to the configured set.
func (c *cors) allowedHeaders(requested string) string {
	var out []string
	for _, h := range strings.Split(requested, ",") {
		if canonical, ok := c.headers[strings.ToLower(strings.TrimSpace(h))]; ok {
			out = append(out, canonical)
		}
	}
	return strings.Join(out, ", ")
}
