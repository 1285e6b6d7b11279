package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// wildcardOrigin matches origins of the form scheme://<label><suffix>
type wildcardOrigin struct {
	scheme string // "https://"
	suffix string // ".cyclesense.pages.dev"
}

// parseWildcardOrigin returns nil unless pattern is a valid single-label
// wildcard such as https://*.example.com.
func parseWildcardOrigin(pattern string) *wildcardOrigin {
	var scheme string
	switch {
	case strings.HasPrefix(pattern, "https://"):
		scheme = "https://"
	case strings.HasPrefix(pattern, "http://"):
		scheme = "http://"
	default:
		return nil
	}

	host := strings.TrimPrefix(pattern, scheme)
	suffix, ok := strings.CutPrefix(host, "*")
	if !ok || strings.Contains(suffix, "*") {
		return nil
	}
	// ".com" alone would match every .com origin
	if !strings.HasPrefix(suffix, ".") || strings.Count(suffix, ".") < 2 {
		return nil
	}
	return &wildcardOrigin{scheme: scheme, suffix: suffix}
}

// matches reports whether origin is exactly one label under the suffix
func (w *wildcardOrigin) matches(origin string) bool {
	host, ok := strings.CutPrefix(origin, w.scheme)
	if !ok {
		return false
	}
	label, ok := strings.CutSuffix(host, w.suffix)
	if !ok || label == "" {
		return false
	}
	return !strings.ContainsAny(label, "./:")
}

type originPolicy struct {
	allowAll  bool
	exact     map[string]struct{}
	wildcards []*wildcardOrigin
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{exact: make(map[string]struct{})}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch {
		case o == "":
		case o == "*":
			p.allowAll = true
		default:
			if w := parseWildcardOrigin(o); w != nil {
				p.wildcards = append(p.wildcards, w)
			} else {
				p.exact[o] = struct{}{}
			}
		}
	}
	if len(p.exact) == 0 && len(p.wildcards) == 0 {
		p.allowAll = true
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, w := range p.wildcards {
		if w.matches(origin) {
			return true
		}
	}
	return false
}

// CORS middleware to handle cross-origin requests.
// An empty allow list allows every origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	policy := newOriginPolicy(allowedOrigins)

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if policy.allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && policy.allows(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		} else if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
