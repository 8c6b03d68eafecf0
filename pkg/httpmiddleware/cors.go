package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSConfig configures CORS for browser clients of the API.
type CORSConfig struct {
	// Origins allowed to call the API. Empty or "*" allows any origin.
	Origins       []string
	AllowHeaders  []string
	ExposeHeaders []string
	Credentials   bool
	MaxAge        time.Duration
}

const corsMethods = "GET, POST, PUT, DELETE, OPTIONS"

// CORS answers preflight requests and decorates cross-origin responses.
// With Credentials set the request origin is echoed instead of "*".
func CORS(cfg CORSConfig) Middleware {
	anyOrigin := len(cfg.Origins) == 0
	allowed := make(map[string]string, len(cfg.Origins))
	for _, o := range cfg.Origins {
		if o == "*" {
			anyOrigin = true
			continue
		}
		allowed[strings.ToLower(o)] = o
	}
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(int(cfg.MaxAge.Seconds()))
	}

	resolve := func(origin string) string {
		if o, ok := allowed[strings.ToLower(origin)]; ok {
			return o
		}
		switch {
		case !anyOrigin:
			return ""
		case cfg.Credentials:
			return origin
		default:
			return "*"
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowOrigin := resolve(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowOrigin != "" {
					h.Set("Access-Control-Allow-Origin", allowOrigin)
					h.Set("Access-Control-Allow-Methods", corsMethods)
					switch {
					case allowHeaders != "":
						h.Set("Access-Control-Allow-Headers", allowHeaders)
					case r.Header.Get("Access-Control-Request-Headers") != "":
						h.Set("Access-Control-Allow-Headers", r.Header.Get("Access-Control-Request-Headers"))
					}
					if cfg.Credentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if maxAge != "" {
						h.Set("Access-Control-Max-Age", maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowOrigin != "" {
				h.Set("Access-Control-Allow-Origin", allowOrigin)
				if cfg.Credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if exposeHeaders != "" {
					h.Set("Access-Control-Expose-Headers", exposeHeaders)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
