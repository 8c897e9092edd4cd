package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderCORSOrigin        = "Origin"
	HeaderCORSVary          = "Vary"
	HeaderCORSRequestMethod = "Access-Control-Request-Method"
	HeaderCORSAllowOrigin   = "Access-Control-Allow-Origin"
	HeaderCORSAllowMethods  = "Access-Control-Allow-Methods"
	HeaderCORSAllowHeaders  = "Access-Control-Allow-Headers"
	HeaderCORSAllowCreds    = "Access-Control-Allow-Credentials"
	HeaderCORSMaxAge        = "Access-Control-Max-Age"

	CORSAnyOrigin  = "*"
	CORSNullOrigin = "null"
)

var (
	ErrCORSPolicy = errors.New("CORS policy error")
)

// CORSPolicy describes which cross-origin browser requests are allowed.
// A null origin is never allowed.
type CORSPolicy struct {
	// Origins are scheme://host[:port] values, or "*" to allow any origin.
	Origins []string
	Methods []string
	Headers []string
	// MaxAge is how long a preflight may be cached. Defaults to 24 hours.
	MaxAge           time.Duration
	AllowCredentials bool
}

type corsGrant struct {
	anyOrigin bool
	origins   map[string]bool
	methods   string
	headers   string
	maxAge    string
	creds     bool
}

func (p CORSPolicy) compile() (*corsGrant, error) {
	if len(p.Origins) == 0 {
		return nil, fmt.Errorf("%w: no allowed origins", ErrCORSPolicy)
	}
	if len(p.Methods) == 0 {
		return nil, fmt.Errorf("%w: no allowed methods", ErrCORSPolicy)
	}
	maxAge := p.MaxAge
	if maxAge == 0 {
		maxAge = 24 * time.Hour
	}
	if maxAge < 0 {
		return nil, fmt.Errorf("%w: max age is negative", ErrCORSPolicy)
	}
	g := &corsGrant{
		origins: map[string]bool{},
		maxAge:  strconv.Itoa(int(maxAge.Round(time.Second).Seconds())),
		creds:   p.AllowCredentials,
	}
	for _, origin := range p.Origins {
		origin = strings.TrimSpace(origin)
		if origin == CORSAnyOrigin {
			g.anyOrigin = true
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || len(u.Scheme) == 0 || len(u.Host) == 0 {
			return nil, fmt.Errorf("%w: invalid origin '%s'", ErrCORSPolicy, origin)
		}
		g.origins[u.Scheme+"://"+u.Host] = true
	}
	methods := make([]string, 0, len(p.Methods))
	for _, method := range p.Methods {
		methods = append(methods, strings.ToUpper(strings.TrimSpace(method)))
	}
	headers := make([]string, 0, len(p.Headers))
	for _, header := range p.Headers {
		headers = append(headers, textproto.CanonicalMIMEHeaderKey(header))
	}
	slices.Sort(methods)
	slices.Sort(headers)
	g.methods = strings.Join(slices.Compact(methods), ",")
	g.headers = strings.Join(slices.Compact(headers), ",")
	return g, nil
}

// grant sets the allow headers for the request, and reports whether the origin is allowed.
func (g *corsGrant) grant(w http.ResponseWriter, r *http.Request, preflight bool) bool {
	origin := r.Header.Get(HeaderCORSOrigin)
	if len(origin) == 0 || origin == CORSNullOrigin {
		return false
	}
	h := w.Header()
	h.Add(HeaderCORSVary, HeaderCORSOrigin)
	switch {
	case g.origins[origin]:
		h.Set(HeaderCORSAllowOrigin, origin)
	case g.anyOrigin && g.creds:
		// "*" can't be combined with credentials.
		h.Set(HeaderCORSAllowOrigin, origin)
	case g.anyOrigin:
		h.Set(HeaderCORSAllowOrigin, CORSAnyOrigin)
	default:
		return false
	}
	if g.creds {
		h.Set(HeaderCORSAllowCreds, "true")
	}
	if preflight {
		h.Set(HeaderCORSAllowMethods, g.methods)
		if len(g.headers) > 0 {
			h.Set(HeaderCORSAllowHeaders, g.headers)
		}
		h.Set(HeaderCORSMaxAge, g.maxAge)
	}
	return true
}

// CORSMiddleware answers preflight requests itself, and adds allow headers to other cross-origin requests.
// Disallowed origins get no allow headers, so the browser refuses the response.
func CORSMiddleware(policy CORSPolicy) (Middleware, error) {
	g, err := policy.compile()
	if err != nil {
		return nil, err
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("nil handler")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions && len(r.Header.Get(HeaderCORSRequestMethod)) > 0 {
				g.grant(w, r, true)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			g.grant(w, r, false)
			next.ServeHTTP(w, r)
		})
	}, nil
}
