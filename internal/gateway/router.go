package gateway

import (
	"net/http"

	"github.com/objectgw/gateway/internal/edgecache"
)

// Handler returns the fully wired http.Handler for the gateway, mirroring
// the teacher's Server.Handler: a stdlib mux with Go 1.22 pattern routing,
// wrapped by the middleware chain. Unlike the teacher, no authentication
// middleware is installed — access control is outside this gateway's scope.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	var getHandler http.Handler = http.HandlerFunc(s.handleGet)
	if s.Mode == edgecache.ModeInterceptor {
		getHandler = s.Cache.Wrap(getHandler, func(r *http.Request) string {
			return r.URL.Path[1:]
		})
	}

	mux.HandleFunc("PUT /{key...}", s.handlePut)
	mux.Handle("GET /{key...}", getHandler)
	mux.HandleFunc("HEAD /{key...}", s.handleHead)
	mux.HandleFunc("DELETE /{key...}", s.handleDelete)

	handler := slashFix(mux)
	handler = logRequest(handler)
	handler = recoverer(handler)
	handler = serverHeader(handler)
	return handler
}
