package server

import (
	"net/http"
)

// staticHandler serves the watched directory under /static/. Responses are
// marked uncacheable so a frame reload always fetches the latest render.
func (s *Server) staticHandler() http.Handler {
	files := http.StripPrefix(StaticPrefix, http.FileServer(http.Dir(s.opts.Dir)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, must-revalidate")
		files.ServeHTTP(w, r)
	})
}
