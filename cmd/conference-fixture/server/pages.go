package server

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
)

//go:embed assets
var assets embed.FS

var (
	shell  = template.Must(template.ParseFS(assets, "assets/index.html"))
	static = mustSub(assets, "assets/static")
)

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// uiRoutes are the client-side routes; each serves the same shell and
// app.js renders the view for the path.
var uiRoutes = []string{"/", "/login", "/dashboard/rooms", "/room/{id}"}

func (s *Server) addPageRoutes(r *mux.Router) {
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServerFS(static))).Methods(http.MethodGet)
	for _, path := range uiRoutes {
		r.HandleFunc(path, s.page).Methods(http.MethodGet)
	}
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := shell.Execute(w, struct{ Title string }{s.cfg.Title}); err != nil {
		s.log.Error(err, "rendering page", "path", r.URL.Path)
	}
}
