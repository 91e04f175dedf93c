package portal

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFS embed.FS

type ClickPage struct {
	ClientIP        string
	ClientMAC       string
	NodeMAC         string
	UserContinueURL string
	SessionToken    string
}

type SuccessPage struct {
	UserContinueURL string
}

type ErrorPage struct {
	Title     string
	Message   string
	RequestID string
}

type Renderer struct {
	tpls *template.Template
}

// NewRenderer parses the embedded page templates.
func NewRenderer() (*Renderer, error) {
	tpls, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	for _, t := range tpls.Templates() {
		log.Debug().Str("template", t.Name()).Msg("template registered")
	}
	return &Renderer{tpls: tpls}, nil
}

// render executes into a buffer first so a template failure never leaves a
// half-written 200 on the wire.
func (r *Renderer) render(w http.ResponseWriter, code int, name string, data any) {
	var buf bytes.Buffer
	if err := r.tpls.ExecuteTemplate(&buf, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("template render failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

func (r *Renderer) Click(w http.ResponseWriter, data ClickPage) {
	r.render(w, http.StatusOK, "click", data)
}

func (r *Renderer) Success(w http.ResponseWriter, data SuccessPage) {
	r.render(w, http.StatusOK, "success", data)
}

func (r *Renderer) Error(w http.ResponseWriter, code int, data ErrorPage) {
	r.render(w, code, "error", data)
}
