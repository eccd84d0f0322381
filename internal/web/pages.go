package web

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"

	"guincheuse/internal/config"
	appLog "guincheuse/internal/log"
	"guincheuse/internal/model"
)

var errNoEventSource = errors.New("no event source configured")

// pageFiles maps a page name to its template; each is parsed together with
// the shared layout.
var pageFiles = map[string]string{
	"home":        "templates/home.html",
	"carte":       "templates/carte.html",
	"event":       "templates/event.html",
	"reservation": "templates/reservation.html",
	"privacy":     "templates/privacy.html",
}

type pageData struct {
	Page    string
	Title   string
	Venue   config.VenueConfig
	Content *siteContent
	Year    int
	Poster  bool
	Data    any
}

func parsePages(fsys fs.FS) (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageFiles))
	for name, file := range pageFiles {
		t, err := template.ParseFS(fsys, "templates/layout.html", file)
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

func (s *Server) render(w http.ResponseWriter, page, title string, poster bool, data any) {
	t, ok := s.pages[page]
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}

	pd := pageData{
		Page:    page,
		Title:   title,
		Venue:   s.cfg.Venue,
		Content: s.content,
		Year:    s.now().In(s.loc).Year(),
		Poster:  poster,
		Data:    data,
	}

	// Render into a buffer so a template error never leaves a half page.
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", pd); err != nil {
		appLog.Error("render page failed", err, "page", page)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	s.render(w, "home", "", false, nil)
}

func (s *Server) handleCarte(w http.ResponseWriter, _ *http.Request) {
	s.render(w, "carte", "La Carte", false, nil)
}

func (s *Server) handleReservationPage(w http.ResponseWriter, _ *http.Request) {
	sizes := make([]string, 0, 12)
	for i := 1; i <= 12; i++ {
		sizes = append(sizes, strconv.Itoa(i))
	}
	s.render(w, "reservation", "Réserver", false, sizes)
}

func (s *Server) handlePrivacy(w http.ResponseWriter, _ *http.Request) {
	s.render(w, "privacy", "Politique de confidentialité", false, nil)
}

// handleEventPage renders the concert programme. A feed failure is not an
// error for the page: it shows a notice and the fallback programme.
// ?poster=1 drops the site chrome for screenshot capture.
func (s *Server) handleEventPage(w http.ResponseWriter, r *http.Request) {
	var (
		occs    []model.Occurrence
		loadErr error
	)
	if s.events == nil {
		loadErr = errNoEventSource
	} else {
		occs, loadErr = s.events.Events(r.Context(), s.now())
	}
	if loadErr != nil {
		appLog.Error("failed to load events from feed", loadErr, "request_id", RequestID(r.Context()))
	}

	poster := r.URL.Query().Get("poster") == "1"
	s.render(w, "event", "Concerts", poster, buildEventsPage(occs, loadErr, s.loc))
}
