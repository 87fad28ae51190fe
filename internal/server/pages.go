package server

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"comingsoon/internal/feed"
	"comingsoon/internal/identity"
	"comingsoon/internal/model"
	"comingsoon/internal/storage"
	"comingsoon/internal/view"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "login", "dashboard", "detail"}

type pages struct {
	byName map[string]*template.Template
}

func loadPages() (*pages, error) {
	p := &pages{byName: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		p.byName[name] = t
	}
	return p, nil
}

type loginPage struct {
	Email string
	Error string
}

type dashboardPage struct {
	User      *model.UserIdentity
	Dashboard view.Dashboard
}

type detailPage struct {
	User   *model.UserIdentity
	Detail view.Detail
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	t, ok := s.pages.byName[name]
	if !ok {
		s.log.Error("unknown page", "page", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.log.Error("render page", "page", name, "error", err, "request_id", RequestID(r.Context()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "home", nil)
}

// handleAdmin shows the dashboard to signed-in admins and the sign-in form
// to everyone else.
func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.log.Error("resolve session", "error", err, "request_id", RequestID(r.Context()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if user == nil {
		s.render(w, r, http.StatusOK, "login", loginPage{})
		return
	}

	dash := view.FailedDashboard()
	snap, err := feed.Load(r.Context(), s.feed.Source())
	if err != nil {
		s.log.Error("load dashboard", "error", err, "request_id", RequestID(r.Context()))
	} else {
		dash = view.NewDashboard(snap)
	}
	s.render(w, r, http.StatusOK, "dashboard", dashboardPage{User: user, Dashboard: dash})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login", loginPage{Error: "Invalid sign-in request."})
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	sess, err := s.gate.SignIn(r.Context(), email, password)
	s.metrics.SignIn(err == nil)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		s.log.Info("admin sign-in rejected", "email", email, "request_id", RequestID(r.Context()))
		s.render(w, r, http.StatusUnauthorized, "login", loginPage{Email: email, Error: "Invalid email or password."})
		return
	}
	if err != nil {
		s.log.Error("admin sign-in", "email", email, "error", err, "request_id", RequestID(r.Context()))
		s.render(w, r, http.StatusInternalServerError, "login", loginPage{Email: email, Error: "Sign-in is unavailable right now."})
		return
	}

	s.log.Info("admin signed in", "email", email, "request_id", RequestID(r.Context()))
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/admin",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if err := s.gate.SignOut(r.Context(), c.Value); err != nil {
			s.log.Error("admin sign-out", "error", err, "request_id", RequestID(r.Context()))
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/admin",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// loadDetail resolves the detail of the visitor named in the route. A
// missing visitor yields an empty Detail and http.StatusNotFound.
func (s *Server) loadDetail(r *http.Request) (view.Detail, int) {
	id := mux.Vars(r)["id"]
	doc, err := s.docs.GetDocument(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return view.NewDetail(nil), http.StatusNotFound
	}
	if err != nil {
		s.log.Error("load visitor", "id", id, "error", err, "request_id", RequestID(r.Context()))
		return view.NewDetail(nil), http.StatusInternalServerError
	}
	rec := feed.Decode(*doc)
	return view.NewDetail(&rec), http.StatusOK
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	d, status := s.loadDetail(r)
	s.render(w, r, status, "detail", detailPage{User: UserFrom(r.Context()), Detail: d})
}

func (s *Server) handleDetailJSON(w http.ResponseWriter, r *http.Request) {
	d, status := s.loadDetail(r)
	writeJSON(w, status, d)
}
