// Package web renders the browser pages: the landing page, the document
// list with sign-in, the editor and the share settings.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"docshare/internal/auth"
	"docshare/internal/document/history"
	"docshare/internal/document/model"
	"docshare/internal/document/service"
	"docshare/middleware"
	"docshare/pkg/logger"

	"github.com/gorilla/mux"
)

//go:embed templates/*.html
var templateFS embed.FS

// Documents is the document service as the pages use it.
type Documents interface {
	ListDocuments(ctx context.Context, userID string) ([]model.Document, error)
	CreateDocument(ctx context.Context, userID, title string) (*model.Document, error)
	Editor(ctx context.Context, userID, docID string) (*service.Editor, error)
	SaveVersion(ctx context.Context, userID, docID, content, comment string) (*model.Version, error)
	Members(ctx context.Context, userID, docID string) (model.DocumentView, []model.Member, error)
	Invite(ctx context.Context, userID, docID, email, role string) (model.InviteResult, error)
	ChangeRole(ctx context.Context, userID, docID, memberID, role string) (model.InviteResult, error)
	RemoveMember(ctx context.Context, userID, docID, memberID string) error
}

// SignIn is the session flow behind the sign-in form and the callback.
type SignIn interface {
	SendMagicLink(ctx context.Context, w http.ResponseWriter, email string) error
	CompleteSignIn(ctx context.Context, w http.ResponseWriter, r *http.Request, code string) (*auth.User, error)
	SignOut(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

type Status struct {
	Text string
	OK   bool
}

func ok(text string) Status      { return Status{Text: text, OK: true} }
func failed(text string) Status  { return Status{Text: text} }
func errStatus(err error) Status { return Status{Text: err.Error()} }

type Handler struct {
	Docs     Documents
	Sessions SignIn
	pages    map[string]*template.Template
}

func NewHandler(docs Documents, sessions SignIn) (*Handler, error) {
	funcs := template.FuncMap{
		"fmtTime": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") },
		"fmtDate": func(t time.Time) string { return t.Local().Format("2006-01-02") },
	}

	pages := make(map[string]*template.Template)
	for _, name := range []string{"home", "documents", "editor", "share", "denied"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return &Handler{Docs: docs, Sessions: sessions, pages: pages}, nil
}

func (h *Handler) render(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := h.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.Sugar.Errorf("Failed to render %s: %v", page, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type deniedPage struct {
	Reason    string
	Back      string
	BackLabel string
}

func (h *Handler) denied(w http.ResponseWriter, reason, back, backLabel string) {
	h.render(w, http.StatusForbidden, "denied", deniedPage{Reason: reason, Back: back, BackLabel: backLabel})
}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "home", struct{ Now time.Time }{time.Now()})
}

// AuthCallback finishes a magic-link sign-in. It always lands on the
// document list; a failed exchange simply leaves the visitor signed out.
func (h *Handler) AuthCallback(w http.ResponseWriter, r *http.Request) {
	if code := r.URL.Query().Get("code"); code != "" {
		if _, err := h.Sessions.CompleteSignIn(r.Context(), w, r, code); err != nil {
			logger.Sugar.Warnf("Sign-in callback failed: %v", err)
		}
	}
	http.Redirect(w, r, middleware.SignInPath, http.StatusSeeOther)
}

// --- document list ---

type documentsPage struct {
	User      *auth.User
	Email     string
	Title     string
	Documents []model.Document
	Status    Status
}

func currentUser(r *http.Request) *auth.User {
	id := middleware.UserID(r.Context())
	if id == "" {
		return nil
	}
	return &auth.User{ID: id, Email: middleware.UserEmail(r.Context())}
}

func (h *Handler) renderDocuments(w http.ResponseWriter, r *http.Request, page documentsPage) {
	page.User = currentUser(r)
	if page.User != nil {
		docs, err := h.Docs.ListDocuments(r.Context(), page.User.ID)
		if err != nil && page.Status.Text == "" {
			page.Status = errStatus(err)
		}
		page.Documents = docs
	}
	h.render(w, http.StatusOK, "documents", page)
}

func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	h.renderDocuments(w, r, documentsPage{})
}

func (h *Handler) SendMagicLink(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	if err := h.Sessions.SendMagicLink(r.Context(), w, email); err != nil {
		h.renderDocuments(w, r, documentsPage{Email: email, Status: errStatus(err)})
		return
	}
	h.renderDocuments(w, r, documentsPage{Status: ok("Magic link sent, check your inbox!")})
}

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	title := r.FormValue("title")
	if _, err := h.Docs.CreateDocument(r.Context(), middleware.UserID(r.Context()), title); err != nil {
		h.renderDocuments(w, r, documentsPage{Title: title, Status: errStatus(err)})
		return
	}
	h.renderDocuments(w, r, documentsPage{Status: ok("Document created!")})
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.SignOut(r.Context(), w, r); err != nil {
		logger.Sugar.Warnf("Sign-out: %v", err)
	}
	http.Redirect(w, r, middleware.SignInPath, http.StatusSeeOther)
}

// --- editor ---

type editorPage struct {
	View     model.DocumentView
	Versions []history.Entry
	Content  string
	Comment  string
	Status   Status
}

// loadEditor refetches the document, role and history and renders the
// editor, or the denial page when the caller may not view it.
func (h *Handler) loadEditor(w http.ResponseWriter, r *http.Request, page editorPage, fill func(*editorPage)) {
	docID := mux.Vars(r)["id"]
	ed, err := h.Docs.Editor(r.Context(), middleware.UserID(r.Context()), docID)
	if errors.Is(err, service.ErrNoAccess) {
		h.denied(w, "Document does not exist or you have no access.", middleware.SignInPath, "← Documents")
		return
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load editor for doc %s: %v", docID, err)
		h.denied(w, err.Error(), middleware.SignInPath, "← Documents")
		return
	}

	page.View = ed.View
	page.Versions = ed.Versions
	if fill != nil {
		fill(&page)
	}
	h.render(w, http.StatusOK, "editor", page)
}

func (h *Handler) Editor(w http.ResponseWriter, r *http.Request) {
	versionID := r.URL.Query().Get("version")
	h.loadEditor(w, r, editorPage{}, func(p *editorPage) {
		if versionID == "" {
			return
		}
		v, err := service.FindVersion(p.Versions, versionID)
		if err != nil {
			p.Status = failed("Version not found.")
			return
		}
		p.Content = v.Content
		p.Status = ok("Loaded version from " + v.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	})
}

func (h *Handler) SaveVersion(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["id"]
	content := r.FormValue("content")
	comment := r.FormValue("comment")

	v, err := h.Docs.SaveVersion(r.Context(), middleware.UserID(r.Context()), docID, content, comment)
	switch {
	case errors.Is(err, service.ErrNoAccess):
		h.denied(w, "Document does not exist or you have no access.", middleware.SignInPath, "← Documents")
	case err != nil:
		h.loadEditor(w, r, editorPage{Content: content, Comment: comment, Status: errStatus(err)}, nil)
	default:
		// The comment is cleared and the content kept for further editing.
		h.loadEditor(w, r, editorPage{Content: v.Content, Status: ok("Version saved!")}, nil)
	}
}

// --- share settings ---

type sharePage struct {
	View    model.DocumentView
	Members []model.Member
	Email   string
	Role    string
	Status  Status
}

func (h *Handler) loadShare(w http.ResponseWriter, r *http.Request, page sharePage) {
	docID := mux.Vars(r)["id"]
	view, members, err := h.Docs.Members(r.Context(), middleware.UserID(r.Context()), docID)
	switch {
	case errors.Is(err, service.ErrNotOwner), errors.Is(err, service.ErrNoAccess):
		h.denied(w, "Only the document owner can manage members.", "/doc/"+docID, "← Back to document")
		return
	case err != nil:
		logger.Sugar.Errorf("Failed to load members of doc %s: %v", docID, err)
		h.denied(w, err.Error(), "/doc/"+docID, "← Back to document")
		return
	}

	page.View = view
	page.Members = members
	if page.Role == "" {
		page.Role = "editor"
	}
	h.render(w, http.StatusOK, "share", page)
}

func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	h.loadShare(w, r, sharePage{})
}

func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["id"]
	email, role := r.FormValue("email"), r.FormValue("role")

	res, err := h.Docs.Invite(r.Context(), middleware.UserID(r.Context()), docID, email, role)
	switch {
	case err != nil:
		h.loadShare(w, r, sharePage{Email: email, Role: role, Status: errStatus(err)})
	case !res.OK():
		h.loadShare(w, r, sharePage{Email: email, Role: role, Status: failed(res.Error.Message())})
	default:
		h.loadShare(w, r, sharePage{Role: role, Status: ok("Member added or updated!")})
	}
}

func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["id"]
	res, err := h.Docs.ChangeRole(r.Context(), middleware.UserID(r.Context()), docID, r.FormValue("member_id"), r.FormValue("role"))
	if errors.Is(err, service.ErrNotOwner) || errors.Is(err, service.ErrNoAccess) {
		h.loadShare(w, r, sharePage{})
		return
	}
	if err != nil || !res.OK() {
		if err != nil {
			logger.Sugar.Warnf("Role change on doc %s failed: %v", docID, err)
		}
		h.loadShare(w, r, sharePage{Status: failed("Role update failed.")})
		return
	}
	h.loadShare(w, r, sharePage{Status: ok("Role updated.")})
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["id"]
	err := h.Docs.RemoveMember(r.Context(), middleware.UserID(r.Context()), docID, r.FormValue("member_id"))
	if err != nil {
		h.loadShare(w, r, sharePage{Status: errStatus(err)})
		return
	}
	h.loadShare(w, r, sharePage{Status: ok("Member removed.")})
}
