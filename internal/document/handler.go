package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"docshare/internal/document/history"
	"docshare/internal/document/model"
	"docshare/internal/document/service"
	"docshare/middleware"
	"docshare/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// Service is the document service as the JSON API uses it.
type Service interface {
	ListDocuments(ctx context.Context, userID string) ([]model.Document, error)
	CreateDocument(ctx context.Context, userID, title string) (*model.Document, error)
	DocumentView(ctx context.Context, userID, docID string) (model.DocumentView, error)
	History(ctx context.Context, userID, docID string) ([]history.Entry, error)
	SaveVersion(ctx context.Context, userID, docID, content, comment string) (*model.Version, error)
	Members(ctx context.Context, userID, docID string) (model.DocumentView, []model.Member, error)
	Invite(ctx context.Context, userID, docID, email, role string) (model.InviteResult, error)
	ChangeRole(ctx context.Context, userID, docID, memberID, role string) (model.InviteResult, error)
	RemoveMember(ctx context.Context, userID, docID, memberID string) error
}

type DocumentHandler struct {
	Service  Service
	validate *validator.Validate
}

func NewDocumentHandler(service Service) *DocumentHandler {
	return &DocumentHandler{Service: service, validate: validator.New()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a service error onto a status code. Unknown errors come from the
// backend and are passed through as they are.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNoAccess),
		errors.Is(err, service.ErrNotOwner),
		errors.Is(err, service.ErrReadOnly):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrEmptyEmail),
		errors.Is(err, service.ErrEmptyTitle):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logger.Sugar.Errorf("Handler: %s %s failed: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decode reads and validates a JSON body into dst.
func (h *DocumentHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, strings.ToLower(fe.Field())+" failed on "+fe.Tag())
			}
			writeError(w, http.StatusBadRequest, strings.Join(msgs, "; "))
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

var inviteStatus = map[model.InviteError]int{
	model.InviteNotOwner:          http.StatusForbidden,
	model.InviteUserNotFound:      http.StatusNotFound,
	model.InviteInvalidRole:       http.StatusBadRequest,
	model.InviteCannotInviteOwner: http.StatusConflict,
}

func writeInvite(w http.ResponseWriter, res model.InviteResult) {
	if res.OK() {
		writeJSON(w, http.StatusOK, model.InviteResponse{Success: true})
		return
	}
	status, ok := inviteStatus[res.Error]
	if !ok {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, model.InviteResponse{Error: res.Error, Message: res.Error.Message()})
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Service.ListDocuments(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDocRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.Service.CreateDocument(r.Context(), middleware.UserID(r.Context()), req.Title)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.DocumentView(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *DocumentHandler) GetVersions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.History(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *DocumentHandler) SaveVersion(w http.ResponseWriter, r *http.Request) {
	var req model.SaveVersionRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.Service.SaveVersion(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], req.Content, req.Comment)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *DocumentHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	_, members, err := h.Service.Members(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *DocumentHandler) InviteMember(w http.ResponseWriter, r *http.Request) {
	var req model.InviteRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Service.Invite(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], req.Email, req.Role)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeInvite(w, res)
}

func (h *DocumentHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req model.ChangeRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	res, err := h.Service.ChangeRole(r.Context(), middleware.UserID(r.Context()), vars["id"], vars["userID"], req.Role)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeInvite(w, res)
}

func (h *DocumentHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Service.RemoveMember(r.Context(), middleware.UserID(r.Context()), vars["id"], vars["userID"]); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
