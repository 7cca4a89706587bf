package router

import (
	"database/sql"
	"fmt"
	"net/http"

	handlers "docshare/handler"
	docHandler "docshare/internal/document"
	"docshare/internal/document/repository"
	"docshare/internal/document/service"
	"docshare/internal/web"
	"docshare/middleware"
	"docshare/socket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sessions is what the routes need from the session manager.
type Sessions interface {
	middleware.Sessions
	web.SignIn
}

func Setup(db *sql.DB, hub *socket.Hub, sessions Sessions, allowedOrigins []string) (http.Handler, error) {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger)

	docRepo := repository.NewDocumentRepository(db)
	docService := service.NewDocumentService(docRepo, hub)

	pages, err := web.NewHandler(docService, sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to set up pages: %w", err)
	}
	api := docHandler.NewDocumentHandler(docService)

	// Probes and metrics
	probes := handlers.NewProbes(db)
	r.HandleFunc("/api/health", handlers.Health).Methods(http.MethodGet)
	r.Handle("/live", probes).Methods(http.MethodGet)
	r.Handle("/ready", probes).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Pages
	optional := middleware.OptionalAuth(sessions)
	page := middleware.PageAuth(sessions)

	r.HandleFunc("/", pages.Home).Methods(http.MethodGet)
	r.HandleFunc("/auth/callback", pages.AuthCallback).Methods(http.MethodGet)

	r.Handle(middleware.SignInPath, optional(http.HandlerFunc(pages.Documents))).Methods(http.MethodGet)
	r.Handle(middleware.SignInPath+"/magic-link", optional(http.HandlerFunc(pages.SendMagicLink))).Methods(http.MethodPost)
	r.Handle(middleware.SignInPath+"/documents", page(http.HandlerFunc(pages.CreateDocument))).Methods(http.MethodPost)
	r.HandleFunc(middleware.SignInPath+"/sign-out", pages.SignOut).Methods(http.MethodPost)

	r.Handle("/doc/{id}", page(http.HandlerFunc(pages.Editor))).Methods(http.MethodGet)
	r.Handle("/doc/{id}", page(http.HandlerFunc(pages.SaveVersion))).Methods(http.MethodPost)
	r.Handle("/doc/{id}/share", page(http.HandlerFunc(pages.Share))).Methods(http.MethodGet)
	r.Handle("/doc/{id}/share/invite", page(http.HandlerFunc(pages.Invite))).Methods(http.MethodPost)
	r.Handle("/doc/{id}/share/role", page(http.HandlerFunc(pages.ChangeRole))).Methods(http.MethodPost)
	r.Handle("/doc/{id}/share/remove", page(http.HandlerFunc(pages.RemoveMember))).Methods(http.MethodPost)

	// WebSocket
	auth := middleware.AuthMiddleware(sessions)
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, docService, w, r, middleware.UserID(r.Context()), middleware.UserEmail(r.Context()))
	})
	r.Handle("/ws", auth(wsHandler)).Methods(http.MethodGet)

	// REST API
	apiRouter := r.PathPrefix("/api/documents").Subrouter()
	apiRouter.Use(auth)
	apiRouter.HandleFunc("", api.GetDocuments).Methods(http.MethodGet)
	apiRouter.HandleFunc("", api.CreateDocument).Methods(http.MethodPost)
	apiRouter.HandleFunc("/{id}", api.GetDocument).Methods(http.MethodGet)
	apiRouter.HandleFunc("/{id}/versions", api.GetVersions).Methods(http.MethodGet)
	apiRouter.HandleFunc("/{id}/versions", api.SaveVersion).Methods(http.MethodPost)
	apiRouter.HandleFunc("/{id}/members", api.GetMembers).Methods(http.MethodGet)
	apiRouter.HandleFunc("/{id}/members", api.InviteMember).Methods(http.MethodPost)
	apiRouter.HandleFunc("/{id}/members/{userID}", api.ChangeRole).Methods(http.MethodPut)
	apiRouter.HandleFunc("/{id}/members/{userID}", api.RemoveMember).Methods(http.MethodDelete)

	return middleware.CORSMiddleware(allowedOrigins)(r), nil
}
