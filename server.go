package scribe

import (
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server wires the auth and note handlers onto one router.
type Server struct {
	Auth    *Auth
	Notes   *Notes
	Gate    *Middleware
	Session *scs.SessionManager
	Logger  *zap.Logger

	// Development turns on stack traces in error responses.
	Development bool
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle funnels every handler failure into the centralized responder.
func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	responder := &ErrorResponder{Logger: s.Logger, Development: s.Development}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			responder.Respond(w, r, err)
		}
	}
}

// Handler builds the full route tree under /api/v1.
func (s *Server) Handler() http.Handler {
	root := mux.NewRouter()
	api := root.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/register", s.handle(s.Auth.HandleRegister)).Methods(http.MethodPost)
	api.HandleFunc("/verify-otp", s.handle(s.Auth.HandleVerifyOTP)).Methods(http.MethodPost)
	api.HandleFunc("/login", s.handle(s.Auth.HandleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/login/otp", s.handle(s.Auth.HandleRequestOTP)).Methods(http.MethodPost)
	api.HandleFunc("/logout", s.handle(s.Auth.HandleLogout)).Methods(http.MethodGet)
	api.HandleFunc("/password/forgot", s.handle(s.Auth.HandleForgotPassword)).Methods(http.MethodPost)
	api.HandleFunc("/password/reset/{token}", s.handle(s.Auth.HandleResetPassword)).Methods(http.MethodPut)

	api.Handle("/me", s.Gate.EnsureUser(s.handle(s.Auth.HandleGetUser))).Methods(http.MethodGet)

	notes := api.PathPrefix("/notes").Subrouter()
	notes.Use(s.Gate.EnsureUser)
	notes.HandleFunc("", s.handle(s.Notes.HandleCreate)).Methods(http.MethodPost)
	notes.HandleFunc("", s.handle(s.Notes.HandleList)).Methods(http.MethodGet)
	notes.HandleFunc("/{id}", s.handle(s.Notes.HandleGet)).Methods(http.MethodGet)
	notes.HandleFunc("/{id}", s.handle(s.Notes.HandleUpdate)).Methods(http.MethodPut)
	notes.HandleFunc("/{id}", s.handle(s.Notes.HandleDelete)).Methods(http.MethodDelete)

	root.Use(s.logRequests)

	var handler http.Handler = root
	if s.Session != nil {
		handler = s.Session.LoadAndSave(handler)
	}
	return handler
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.Logger.Debug("request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}
