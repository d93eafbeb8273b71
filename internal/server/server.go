package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"elib/internal/app"
	"elib/internal/ratelimit"
	"elib/internal/util"
	"elib/pkg/storage"
)

// Limiter decides whether a keyed request is within quota.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Staging        *storage.Staging
	MaxUploadBytes int64
	// AuthLimiter throttles register and login per client IP. Nil disables it.
	AuthLimiter    Limiter
	TrustedProxies *util.TrustedProxies
	FrontendDomain string
}

// Server exposes the elib HTTP API.
type Server struct {
	app            *app.App
	staging        *storage.Staging
	mux            *http.ServeMux
	maxUploadBytes int64
	authLimiter    Limiter
	trustedProxies *util.TrustedProxies
	frontendDomain string
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Staging == nil {
		return nil, errors.New("staging area required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 3e7
	}
	s := &Server{
		app:            cfg.App,
		staging:        cfg.Staging,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
		authLimiter:    cfg.AuthLimiter,
		trustedProxies: cfg.TrustedProxies,
		frontendDomain: cfg.FrontendDomain,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("elib", s.trustedProxies,
		util.WithSecurityHeaders(util.WithCORS(s.frontendDomain, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// users
	s.mux.Handle("/api/users", s.withRateLimit(http.HandlerFunc(s.handleRegister)))
	s.mux.Handle("/api/users/login", s.withRateLimit(http.HandlerFunc(s.handleLogin)))
	s.mux.Handle("/api/users/logout", s.withUser(s.handleLogout))

	// books: reads are public, writes go through withUser in the handlers
	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.HandleFunc("/api/books/", s.handleBookByID)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		notFound(w, r, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to elib apis"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type callerContextKey struct{}

func contextWithCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerContextKey{}, userID)
}

// callerID returns the authenticated user id set by withUser.
func callerID(ctx context.Context) string {
	id, _ := ctx.Value(callerContextKey{}).(string)
	return id
}

// withUser rejects requests without a valid bearer token and stores the
// caller id in the request context.
func (s *Server) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			s.audit(r, "auth.verify", "fail", "reason", err.Error())
			s.writeAppError(w, r, err)
			return
		}
		userID, err := s.app.UserFromToken(r.Context(), token)
		if err != nil {
			s.audit(r, "auth.verify", "fail", "reason", "invalid_or_revoked")
			s.writeAppError(w, r, err)
			return
		}
		ctx := contextWithCaller(r.Context(), userID)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", userID))
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authLimiter != nil && r.Method == http.MethodPost {
			key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
			d, err := s.authLimiter.Allow(r.Context(), key)
			if err != nil {
				util.LoggerFromContext(r.Context()).Error("rate limiter unavailable", "err", err)
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				s.audit(r, "auth.ratelimit", "fail")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
				writeError(w, r, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds up so clients never retry inside the window.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", app.ErrTokenRequired
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || token == "" || !strings.EqualFold(scheme, "Bearer") {
		return "", app.ErrTokenFormat
	}
	return token, nil
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Message:   msg,
		Code:      errorCode(status, msg),
		RequestID: util.RequestIDFromContext(r.Context()),
	})
}

// writeAppError maps an application error onto a status and client message.
// Causes are logged, never returned.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *app.Error
	if !errors.As(err, &appErr) {
		util.LoggerFromContext(r.Context()).Error("unhandled error", "err", err)
		writeError(w, r, http.StatusInternalServerError, app.ErrInternal.Message)
		return
	}
	status := statusForKind(appErr.Kind)
	if status >= http.StatusInternalServerError && appErr.Err != nil {
		util.LoggerFromContext(r.Context()).Error("request failed", "kind", appErr.Kind.String(), "err", appErr.Err)
	}
	writeError(w, r, status, appErr.Message)
}

func statusForKind(kind app.Kind) int {
	switch kind {
	case app.KindValidation, app.KindConflict, app.KindInvalidCredentials:
		return http.StatusBadRequest
	case app.KindUnauthenticated:
		return http.StatusUnauthorized
	case app.KindForbidden:
		return http.StatusForbidden
	case app.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(status int, msg string) string {
	switch msg {
	case app.ErrAllFieldsRequired.Message:
		return "VALIDATION_FIELDS_REQUIRED"
	case app.ErrBookFilesRequired.Message:
		return "BOOK_FILE_REQUIRED"
	case app.ErrInvalidPDF.Message:
		return "BOOK_INVALID_PDF"
	case app.ErrPasswordTooLong.Message:
		return "AUTH_PASSWORD_TOO_LONG"
	case app.ErrTokenRequired.Message:
		return "AUTH_TOKEN_REQUIRED"
	case app.ErrTokenFormat.Message:
		return "AUTH_INVALID_TOKEN_FORMAT"
	case app.ErrTokenExpired.Message:
		return "AUTH_INVALID_TOKEN"
	case app.ErrUpdateForbidden.Message, app.ErrDeleteForbidden.Message:
		return "BOOK_FORBIDDEN"
	case app.ErrBookNotFound.Message:
		return "BOOK_NOT_FOUND"
	case app.ErrUserNotFound.Message:
		return "AUTH_USER_NOT_FOUND"
	case app.ErrEmailRegistered.Message:
		return "AUTH_EMAIL_EXISTS"
	case app.ErrInvalidCredentials.Message:
		return "AUTH_INVALID_CREDENTIALS"
	case app.ErrUploadFiles.Message:
		return "MEDIA_UPLOAD_FAILED"
	case app.ErrDeleteFiles.Message:
		return "MEDIA_DELETE_FAILED"
	case msgFileTooLarge:
		return "BOOK_FILE_TOO_LARGE"
	case msgUnexpectedField:
		return "BOOK_UNEXPECTED_FIELD"
	case msgInvalidForm:
		return "BOOK_INVALID_UPLOAD_FORM"
	case msgInvalidJSON:
		return "SYSTEM_INVALID_JSON"
	case "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "SYSTEM_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "SYSTEM_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusRequestEntityTooLarge:
		return "SYSTEM_PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "SYSTEM_ERROR"
	}
}
