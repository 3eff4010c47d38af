package httpapi

import (
	"embed"
	"errors"
	"html/template"
	"log"
	"net/http"

	emailauth "github.com/krista-software/krista-email-authentication"
)

// SessionCookie is the cookie carrying the session identifier.
const SessionCookie = "X-Krista-Session-Id"

//go:embed pages/*.html
var pageFS embed.FS

var pages = template.Must(template.ParseFS(pageFS, "pages/*.html"))

// Handler serves the HTTP surface of the authentication scheme: the login
// form, link verification, the waiting page, and logout.
type Handler struct {
	engine *emailauth.Engine
	mux    *http.ServeMux
}

// NewHandler describes the newhandler operation and its observable behavior.
//
// NewHandler does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewHandler(engine *emailauth.Engine) *Handler {
	h := &Handler{
		engine: engine,
		mux:    http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /type", h.authType)
	h.mux.HandleFunc("GET /login", h.loginPage)
	h.mux.HandleFunc("POST /login", h.sendLoginLink)
	h.mux.HandleFunc("GET /waiting", h.waitingPage)
	h.mux.HandleFunc("POST /logout", h.logout)
	h.mux.HandleFunc("GET /{$}", h.verifyLink)

	return h
}

// ServeHTTP describes the servehttp operation and its observable behavior.
//
// ServeHTTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) authType(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(emailauth.SchemeName))
}

type loginPageData struct {
	LoginPath   string
	OriginalURL string
	Email       string
	Error       string
}

func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, http.StatusOK, loginPageData{
		LoginPath:   "/login",
		OriginalURL: r.URL.Query().Get("originalUrl"),
	})
}

func (h *Handler) sendLoginLink(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	originalURL := r.PostFormValue("originalUrl")
	email := r.PostFormValue("email")

	ctx := emailauth.WithClientIP(r.Context(), r.RemoteAddr)
	result, err := h.engine.RequestLogin(ctx, originalURL, email)
	if err != nil {
		h.renderLogin(w, loginErrorStatus(err), loginPageData{
			LoginPath:   "/login",
			OriginalURL: originalURL,
			Email:       email,
			Error:       loginErrorMessage(err),
		})
		return
	}

	setSessionCookie(w, result.PendingSessionID)
	http.Redirect(w, r, "/waiting", http.StatusFound)
}

func (h *Handler) waitingPage(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		sessionID = cookie.Value
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, "waiting.html", struct{ SessionID string }{sessionID}); err != nil {
		log.Print("emailauth: render waiting page: ", err)
	}
}

func (h *Handler) verifyLink(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	originalURL := r.URL.Query().Get("originalUrl")

	ctx := emailauth.WithClientIP(r.Context(), r.RemoteAddr)
	result, err := h.engine.VerifyLink(ctx, code, originalURL)
	if err != nil {
		// No session cookie on failure, ever.
		http.Error(w, verifyErrorMessage(err), verifyErrorStatus(err))
		return
	}

	setSessionCookie(w, result.SessionID)

	redirect := result.RedirectURL
	if redirect == "" {
		redirect = "/"
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		sessionID = cookie.Value
	}

	if err := h.engine.Logout(r.Context(), sessionID); err != nil {
		http.Error(w, "logout failed", http.StatusBadRequest)
		return
	}

	clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) renderLogin(w http.ResponseWriter, status int, data loginPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, "login.html", data); err != nil {
		log.Print("emailauth: render login page: ", err)
	}
}

func setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
}

func loginErrorMessage(err error) string {
	switch {
	case errors.Is(err, emailauth.ErrOriginalURLRequired):
		return "The originalUrl parameter is missing."
	case errors.Is(err, emailauth.ErrInvalidEmail):
		return "The email address is not valid."
	case errors.Is(err, emailauth.ErrDomainNotSupported):
		return "This email domain is not supported."
	case errors.Is(err, emailauth.ErrNewAccountsDisabled):
		return "No account exists for this email and new accounts are disabled."
	case errors.Is(err, emailauth.ErrLoginRateLimited):
		return "Too many login requests. Try again later."
	default:
		return "Login is temporarily unavailable. Try again later."
	}
}

func loginErrorStatus(err error) int {
	switch {
	case errors.Is(err, emailauth.ErrOriginalURLRequired), errors.Is(err, emailauth.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, emailauth.ErrDomainNotSupported), errors.Is(err, emailauth.ErrNewAccountsDisabled):
		return http.StatusForbidden
	case errors.Is(err, emailauth.ErrLoginRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

func verifyErrorMessage(err error) string {
	switch {
	case errors.Is(err, emailauth.ErrLinkNotFound):
		return "Email verification link is not found."
	case errors.Is(err, emailauth.ErrLinkExpired):
		return "Email verification link is expired. Request a new one."
	case errors.Is(err, emailauth.ErrLinkAlreadyUsed):
		return "Email verification link is already used."
	case errors.Is(err, emailauth.ErrLinkSecretMismatch):
		return "Email verification link is not matching."
	case errors.Is(err, emailauth.ErrDomainNotSupported):
		return "This email domain is not supported in the workspace."
	default:
		return "Verification is temporarily unavailable. Try again later."
	}
}

func verifyErrorStatus(err error) int {
	switch {
	case errors.Is(err, emailauth.ErrLinkNotFound):
		return http.StatusNotFound
	case errors.Is(err, emailauth.ErrLinkExpired),
		errors.Is(err, emailauth.ErrLinkAlreadyUsed),
		errors.Is(err, emailauth.ErrLinkSecretMismatch):
		return http.StatusGone
	case errors.Is(err, emailauth.ErrDomainNotSupported):
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}
