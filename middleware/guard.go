package middleware

import (
	"context"
	"net/http"
	"net/url"
)

// SessionCookie is the cookie carrying the session identifier.
const SessionCookie = "X-Krista-Session-Id"

// OriginalURIHeader carries the URL the user originally requested, as set by
// fronting proxies.
const OriginalURIHeader = "X-Krista-Original-URI"

// SessionResolver resolves a session id to an account id, reporting false for
// anonymous. emailauth.Engine satisfies it.
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (string, bool)
}

type accountIDContextKey struct{}

// AccountIDFromContext returns the account id injected by [Guard].
func AccountIDFromContext(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(accountIDContextKey{}).(string)
	return accountID, ok
}

// Guard gates handlers on a resolved session. Anonymous requests get a 302 to
// loginPath with the original URL in the originalUrl query parameter. A store
// failure resolves to anonymous, never to an authenticated pass-through.
func Guard(resolver SessionResolver, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			accountID, ok := resolver.ResolveSession(r.Context(), sessionID(r))
			if !ok {
				redirectToLogin(w, r, loginPath)
				return
			}

			ctx := context.WithValue(r.Context(), accountIDContextKey{}, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionID(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, loginPath string) {
	original := r.Header.Get(OriginalURIHeader)
	if original == "" {
		original = r.URL.RequestURI()
	}
	http.Redirect(w, r, loginPath+"?originalUrl="+url.QueryEscape(original), http.StatusFound)
}
