package middlewares

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"
	"github.com/mbolis/survey-builder/httpx"
	"github.com/mbolis/survey-builder/log"
)

// Admin middleware to check for the 'admin' role in an OAuth token.
func Admin(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chi.Chain(oauth.Authorize(secret, nil), admin).Handler(next)
	}
}

func admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := r.Context().Value(oauth.ClaimsContext).(map[string]string)

		isAdmin := false
		if rolesClaim, ok := claims["roles"]; ok {
			for _, role := range strings.Split(rolesClaim, ",") {
				if role == "admin" {
					isAdmin = true
					break
				}
			}
		}

		if !isAdmin {
			httpx.LogStatus(w, http.StatusForbidden, log.DebugLevel, "auth.admin_role")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Tokens is the body returned by the bearer server on a successful grant.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

func secure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("x-forwarded-proto"), "https")
}

// SetAuthCookies stores a fresh token pair in the browser.
func SetAuthCookies(w http.ResponseWriter, r *http.Request, t Tokens) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     accessCookie,
		Value:    t.AccessToken,
		MaxAge:   int(t.ExpiresIn),
		HttpOnly: true,
		Secure:   secure(r),
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     refreshCookie,
		Value:    t.RefreshToken,
		MaxAge:   int(httpx.RefreshTTL / time.Second),
		HttpOnly: true,
		Secure:   secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookie, refreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Path:     "/",
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// Refresh exchanges a refresh token for a new token pair.
func Refresh(bearerServer *oauth.BearerServer, refreshToken string) (Tokens, int, error) {
	return Grant(bearerServer, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

// Grant runs an OAuth grant against the bearer server and decodes the
// issued tokens. The status is the one the bearer server answered with.
func Grant(bearerServer *oauth.BearerServer, form url.Values) (Tokens, int, error) {
	// oauth.BearerServer only takes grants as form posts
	req, err := http.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	if err != nil {
		return Tokens{}, http.StatusInternalServerError, err
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")

	resp := httpx.NewResponseBuffer()
	bearerServer.UserCredentials(resp, req)
	if resp.Status() != http.StatusOK {
		return Tokens{}, resp.Status(), errors.New("grant rejected")
	}

	var tokens Tokens
	if err = resp.DecodeJSON(&tokens); err != nil {
		return Tokens{}, http.StatusInternalServerError, err
	}
	return tokens, http.StatusOK, nil
}

// CookieAuth lets browser pages authenticate with the token cookies set at
// login. An expired access token is refreshed transparently; without a
// usable refresh token the browser is sent to the login page.
func CookieAuth(bearerServer *oauth.BearerServer) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("authorization") != "" {
				h.ServeHTTP(w, r)
				return
			}

			token, err := r.Cookie(accessCookie)
			if err == nil {
				r.Header.Set("authorization", "Bearer "+token.Value)
				buf := httpx.NewResponseBuffer()
				h.ServeHTTP(buf, r)
				if buf.Status() != http.StatusUnauthorized {
					buf.Flush(w)
					return
				}
				r.Header.Del("authorization")
			}

			loginLocation := "/login?goto=" + url.QueryEscape(r.URL.RequestURI())
			if r.Method != http.MethodGet {
				loginLocation = "/login"
			}

			refreshToken, err := r.Cookie(refreshCookie)
			if err != nil {
				// refresh token was empty: redirect to login page
				http.Redirect(w, r, loginLocation, http.StatusSeeOther)
				return
			}

			tokens, status, err := Refresh(bearerServer, refreshToken.Value)
			if status >= 400 && status < 500 {
				ClearAuthCookies(w)
				http.Redirect(w, r, loginLocation, http.StatusSeeOther)
				return
			}
			if err != nil {
				httpx.LogInternalError(w, "auth.refresh", err)
				return
			}

			SetAuthCookies(w, r, tokens)
			r.Header.Set("authorization", "Bearer "+tokens.AccessToken)
			h.ServeHTTP(w, r)
		})
	}
}
