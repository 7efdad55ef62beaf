package routes

import (
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/mbolis/survey-builder/app"
	"github.com/mbolis/survey-builder/httpx"
	"github.com/mbolis/survey-builder/log"
	"github.com/mbolis/survey-builder/routes/middlewares"
	"github.com/mbolis/survey-builder/view"
)

const defaultGoto = "/admin/surveys"

// Login issues a token pair for HTTP basic credentials.
func Login(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "login.basic_auth")
			return
		}

		body := url.Values{
			"grant_type": {"password"},
			"username":   {user},
			"password":   {pass},
		}
		r.Body = io.NopCloser(strings.NewReader(body.Encode()))
		r.Header.Set("content-type", "application/x-www-form-urlencoded")
		r.Header.Set("content-length", strconv.Itoa(len(body.Encode())))
		app.UserCredentials(w, r)
	}
}

var reRefresh = regexp.MustCompile(`(?i)^refresh\s+(.*)`)

// Refresh issues a new token pair for an "Authorization: Refresh <token>"
// header.
func Refresh(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		match := reRefresh.FindStringSubmatch(r.Header.Get("authorization"))
		if len(match) == 0 {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "refresh.token")
			return
		}

		tokens, status, err := middlewares.Refresh(app.BearerServer, match[1])
		if status >= 400 && status < 500 {
			httpx.LogStatus(w, status, log.DebugLevel, "refresh.grant")
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "refresh.grant", err)
			return
		}
		render.JSON(w, r, tokens)
	}
}

// safeGoto only lets the login form send the browser back to a local path.
func safeGoto(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return defaultGoto
	}
	return target
}

func LoginPage(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, http.StatusOK, "login", view.LoginPage{
			Page: publicPage(app, "Log in"),
			Goto: safeGoto(r.URL.Query().Get("goto")),
		})
	}
}

// LoginForm checks the credentials posted by the login page and keeps the
// issued tokens in cookies.
func LoginForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "login_form.parse")
			return
		}
		target := safeGoto(r.PostForm.Get("goto"))
		username := strings.TrimSpace(r.PostForm.Get("username"))

		tokens, status, err := middlewares.Grant(app.BearerServer, url.Values{
			"grant_type": {"password"},
			"username":   {username},
			"password":   {r.PostForm.Get("password")},
		})
		if status >= 400 && status < 500 {
			log.WithFields(log.Fields{"username": username}).Info("login_form: rejected")
			renderPage(w, http.StatusUnauthorized, "login", view.LoginPage{
				Page:  publicPage(app, "Log in"),
				Goto:  target,
				Error: "Invalid username or password.",
			})
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "login_form.grant", err)
			return
		}

		middlewares.SetAuthCookies(w, r, tokens)
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

func Logout(w http.ResponseWriter, r *http.Request) {
	middlewares.ClearAuthCookies(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
