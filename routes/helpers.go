package routes

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mbolis/survey-builder/app"
	"github.com/mbolis/survey-builder/httpx"
	"github.com/mbolis/survey-builder/model"
	"github.com/mbolis/survey-builder/view"
)

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err == nil && id <= 0 {
		err = strconv.ErrRange
	}
	return id, err
}

// queryID reads a positive id from a query or form value, 0 otherwise.
func queryID(value string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func publicPage(app app.App, title string) view.Page {
	return view.Page{SiteName: app.SiteName, Title: title, Theme: view.Theme(nil)}
}

func adminPage(app app.App, r *http.Request, title string) view.Page {
	p := publicPage(app, title)
	p.Admin = true
	q := r.URL.Query()
	if msg := q.Get("message"); msg != "" {
		p.Flash = view.Flash{Message: msg, Type: flashType(q.Get("type"))}
	}
	return p
}

func flashType(t string) string {
	switch t {
	case "success", "error", "warning":
		return t
	}
	return "info"
}

// redirectFlash sends the browser back to path with an outcome message.
func redirectFlash(w http.ResponseWriter, r *http.Request, path, msg, typ string) {
	q := url.Values{"message": {msg}, "type": {typ}}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	http.Redirect(w, r, path+sep+q.Encode(), http.StatusSeeOther)
}

func renderPage(w http.ResponseWriter, status int, name string, data any) {
	if err := view.Render(w, status, name, data); err != nil {
		httpx.LogInternalError(w, "view.render."+name, err)
	}
}

var inputErrors = []error{
	model.ErrTitleRequired,
	model.ErrInvalidStatus,
	model.ErrInvalidScoring,
	model.ErrInvalidType,
	model.ErrQuestionRequired,
	model.ErrInvalidScoreRange,
}

// isInputError reports whether err was caused by an invalid survey or
// question, as opposed to a failure of the store.
func isInputError(err error) bool {
	for _, e := range inputErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
