package httpx

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/mbolis/survey-builder/log"
)

// Will log an error, and send an HTTP response with status 500 and default text
func LogInternalError(w http.ResponseWriter, code string, err error) {
	log.Errorf("%s: %s", code, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Will log a debug message, and send an HTTP response with status 404 and default text
func LogNotFound(w http.ResponseWriter, code string, id any) {
	log.Debugf("%s: not found (%v)", code, id)
	http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
}

// Will log an error code at the given level, and send
// an HTTP response with status and default text
func LogStatus(w http.ResponseWriter, status int, level log.Level, code string) {
	log.Log(level, code)
	http.Error(w, http.StatusText(status), status)
}

// Will log an error code and message at the given level,
// and send an HTTP response with the given status and formatted message
func LogStatusMsg(w http.ResponseWriter, status int, level log.Level, code string, msg string, args ...any) {
	errMsg := fmt.Sprintf(msg, args...)
	log.Log(level, code+":", errMsg)
	http.Error(w, errMsg, status)
}

// Envelope is the body of every answer of the public submit endpoint.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type Message struct {
	Message string `json:"message"`
}

// FieldMessage points the respondent at the form field to correct.
type FieldMessage struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func JSONSuccess(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, Envelope{Success: true, Data: data})
}

// Will log an error code at the given level, and send a failed envelope
// carrying msg
func LogFailure(w http.ResponseWriter, r *http.Request, status int, level log.Level, code string, msg string) {
	log.Log(level, code+":", msg)
	render.Status(r, status)
	render.JSON(w, r, Envelope{Data: Message{msg}})
}

// Will log an error code at the given level, and send a failed envelope
// carrying msg and the offending field
func LogFieldFailure(w http.ResponseWriter, r *http.Request, status int, level log.Level, code string, field string, msg string) {
	log.Log(level, code+":", field, msg)
	render.Status(r, status)
	render.JSON(w, r, Envelope{Data: FieldMessage{msg, field}})
}

// Will log an error, and send a failed envelope with a generic message
func LogInternalFailure(w http.ResponseWriter, r *http.Request, code string, err error, msg string) {
	log.Errorf("%s: %s", code, err)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, Envelope{Data: Message{msg}})
}
