package routes

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/render"
	"github.com/mbolis/survey-builder/app"
	"github.com/mbolis/survey-builder/formflow"
	"github.com/mbolis/survey-builder/httpx"
	"github.com/mbolis/survey-builder/log"
	"github.com/mbolis/survey-builder/service"
	"github.com/mbolis/survey-builder/token"
	"github.com/mbolis/survey-builder/view"
)

const (
	msgInvalidSurvey   = "Invalid survey ID."
	msgSurveyNotFound  = "Survey not found."
	msgUnavailable     = "This survey is not currently available."
	msgNoQuestions     = "This survey has no questions."
	msgSecurityCheck   = "Security check failed. Please reload the page and try again."
	msgNameRequired    = "Please enter your name."
	msgEmailRequired   = "Please enter your email address."
	msgEmailInvalid    = "Please enter a valid email address."
	msgSubmitFailed    = "Failed to submit survey. Please try again."
	msgSubmitted       = "Survey submitted successfully!"
	msgInvalidResults  = "Invalid submission ID."
	msgResultsNotFound = "Submission not found."
)

// surveyError maps the reasons a survey cannot be shown or answered to a
// status and a message for the respondent. Unknown errors map to 500.
func surveyError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, msgSurveyNotFound
	case errors.Is(err, service.ErrSurveyUnavailable):
		return http.StatusForbidden, msgUnavailable
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusUnprocessableEntity, msgNoQuestions
	}
	return http.StatusInternalServerError, ""
}

func PublicSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := publicPage(app, "Survey")

		surveyID := queryID(r.URL.Query().Get("id"))
		if surveyID == 0 {
			log.Debug("public_survey.id")
			renderPage(w, http.StatusBadRequest, "survey", view.SurveyPage{Page: page, Error: msgInvalidSurvey})
			return
		}

		survey, err := app.Surveys.Published(r.Context(), surveyID)
		if err != nil {
			status, msg := surveyError(err)
			if status == http.StatusInternalServerError {
				httpx.LogInternalError(w, "public_survey.get", err)
				return
			}
			log.WithFields(log.Fields{"survey_id": surveyID}).Debug("public_survey: ", err)
			renderPage(w, status, "survey", view.SurveyPage{Page: page, Error: msg})
			return
		}

		tok, err := app.Tokens.Issue(token.Submit, surveyID)
		if err != nil {
			httpx.LogInternalError(w, "public_survey.token", err)
			return
		}

		page.Title = survey.Title
		renderPage(w, http.StatusOK, "survey", view.NewSurveyPage(page, survey, app.Links.SubmitURL(), tok))
	}
}

// PublicGetSurveyById returns a published survey with its questions, for
// pages that build the form themselves.
func PublicGetSurveyById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey, err := app.Surveys.Published(r.Context(), surveyId)
		if err != nil {
			status, msg := surveyError(err)
			if status == http.StatusInternalServerError {
				httpx.LogInternalError(w, "db.get_survey", err)
				return
			}
			httpx.LogStatusMsg(w, status, log.DebugLevel, "get_survey", "%s", msg)
			return
		}

		render.JSON(w, r, survey)
	}
}

var reResponseKey = regexp.MustCompile(`^responses\[(\d+)\]$`)

type submitData struct {
	Message      string  `json:"message"`
	SubmissionID int64   `json:"submission_id"`
	TotalScore   float64 `json:"total_score"`
	RedirectURL  string  `json:"redirect_url"`
}

// PublicSubmit answers the survey form posted by the browser. Every answer,
// failed or not, is an envelope the form script can show.
func PublicSubmit(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			httpx.LogFailure(w, r, http.StatusBadRequest, log.DebugLevel, "submit.parse_form", msgSubmitFailed)
			return
		}

		surveyID := queryID(r.PostForm.Get("survey_id"))
		if surveyID == 0 {
			httpx.LogFailure(w, r, http.StatusBadRequest, log.DebugLevel, "submit.survey_id", msgInvalidSurvey)
			return
		}
		if err := app.Tokens.Verify(r.PostForm.Get("token"), token.Submit, surveyID); err != nil {
			httpx.LogFailure(w, r, http.StatusForbidden, log.InfoLevel, "submit.token", msgSecurityCheck)
			return
		}

		req := service.SubmitRequest{
			SurveyID:  surveyID,
			UserName:  r.PostForm.Get("user_name"),
			UserEmail: r.PostForm.Get("user_email"),
			Responses: map[int64]string{},
			IP:        httpx.ClientIP(r),
		}
		for key, values := range r.PostForm {
			m := reResponseKey.FindStringSubmatch(key)
			if m == nil || len(values) == 0 {
				continue
			}
			qid, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				continue
			}
			req.Responses[qid] = values[len(values)-1]
		}

		res, err := app.Submissions.Submit(r.Context(), req)
		if err != nil {
			submitFailure(w, r, err)
			return
		}

		httpx.JSONSuccess(w, r, http.StatusOK, submitData{
			Message:      msgSubmitted,
			SubmissionID: res.SubmissionID,
			TotalScore:   res.TotalScore,
			RedirectURL:  res.RedirectURL,
		})
	}
}

func submitFailure(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *service.ValidationError
	if errors.As(err, &invalid) {
		var msg string
		switch {
		case errors.Is(err, service.ErrAnswerMissing):
			msg = formflow.Message(formflow.ErrAnswerRequired)
		case errors.Is(err, service.ErrNameRequired):
			msg = msgNameRequired
		case errors.Is(err, service.ErrEmailRequired):
			msg = msgEmailRequired
		default:
			msg = msgEmailInvalid
		}
		httpx.LogFieldFailure(w, r, http.StatusBadRequest, log.DebugLevel, "submit.validate", invalid.Field, msg)
		return
	}

	status, msg := surveyError(err)
	if status == http.StatusInternalServerError {
		httpx.LogInternalFailure(w, r, "submit", err, msgSubmitFailed)
		return
	}
	httpx.LogFailure(w, r, status, log.DebugLevel, "submit.survey", msg)
}

// PublicResults shows the score of a submission to whoever holds the signed
// link handed out after submitting.
func PublicResults(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := publicPage(app, "Your Results")
		q := r.URL.Query()

		submissionID := queryID(q.Get("submission_id"))
		if submissionID == 0 {
			log.Debug("public_results.id")
			renderPage(w, http.StatusBadRequest, "results", view.ResultsPage{Page: page, Error: msgInvalidResults})
			return
		}
		if err := app.Tokens.Verify(q.Get("token"), token.Results, submissionID); err != nil {
			log.WithFields(log.Fields{"submission_id": submissionID}).Info("public_results.token")
			renderPage(w, http.StatusForbidden, "results", view.ResultsPage{Page: page, Error: msgSecurityCheck})
			return
		}

		result, err := app.Submissions.Result(r.Context(), submissionID)
		if errors.Is(err, service.ErrNotFound) {
			log.WithFields(log.Fields{"submission_id": submissionID}).Debug("public_results: not found")
			renderPage(w, http.StatusNotFound, "results", view.ResultsPage{Page: page, Error: msgResultsNotFound})
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "public_results.get", err)
			return
		}

		page.Theme = view.Theme(result.Survey)
		renderPage(w, http.StatusOK, "results", view.ResultsPage{
			Page:       page,
			Survey:     result.Survey,
			Submission: result.Submission,
		})
	}
}
