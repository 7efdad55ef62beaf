package routes

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/survey-builder/app"
	"github.com/mbolis/survey-builder/httpx"
	"github.com/mbolis/survey-builder/log"
	"github.com/mbolis/survey-builder/model"
	"github.com/mbolis/survey-builder/service"
)

type surveyRequest struct {
	model.SurveyInput
	Questions []model.QuestionInput `json:"questions"`
}

// serviceFailure answers with 404 for a missing record, 400 for invalid
// input, and 500 otherwise.
func serviceFailure(w http.ResponseWriter, code string, id any, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httpx.LogNotFound(w, code, id)
	case isInputError(err):
		httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, code, "%s", err.Error())
	default:
		httpx.LogInternalError(w, "db."+code, err)
	}
}

func CreateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := surveyRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		surveyId, err := app.Surveys.Save(r.Context(), 0, req.SurveyInput, req.Questions)
		if err != nil {
			serviceFailure(w, "create_survey", nil, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": surveyId,
		})
	}
}

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		surveys, err := app.Surveys.List(r.Context(), model.SurveyFilter{
			Status:  q.Get("status"),
			OrderBy: q.Get("orderby"),
			Order:   q.Get("order"),
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			httpx.LogInternalError(w, "db.get_surveys", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"surveys": surveys,
		})
	}
}

func GetSurveyById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey, err := app.Surveys.Get(r.Context(), surveyId)
		if err != nil {
			serviceFailure(w, "get_survey", surveyId, err)
			return
		}

		render.JSON(w, r, survey)
	}
}

// UpdateSurvey replaces a survey and its whole question list. Questions
// posted without an id are created, stored ones left out are deleted.
func UpdateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		req := surveyRequest{}
		err = render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		_, err = app.Surveys.Save(r.Context(), surveyId, req.SurveyInput, req.Questions)
		if err != nil {
			serviceFailure(w, "update_survey", surveyId, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// PatchSurvey only changes the fields present in the body.
func PatchSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		patch := model.SurveyPatch{}
		err = render.DecodeJSON(r.Body, &patch)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = app.Surveys.Update(r.Context(), surveyId, patch)
		if err != nil {
			serviceFailure(w, "patch_survey", surveyId, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		err = app.Surveys.Delete(r.Context(), surveyId)
		if err != nil {
			serviceFailure(w, "delete_survey", surveyId, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DuplicateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		copyId, err := app.Surveys.Duplicate(r.Context(), surveyId)
		if err != nil {
			serviceFailure(w, "duplicate_survey", surveyId, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": copyId,
		})
	}
}

func AddQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		q := model.QuestionInput{}
		err = render.DecodeJSON(r.Body, &q)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if _, err = app.Surveys.Get(r.Context(), surveyId); err != nil {
			serviceFailure(w, "add_question", surveyId, err)
			return
		}
		questionId, err := app.Surveys.AddQuestion(r.Context(), surveyId, q)
		if err != nil {
			serviceFailure(w, "add_question", surveyId, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": questionId,
		})
	}
}

func questionParams(r *http.Request) (surveyId, questionId int64, err error) {
	if surveyId, err = idParam(r); err != nil {
		return
	}
	questionId, err = strconv.ParseInt(chi.URLParam(r, "qid"), 10, 64)
	return
}

func UpdateQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, questionId, err := questionParams(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		q := model.QuestionInput{}
		err = render.DecodeJSON(r.Body, &q)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		q.ID = questionId

		err = app.Surveys.UpdateQuestion(r.Context(), surveyId, q)
		if err != nil {
			serviceFailure(w, "update_question", questionId, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, questionId, err := questionParams(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		err = app.Surveys.DeleteQuestion(r.Context(), surveyId, questionId)
		if err != nil {
			serviceFailure(w, "delete_question", questionId, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

const dayLayout = "2006-01-02"

// submissionFilter reads the filter query parameters shared by the API and
// the admin pages. Dates are whole days: "to" includes the day it names.
func submissionFilter(q url.Values) model.SubmissionFilter {
	f := model.SubmissionFilter{
		SurveyID: queryID(q.Get("survey_id")),
		Order:    q.Get("order"),
	}
	if t, err := time.Parse(dayLayout, q.Get("from")); err == nil {
		f.From = t
	}
	if t, err := time.Parse(dayLayout, q.Get("to")); err == nil {
		f.To = t.Add(24*time.Hour - time.Second)
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	return f
}

func GetSurveySubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		if _, err = app.Surveys.Get(r.Context(), surveyId); err != nil {
			serviceFailure(w, "get_submissions", surveyId, err)
			return
		}

		f := submissionFilter(r.URL.Query())
		f.SurveyID = surveyId
		submissions, total, err := app.Submissions.List(r.Context(), f)
		if err != nil {
			httpx.LogInternalError(w, "db.get_submissions", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"submissions": submissions,
			"total":       total,
		})
	}
}

func GetSurveyStats(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		if _, err = app.Surveys.Get(r.Context(), surveyId); err != nil {
			serviceFailure(w, "get_stats", surveyId, err)
			return
		}

		stats, err := app.Submissions.Stats(r.Context(), surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_stats", err)
			return
		}

		render.JSON(w, r, stats)
	}
}

func GetSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		result, err := app.Submissions.Result(r.Context(), submissionId)
		if err != nil {
			serviceFailure(w, "get_submission", submissionId, err)
			return
		}

		render.JSON(w, r, map[string]any{
			"submission": result.Submission,
			"responses":  result.Responses,
			"band":       result.Band().String(),
		})
	}
}

func DeleteSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		err = app.Submissions.Delete(r.Context(), submissionId)
		if err != nil {
			serviceFailure(w, "delete_submission", submissionId, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
