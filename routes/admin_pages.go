package routes

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mbolis/survey-builder/app"
	"github.com/mbolis/survey-builder/formflow"
	"github.com/mbolis/survey-builder/httpx"
	"github.com/mbolis/survey-builder/log"
	"github.com/mbolis/survey-builder/model"
	"github.com/mbolis/survey-builder/service"
	"github.com/mbolis/survey-builder/token"
	"github.com/mbolis/survey-builder/view"
)

const (
	surveysPath     = "/admin/surveys"
	submissionsPath = "/admin/submissions"
	pageSize        = 20
)

func AdminSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		surveys, err := app.Surveys.List(r.Context(), model.SurveyFilter{Status: status})
		if err != nil {
			httpx.LogInternalError(w, "admin_surveys.list", err)
			return
		}

		rows := make([]view.SurveyRow, len(surveys))
		for i, s := range surveys {
			row := view.SurveyRow{Survey: s}
			row.Submissions, err = app.Submissions.Count(r.Context(), model.SubmissionFilter{SurveyID: s.ID})
			if err == nil {
				row.DeleteToken, err = app.Tokens.Issue(token.Delete, s.ID)
			}
			if err == nil {
				row.DuplicateToken, err = app.Tokens.Issue(token.Duplicate, s.ID)
			}
			if err == nil {
				row.ToggleToken, err = app.Tokens.Issue(token.ToggleStatus, s.ID)
			}
			if err != nil {
				httpx.LogInternalError(w, "admin_surveys.row", err)
				return
			}
			rows[i] = row
		}

		testToken, err := app.Tokens.Issue(token.TestEmail, 0)
		if err != nil {
			httpx.LogInternalError(w, "admin_surveys.token", err)
			return
		}

		renderPage(w, http.StatusOK, "surveys", view.SurveysPage{
			Page:           adminPage(app, r, "Surveys"),
			Rows:           rows,
			Status:         status,
			TestEmailToken: testToken,
			AdminEmail:     app.Mail.AdminEmail,
		})
	}
}

func AdminNewSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := app.Tokens.Issue(token.SaveSurvey, 0)
		if err != nil {
			httpx.LogInternalError(w, "admin_new_survey.token", err)
			return
		}

		b := formflow.NewBuilder(nil)
		b.Add()
		renderPage(w, http.StatusOK, "survey_edit", view.SurveyEditPage{
			Page: adminPage(app, r, "Add New Survey"),
			Survey: model.Survey{
				Status:        model.StatusDraft,
				ScoringMethod: model.ScoringSum,
			},
			Rows:  b.Rows(),
			Token: tok,
		})
	}
}

func AdminEditSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey, err := app.Surveys.Get(r.Context(), surveyId)
		if errors.Is(err, service.ErrNotFound) {
			redirectFlash(w, r, surveysPath, "Survey not found.", "error")
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "admin_edit_survey.get", err)
			return
		}

		tok, err := app.Tokens.Issue(token.SaveSurvey, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "admin_edit_survey.token", err)
			return
		}

		renderPage(w, http.StatusOK, "survey_edit", view.SurveyEditPage{
			Page:   adminPage(app, r, "Edit Survey"),
			Survey: *survey,
			Rows:   formflow.NewBuilder(survey.Questions).Rows(),
			Token:  tok,
		})
	}
}

var reColorKey = regexp.MustCompile(`^colors\[(\w+)\]$`)

// surveyForm reads the survey settings posted by the edit page.
func surveyForm(form url.Values) model.SurveyInput {
	colors := map[string]string{}
	for key, values := range form {
		if m := reColorKey.FindStringSubmatch(key); m != nil && len(values) > 0 {
			colors[m[1]] = values[len(values)-1]
		}
	}
	return model.SurveyInput{
		Title:         form.Get("survey_title"),
		Description:   form.Get("survey_description"),
		IntroEnabled:  form.Get("intro_enabled") != "",
		IntroContent:  form.Get("intro_content"),
		ScoringMethod: model.ScoringMethod(form.Get("scoring_method")),
		Status:        model.SurveyStatus(form.Get("survey_status")),
		Colors:        colors,
		Button: model.ButtonConfig{
			Enabled:     form.Get("button_enabled") != "",
			Text:        form.Get("button_text"),
			URL:         form.Get("button_url"),
			Description: form.Get("button_description"),
		},
	}
}

func draftSurvey(id int64, in model.SurveyInput) model.Survey {
	return model.Survey{
		ID:            id,
		Title:         in.Title,
		Description:   in.Description,
		IntroEnabled:  in.IntroEnabled,
		IntroContent:  in.IntroContent,
		ScoringMethod: in.ScoringMethod,
		Status:        in.Status,
		Colors:        in.Colors,
		Button:        in.Button,
	}
}

// AdminSaveSurvey either stores the edit form or, when a builder button was
// pressed, applies the builder command and shows the form again unsaved.
func AdminSaveSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "save_survey.parse_form")
			return
		}
		form := r.PostForm

		surveyId := queryID(form.Get("survey_id"))
		if err := app.Tokens.Verify(form.Get("token"), token.SaveSurvey, surveyId); err != nil {
			httpx.LogStatus(w, http.StatusForbidden, log.InfoLevel, "save_survey.token")
			return
		}

		in := surveyForm(form)
		title := "Edit Survey"
		if surveyId == 0 {
			title = "Add New Survey"
		}
		edit := view.SurveyEditPage{
			Page:   adminPage(app, r, title),
			Survey: draftSurvey(surveyId, in),
			Token:  form.Get("token"),
		}

		b, err := formflow.ParseForm(form)
		if err != nil {
			log.Debug("save_survey.questions: ", err)
			edit.Error = "Error saving survey: " + err.Error() + "."
			renderPage(w, http.StatusBadRequest, "survey_edit", edit)
			return
		}

		if cmd := form.Get("builder"); cmd != "" {
			if err = b.Apply(cmd); err != nil {
				log.Debug("save_survey.builder: ", err)
			}
			edit.Rows = b.Rows()
			renderPage(w, http.StatusOK, "survey_edit", edit)
			return
		}

		savedId, err := app.Surveys.Save(r.Context(), surveyId, in, b.Inputs())
		switch {
		case err == nil:
		case errors.Is(err, service.ErrNotFound):
			redirectFlash(w, r, surveysPath, "Survey not found.", "error")
			return
		case isInputError(err):
			log.Debug("save_survey.input: ", err)
			edit.Rows = b.Rows()
			edit.Error = "Error saving survey: " + err.Error() + "."
			renderPage(w, http.StatusBadRequest, "survey_edit", edit)
			return
		default:
			httpx.LogInternalError(w, "save_survey", err)
			return
		}

		log.WithFields(log.Fields{"survey_id": savedId}).Info("survey saved")
		redirectFlash(w, r, surveysPath+"/"+strconv.FormatInt(savedId, 10)+"/edit", "Survey saved successfully.", "success")
	}
}

// surveyAction runs a token guarded action posted from the survey list and
// sends the browser back to it with the outcome.
func surveyAction(app app.App, action token.Action, failMsg string, run func(ctx context.Context, id int64) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		if err = r.ParseForm(); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_form")
			return
		}
		if err = app.Tokens.Verify(r.PostForm.Get("token"), action, surveyId); err != nil {
			httpx.LogStatus(w, http.StatusForbidden, log.InfoLevel, string(action)+".token")
			return
		}

		msg, err := run(r.Context(), surveyId)
		switch {
		case err == nil:
			log.WithFields(log.Fields{"survey_id": surveyId}).Info(string(action))
			redirectFlash(w, r, surveysPath, msg, "success")
		case errors.Is(err, service.ErrNotFound):
			redirectFlash(w, r, surveysPath, "Survey not found.", "error")
		default:
			log.WithFields(log.Fields{"survey_id": surveyId}).WithError(err).Error(string(action))
			redirectFlash(w, r, surveysPath, failMsg, "error")
		}
	}
}

func AdminDeleteSurvey(app app.App) http.HandlerFunc {
	return surveyAction(app, token.Delete, "Error deleting survey.", func(ctx context.Context, id int64) (string, error) {
		return "Survey deleted successfully.", app.Surveys.Delete(ctx, id)
	})
}

func AdminDuplicateSurvey(app app.App) http.HandlerFunc {
	return surveyAction(app, token.Duplicate, "Error duplicating survey.", func(ctx context.Context, id int64) (string, error) {
		_, err := app.Surveys.Duplicate(ctx, id)
		return "Survey duplicated successfully.", err
	})
}

func AdminToggleSurvey(app app.App) http.HandlerFunc {
	return surveyAction(app, token.ToggleStatus, "Error updating survey status.", func(ctx context.Context, id int64) (string, error) {
		status, err := app.Surveys.ToggleStatus(ctx, id)
		if status == model.StatusPublished {
			return "Survey published successfully.", err
		}
		return "Survey unpublished successfully.", err
	})
}

func pageURL(q url.Values, page int) string {
	next := url.Values{}
	for k, v := range q {
		next[k] = v
	}
	next.Set("page", strconv.Itoa(page))
	return submissionsPath + "?" + next.Encode()
}

func AdminSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := submissionFilter(q)
		pageNum, _ := strconv.Atoi(q.Get("page"))
		if pageNum < 1 {
			pageNum = 1
		}
		f.Limit = pageSize
		f.Offset = (pageNum - 1) * pageSize

		submissions, total, err := app.Submissions.List(r.Context(), f)
		if err != nil {
			httpx.LogInternalError(w, "admin_submissions.list", err)
			return
		}
		surveys, err := app.Surveys.List(r.Context(), model.SurveyFilter{OrderBy: "title", Order: "asc"})
		if err != nil {
			httpx.LogInternalError(w, "admin_submissions.surveys", err)
			return
		}

		p := view.SubmissionsPage{
			Page:        adminPage(app, r, "Submissions"),
			Submissions: submissions,
			Total:       total,
			Surveys:     surveys,
			Filter: view.SubmissionFilter{
				SurveyID: f.SurveyID,
				From:     q.Get("from"),
				To:       q.Get("to"),
				Order:    strings.ToLower(q.Get("order")),
			},
			PageNum: pageNum,
			Pages:   (total + pageSize - 1) / pageSize,
		}
		if f.SurveyID != 0 {
			if p.Stats, err = app.Submissions.Stats(r.Context(), f.SurveyID); err != nil {
				httpx.LogInternalError(w, "admin_submissions.stats", err)
				return
			}
		}
		if pageNum > 1 {
			p.PrevURL = pageURL(q, pageNum-1)
		}
		if pageNum < p.Pages {
			p.NextURL = pageURL(q, pageNum+1)
		}

		renderPage(w, http.StatusOK, "submissions", p)
	}
}

func AdminSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		result, err := app.Submissions.Result(r.Context(), submissionId)
		if errors.Is(err, service.ErrNotFound) {
			redirectFlash(w, r, submissionsPath, "Submission not found.", "error")
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "admin_submission.get", err)
			return
		}

		tok, err := app.Tokens.Issue(token.DeleteSubmission, submissionId)
		if err != nil {
			httpx.LogInternalError(w, "admin_submission.token", err)
			return
		}

		renderPage(w, http.StatusOK, "submission", view.SubmissionPage{
			Page:        adminPage(app, r, "Submission Details"),
			Survey:      result.Survey,
			Submission:  result.Submission,
			Responses:   result.Responses,
			DeleteToken: tok,
		})
	}
}

func AdminDeleteSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionId, err := idParam(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		if err = r.ParseForm(); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_form")
			return
		}
		if err = app.Tokens.Verify(r.PostForm.Get("token"), token.DeleteSubmission, submissionId); err != nil {
			httpx.LogStatus(w, http.StatusForbidden, log.InfoLevel, "delete_submission.token")
			return
		}

		err = app.Submissions.Delete(r.Context(), submissionId)
		switch {
		case err == nil:
			log.WithFields(log.Fields{"submission_id": submissionId}).Info("submission deleted")
			redirectFlash(w, r, submissionsPath, "Submission deleted successfully.", "success")
		case errors.Is(err, service.ErrNotFound):
			redirectFlash(w, r, submissionsPath, "Submission not found.", "error")
		default:
			log.WithFields(log.Fields{"submission_id": submissionId}).WithError(err).Error("delete_submission")
			redirectFlash(w, r, submissionsPath, "Error deleting submission.", "error")
		}
	}
}

// AdminTestEmail sends a test message to check the mail settings.
func AdminTestEmail(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_form")
			return
		}
		if err := app.Tokens.Verify(r.PostForm.Get("token"), token.TestEmail, 0); err != nil {
			httpx.LogStatus(w, http.StatusForbidden, log.InfoLevel, "test_email.token")
			return
		}

		to := strings.TrimSpace(r.PostForm.Get("to"))
		if to == "" {
			to = app.Mail.AdminEmail
		}
		if !formflow.ValidEmail(to) {
			redirectFlash(w, r, surveysPath, "Please enter a valid email address.", "error")
			return
		}

		if err := app.Notifier.SendTest(r.Context(), to); err != nil {
			log.WithFields(log.Fields{"to": to}).WithError(err).Error("test_email")
			redirectFlash(w, r, surveysPath, "Failed to send test email.", "error")
			return
		}
		redirectFlash(w, r, surveysPath, "Test email sent to "+to+".", "success")
	}
}
