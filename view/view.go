// Package view renders the HTML pages and serves the embedded static assets.
package view

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/mbolis/survey-builder/formflow"
	"github.com/mbolis/survey-builder/model"
	"github.com/mbolis/survey-builder/sanitize"
	"github.com/mbolis/survey-builder/scoring"
)

//go:embed templates
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var funcs = template.FuncMap{
	"score": scoring.Format,
	"rich": func(s string) template.HTML {
		return template.HTML(sanitize.HTML(s))
	},
	"percent": func(f float64) string {
		return strconv.FormatFloat(f, 'f', 2, 64)
	},
	"inc": func(i int) int {
		return i + 1
	},
	"types": func() []model.QuestionType {
		return model.QuestionTypes
	},
	"date": func(t time.Time) string {
		return t.Format("2006-01-02 15:04")
	},
}

var pages = map[string]*template.Template{
	"survey":      parse("templates/survey.html"),
	"results":     parse("templates/results.html"),
	"login":       parse("templates/login.html"),
	"surveys":     parse("templates/admin_surveys.html"),
	"survey_edit": parse("templates/admin_survey_edit.html"),
	"submissions": parse("templates/admin_submissions.html"),
	"submission":  parse("templates/admin_submission.html"),
}

func parse(content string) *template.Template {
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", content))
}

// Render writes page name with the given status. Nothing is written if the
// template fails, so the caller can still answer with an error.
func Render(w http.ResponseWriter, status int, name string, data any) error {
	tpl, ok := pages[name]
	if !ok {
		return fs.ErrNotExist
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	w.Header().Set("content-type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the stylesheet and scripts.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

// Flash is the outcome message of an admin action, carried across the
// redirect in the message and type query parameters.
type Flash struct {
	Message string
	Type    string
}

// Page holds what the layout needs.
type Page struct {
	SiteName string
	Title    string
	Admin    bool
	Flash    Flash
	Theme    map[string]string
}

// Theme returns the page colors of a survey.
func Theme(s *model.Survey) map[string]string {
	theme := make(map[string]string, len(model.DefaultColors))
	for k := range model.DefaultColors {
		if s != nil {
			theme[k] = s.Color(k)
		} else {
			theme[k] = model.DefaultColors[k]
		}
	}
	return theme
}

type SurveyPage struct {
	Page
	Survey    *model.Survey
	Error     string
	SubmitURL string
	Token     string
	Step      int
	Steps     int
	Progress  float64
}

// NewSurveyPage lays out the form on its first step.
func NewSurveyPage(page Page, s *model.Survey, submitURL, token string) SurveyPage {
	page.Theme = Theme(s)
	m := formflow.New(s.Questions, s.ShowIntro())
	step, steps := m.Step()
	if step == 0 {
		step = 1
	}
	return SurveyPage{
		Page:      page,
		Survey:    s,
		SubmitURL: submitURL,
		Token:     token,
		Step:      step,
		Steps:     steps,
		Progress:  formflow.Progress(step, steps),
	}
}

// LastQuestion reports whether i is the index of the last question.
func (p SurveyPage) LastQuestion(i int) bool {
	return i == len(p.Survey.Questions)-1
}

type ResultsPage struct {
	Page
	Survey     *model.Survey
	Submission *model.Submission
	Error      string
}

func (p ResultsPage) Band() scoring.Band {
	return scoring.Interpret(p.Submission.TotalScore)
}

type LoginPage struct {
	Page
	Goto  string
	Error string
}

type SurveyRow struct {
	Survey         model.Survey
	Submissions    int
	DeleteToken    string
	DuplicateToken string
	ToggleToken    string
}

type SurveysPage struct {
	Page
	Rows           []SurveyRow
	Status         string
	TestEmailToken string
	AdminEmail     string
}

// QuestionRow is a builder row at a position of the edit form. Index is a
// string so the row template can carry the placeholder.
type QuestionRow struct {
	Index  string
	Number string
	Row    formflow.Row
}

type SurveyEditPage struct {
	Page
	Survey model.Survey
	Rows   []formflow.Row
	Token  string
	Error  string
}

func (p SurveyEditPage) IsNew() bool {
	return p.Survey.ID == 0
}

func (p SurveyEditPage) QuestionRows() []QuestionRow {
	rows := make([]QuestionRow, len(p.Rows))
	for i, r := range p.Rows {
		rows[i] = QuestionRow{Index: strconv.Itoa(i), Number: strconv.Itoa(i + 1), Row: r}
	}
	return rows
}

// TemplateRow is cloned by the browser when a question is added.
func (p SurveyEditPage) TemplateRow() QuestionRow {
	return QuestionRow{Index: formflow.IndexPlaceholder, Number: formflow.IndexPlaceholder, Row: formflow.NewRow()}
}

type SubmissionFilter struct {
	SurveyID int64
	From     string
	To       string
	Order    string
}

type SubmissionsPage struct {
	Page
	Submissions []model.Submission
	Total       int
	Surveys     []model.Survey
	Filter      SubmissionFilter
	Stats       *model.Stats
	PageNum     int
	Pages       int
	PrevURL     string
	NextURL     string
}

type SubmissionPage struct {
	Page
	Survey      *model.Survey
	Submission  *model.Submission
	Responses   []model.Response
	DeleteToken string
}

func (p SubmissionPage) Band() scoring.Band {
	return scoring.Interpret(p.Submission.TotalScore)
}
