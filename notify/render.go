package notify

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/mbolis/survey-builder/model"
	"github.com/mbolis/survey-builder/sanitize"
	"github.com/mbolis/survey-builder/scoring"
)

//go:embed templates
var templateFS embed.FS

var funcs = template.FuncMap{
	"score": scoring.Format,
	"rich": func(s string) template.HTML {
		return template.HTML(sanitize.HTML(s))
	},
}

var (
	adminTpl = parse("templates/admin.html")
	userTpl  = parse("templates/user.html")
	testTpl  = parse("templates/test.html")
)

func parse(content string) *template.Template {
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", content))
}

// Report is everything the notification emails say about a submission.
type Report struct {
	SiteName   string
	Survey     model.Survey
	Submission model.Submission
	Responses  []model.Response
	ResultsURL string
	AdminURL   string
}

type mailData struct {
	Report
	Title string
	Sent  time.Time
}

func (d mailData) Color(key string) string {
	return d.Survey.Color(key)
}

func (d mailData) Band() scoring.Band {
	return scoring.Interpret(d.Submission.TotalScore)
}

func (d mailData) Year() int {
	return d.Sent.Year()
}

func render(tpl *template.Template, data mailData) (string, error) {
	if data.Sent.IsZero() {
		data.Sent = time.Now()
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderAdmin renders the notice sent to the site admin.
func RenderAdmin(r Report) (string, error) {
	return render(adminTpl, mailData{Report: r, Title: "New Survey Submission: " + r.Survey.Title})
}

// RenderUser renders the confirmation sent to the respondent.
func RenderUser(r Report) (string, error) {
	return render(userTpl, mailData{Report: r, Title: "Thank you for your survey response"})
}

func RenderTest(siteName string, sent time.Time) (string, error) {
	return render(testTpl, mailData{Report: Report{SiteName: siteName}, Title: "Test email", Sent: sent})
}
