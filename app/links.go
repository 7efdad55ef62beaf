package app

import (
	"net/url"
	"strconv"
	"time"

	"github.com/mbolis/survey-builder/token"
)

// ResultsTTL is how long the results link of a submission stays valid.
const ResultsTTL = 30 * 24 * time.Hour

// Links builds the absolute URLs handed out in pages and emails.
type Links struct {
	base   string
	tokens *token.Issuer
}

func NewLinks(baseURL string, tokens *token.Issuer) *Links {
	return &Links{base: baseURL, tokens: tokens}
}

func (l *Links) SubmitURL() string {
	return l.base + "/api/submit"
}

// ResultsURL signs a link to the results page of a submission.
func (l *Links) ResultsURL(submissionID int64) (string, error) {
	tok, err := l.tokens.IssueFor(token.Results, submissionID, ResultsTTL)
	if err != nil {
		return "", err
	}
	q := url.Values{
		"survey_results": {"1"},
		"submission_id":  {strconv.FormatInt(submissionID, 10)},
		"token":          {tok},
	}
	return l.base + "/results?" + q.Encode(), nil
}

func (l *Links) AdminSubmission(submissionID int64) string {
	return l.base + "/admin/submissions/" + strconv.FormatInt(submissionID, 10)
}
