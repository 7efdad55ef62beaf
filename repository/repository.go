// Package repository persists surveys, questions, submissions and responses
// in the relational store.
package repository

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/mbolis/survey-builder/model"
	"github.com/mbolis/survey-builder/sanitize"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("not found")

// timestamps are stored in UTC, whole seconds, so that they compare as text
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error, code string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return errors.Wrap(err, code)
}

func affected(res sql.Result, code string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, code+".verify")
	}
	if n < 1 {
		return ErrNotFound
	}
	return nil
}

func orderDir(order string) string {
	if strings.EqualFold(order, "asc") {
		return "ASC"
	}
	return "DESC"
}

func encodeJSON(v any, empty bool) (string, error) {
	if empty {
		return "", nil
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func cleanSurvey(in model.SurveyInput) model.SurveyInput {
	in.Title = sanitize.Line(in.Title)
	in.Description = sanitize.Text(in.Description)
	in.IntroContent = sanitize.HTML(in.IntroContent)
	in.Colors = cleanColors(in.Colors)
	in.Button = cleanButton(in.Button)
	return in
}

func cleanColors(colors map[string]string) map[string]string {
	clean := map[string]string{}
	for k, v := range colors {
		if c := sanitize.Color(v); c != "" {
			clean[sanitize.Line(k)] = c
		}
	}
	return clean
}

func cleanButton(b model.ButtonConfig) model.ButtonConfig {
	b.Text = sanitize.Line(b.Text)
	b.URL = sanitize.URL(b.URL)
	b.Description = sanitize.HTML(b.Description)
	return b
}

func cleanQuestion(q model.QuestionInput) model.QuestionInput {
	q.Text = sanitize.Line(q.Text)
	opts := make([]model.QuestionOption, 0, len(q.Options))
	for _, o := range q.Options {
		o.Label = sanitize.Line(o.Label)
		o.Value = sanitize.Line(o.Value)
		if o.Label != "" {
			opts = append(opts, o)
		}
	}
	q.Options = opts
	return q
}
