package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/mbolis/survey-builder/model"
	"github.com/pkg/errors"
)

const surveyColumns = `
	s.id, s.title, s.description, s.intro_enabled, s.intro_content,
	s.scoring_method, s.status, s.colors_config, s.button_config,
	s.created_at, s.updated_at`

const questionColumns = `
	q.id, q.survey_id, q.question_text, q.question_type, q.sort_order,
	q.min_score, q.max_score, q.required, q.options`

var surveyOrderFields = map[string]bool{
	"id":         true,
	"title":      true,
	"status":     true,
	"created_at": true,
	"updated_at": true,
}

type SurveyRepo struct {
	db *sql.DB
}

func NewSurveyRepo(db *sql.DB) *SurveyRepo {
	return &SurveyRepo{db}
}

func (r *SurveyRepo) Create(ctx context.Context, in model.SurveyInput) (int64, error) {
	in = cleanSurvey(in)
	if err := in.Normalize(); err != nil {
		return 0, err
	}
	return insertSurvey(ctx, r.db, in)
}

func insertSurvey(ctx context.Context, db execer, in model.SurveyInput) (int64, error) {
	colors, err := encodeJSON(in.Colors, len(in.Colors) == 0)
	if err != nil {
		return 0, errors.Wrap(err, "db.insert_survey.colors")
	}
	button, err := encodeJSON(in.Button, false)
	if err != nil {
		return 0, errors.Wrap(err, "db.insert_survey.button")
	}

	ts := now()
	var id int64
	err = db.QueryRowContext(ctx, `
		INSERT INTO survey (
			title, description, intro_enabled, intro_content,
			scoring_method, status, colors_config, button_config,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		in.Title, in.Description, in.IntroEnabled, in.IntroContent,
		in.ScoringMethod, in.Status, colors, button,
		ts, ts,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "db.insert_survey")
	}
	return id, nil
}

// Update applies the non-nil fields of patch and refreshes updated_at.
func (r *SurveyRepo) Update(ctx context.Context, id int64, p model.SurveyPatch) error {
	return updateSurvey(ctx, r.db, id, p)
}

func updateSurvey(ctx context.Context, db execer, id int64, p model.SurveyPatch) error {
	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if p.Title != nil {
		title := cleanSurvey(model.SurveyInput{Title: *p.Title}).Title
		p.Title = &title
		set("title", title)
	}
	if p.Description != nil {
		set("description", cleanSurvey(model.SurveyInput{Description: *p.Description}).Description)
	}
	if p.IntroEnabled != nil {
		set("intro_enabled", *p.IntroEnabled)
	}
	if p.IntroContent != nil {
		set("intro_content", cleanSurvey(model.SurveyInput{IntroContent: *p.IntroContent}).IntroContent)
	}
	if p.ScoringMethod != nil {
		set("scoring_method", *p.ScoringMethod)
	}
	if p.Status != nil {
		set("status", *p.Status)
	}
	if p.Colors != nil {
		colors := cleanColors(p.Colors)
		enc, err := encodeJSON(colors, len(colors) == 0)
		if err != nil {
			return errors.Wrap(err, "db.update_survey.colors")
		}
		set("colors_config", enc)
	}
	if p.Button != nil {
		enc, err := encodeJSON(cleanButton(*p.Button), false)
		if err != nil {
			return errors.Wrap(err, "db.update_survey.button")
		}
		set("button_config", enc)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	set("updated_at", now())

	res, err := db.ExecContext(ctx,
		`UPDATE survey SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		append(args, id)...,
	)
	if err != nil {
		return errors.Wrap(err, "db.update_survey")
	}
	return affected(res, "db.update_survey")
}

// Delete removes the survey with its questions, submissions and responses.
// Either everything goes or nothing does.
func (r *SurveyRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "db.begin_tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM response
		WHERE submission_id IN (SELECT id FROM submission WHERE survey_id = ?)
			OR question_id IN (SELECT id FROM question WHERE survey_id = ?)`,
		id, id,
	)
	if err != nil {
		return errors.Wrap(err, "db.delete_survey.responses")
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM submission WHERE survey_id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "db.delete_survey.submissions")
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM question WHERE survey_id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "db.delete_survey.questions")
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM survey WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "db.delete_survey")
	}
	if err = affected(res, "db.delete_survey"); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "db.delete_survey.commit")
}

func (r *SurveyRepo) Get(ctx context.Context, id int64) (*model.Survey, error) {
	return getSurvey(ctx, r.db, id)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSurvey(ctx context.Context, db querier, id int64) (*model.Survey, error) {
	row := db.QueryRowContext(ctx, `SELECT `+surveyColumns+` FROM survey s WHERE s.id = ?`, id)
	s, err := scanSurvey(row)
	if err != nil {
		return nil, notFound(err, "db.get_survey")
	}
	return s, nil
}

func scanSurvey(row scanner) (*model.Survey, error) {
	s := model.Survey{}
	var colors, button string
	err := row.Scan(
		&s.ID, &s.Title, &s.Description, &s.IntroEnabled, &s.IntroContent,
		&s.ScoringMethod, &s.Status, &colors, &button,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Colors = map[string]string{}
	if colors != "" {
		if err = json.Unmarshal([]byte(colors), &s.Colors); err != nil {
			return nil, errors.Wrap(err, "parse_colors")
		}
	}
	if button != "" {
		if err = json.Unmarshal([]byte(button), &s.Button); err != nil {
			return nil, errors.Wrap(err, "parse_button")
		}
	}
	return &s, nil
}

// List returns surveys matching f. Unknown order fields fall back to
// updated_at, and a non-positive limit means no limit.
func (r *SurveyRepo) List(ctx context.Context, f model.SurveyFilter) ([]model.Survey, error) {
	query := `SELECT ` + surveyColumns + ` FROM survey s`
	var args []any

	if f.Status != "" && f.Status != "all" {
		query += ` WHERE s.status = ?`
		args = append(args, f.Status)
	}

	orderBy := f.OrderBy
	if !surveyOrderFields[orderBy] {
		orderBy = "updated_at"
	}
	query += ` ORDER BY s.` + orderBy + ` ` + orderDir(f.Order) + `, s.id ` + orderDir(f.Order)

	switch {
	case f.Limit > 0:
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	case f.Offset > 0:
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_surveys")
	}
	defer rows.Close()

	surveys := []model.Survey{}
	for rows.Next() {
		s, err := scanSurvey(rows)
		if err != nil {
			return nil, errors.Wrap(err, "db.get_surveys.scan")
		}
		surveys = append(surveys, *s)
	}
	return surveys, errors.Wrap(rows.Err(), "db.get_surveys.rows")
}

// Questions returns the questions of a survey in display order.
func (r *SurveyRepo) Questions(ctx context.Context, surveyID int64) ([]model.Question, error) {
	return getQuestions(ctx, r.db, surveyID)
}

func getQuestions(ctx context.Context, db querier, surveyID int64) ([]model.Question, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+questionColumns+`
		FROM question q
		WHERE q.survey_id = ?
		ORDER BY q.sort_order ASC, q.id ASC`,
		surveyID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_questions")
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		q := model.Question{}
		var opts string
		err = rows.Scan(
			&q.ID, &q.SurveyID, &q.Text, &q.Type, &q.SortOrder,
			&q.MinScore, &q.MaxScore, &q.Required, &opts,
		)
		if err != nil {
			return nil, errors.Wrap(err, "db.get_questions.scan")
		}
		if opts != "" {
			if err = json.Unmarshal([]byte(opts), &q.Options); err != nil {
				return nil, errors.Wrap(err, "db.get_questions.parse_options")
			}
		}
		questions = append(questions, q)
	}
	return questions, errors.Wrap(rows.Err(), "db.get_questions.rows")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertQuestion(ctx context.Context, db execer, surveyID int64, q model.QuestionInput) (int64, error) {
	opts, err := encodeJSON(q.Options, len(q.Options) == 0)
	if err != nil {
		return 0, errors.Wrap(err, "db.insert_question.options")
	}

	var id int64
	err = db.QueryRowContext(ctx, `
		INSERT INTO question (
			survey_id, question_text, question_type, sort_order,
			min_score, max_score, required, options
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		surveyID, q.Text, q.Type, q.SortOrder,
		q.MinScore, q.MaxScore, q.Required, opts,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "db.insert_question")
	}
	return id, nil
}

func updateQuestion(ctx context.Context, db execer, surveyID int64, q model.QuestionInput) error {
	opts, err := encodeJSON(q.Options, len(q.Options) == 0)
	if err != nil {
		return errors.Wrap(err, "db.update_question.options")
	}

	query := `
		UPDATE question
		SET
			question_text = ?,
			question_type = ?,
			sort_order = ?,
			min_score = ?,
			max_score = ?,
			required = ?,
			options = ?
		WHERE id = ? AND survey_id = ?`
	args := []any{q.Text, q.Type, q.SortOrder, q.MinScore, q.MaxScore, q.Required, opts, q.ID, surveyID}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "db.update_question")
	}
	return affected(res, "db.update_question")
}

func deleteQuestion(ctx context.Context, db execer, surveyID, id int64) error {
	_, err := db.ExecContext(ctx, `
		DELETE FROM response
		WHERE question_id IN (SELECT id FROM question WHERE id = ? AND survey_id = ?)`,
		id, surveyID,
	)
	if err != nil {
		return errors.Wrap(err, "db.delete_question.responses")
	}

	res, err := db.ExecContext(ctx, `DELETE FROM question WHERE id = ? AND survey_id = ?`, id, surveyID)
	if err != nil {
		return errors.Wrap(err, "db.delete_question")
	}
	return affected(res, "db.delete_question")
}

func (r *SurveyRepo) AddQuestion(ctx context.Context, surveyID int64, q model.QuestionInput) (int64, error) {
	q = cleanQuestion(q)
	if err := q.Normalize(); err != nil {
		return 0, err
	}
	if _, err := r.Get(ctx, surveyID); err != nil {
		return 0, err
	}
	return insertQuestion(ctx, r.db, surveyID, q)
}

// UpdateQuestion fails with ErrNotFound unless q belongs to the survey.
func (r *SurveyRepo) UpdateQuestion(ctx context.Context, surveyID int64, q model.QuestionInput) error {
	q = cleanQuestion(q)
	if err := q.Normalize(); err != nil {
		return err
	}
	return updateQuestion(ctx, r.db, surveyID, q)
}

// DeleteQuestion removes a question of the survey along with the responses
// given to it.
func (r *SurveyRepo) DeleteQuestion(ctx context.Context, surveyID, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "db.begin_tx")
	}
	defer tx.Rollback()

	if err = deleteQuestion(ctx, tx, surveyID, id); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "db.delete_question.commit")
}

// Save stores a survey and its whole question list as edited in the admin
// form, in one transaction. A zero id creates the survey. It returns the
// survey id.
func (r *SurveyRepo) Save(ctx context.Context, id int64, in model.SurveyInput, questions []model.QuestionInput) (int64, error) {
	in = cleanSurvey(in)
	if err := in.Normalize(); err != nil {
		return 0, err
	}
	if err := cleanQuestions(questions); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "db.begin_tx")
	}
	defer tx.Rollback()

	if id == 0 {
		if id, err = insertSurvey(ctx, tx, in); err != nil {
			return 0, err
		}
	} else if err = updateSurvey(ctx, tx, id, model.PatchFrom(in)); err != nil {
		return 0, err
	}

	if err = replaceQuestions(ctx, tx, id, questions); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "db.save_survey.commit")
	}
	return id, nil
}

// ReplaceQuestions saves the whole question list of a survey as edited in
// the builder: questions with a known id are updated, the others inserted,
// and questions missing from the list are deleted with their responses.
func (r *SurveyRepo) ReplaceQuestions(ctx context.Context, surveyID int64, questions []model.QuestionInput) error {
	if err := cleanQuestions(questions); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "db.begin_tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE survey SET updated_at = ? WHERE id = ?`, now(), surveyID)
	if err != nil {
		return errors.Wrap(err, "db.save_questions.touch")
	}
	if err = affected(res, "db.save_questions.touch"); err != nil {
		return err
	}

	if err = replaceQuestions(ctx, tx, surveyID, questions); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "db.save_questions.commit")
}

func cleanQuestions(questions []model.QuestionInput) error {
	for i := range questions {
		questions[i] = cleanQuestion(questions[i])
		if err := questions[i].Normalize(); err != nil {
			return err
		}
	}
	return nil
}

func replaceQuestions(ctx context.Context, tx *sql.Tx, surveyID int64, questions []model.QuestionInput) error {
	existing, err := getQuestions(ctx, tx, surveyID)
	if err != nil {
		return err
	}
	stale := make(map[int64]bool, len(existing))
	for _, q := range existing {
		stale[q.ID] = true
	}

	for _, q := range questions {
		if q.ID != 0 && stale[q.ID] {
			delete(stale, q.ID)
			err = updateQuestion(ctx, tx, surveyID, q)
		} else {
			_, err = insertQuestion(ctx, tx, surveyID, q)
		}
		if err != nil {
			return err
		}
	}

	for id := range stale {
		if err = deleteQuestion(ctx, tx, surveyID, id); err != nil {
			return err
		}
	}
	return nil
}

// Duplicate copies a survey and its questions into a new draft titled
// "<title> (Copy)". Submissions are not copied.
func (r *SurveyRepo) Duplicate(ctx context.Context, id int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "db.begin_tx")
	}
	defer tx.Rollback()

	original, err := getSurvey(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	questions, err := getQuestions(ctx, tx, id)
	if err != nil {
		return 0, err
	}

	colors, err := encodeJSON(original.Colors, len(original.Colors) == 0)
	if err != nil {
		return 0, errors.Wrap(err, "db.duplicate_survey.colors")
	}
	button, err := encodeJSON(original.Button, false)
	if err != nil {
		return 0, errors.Wrap(err, "db.duplicate_survey.button")
	}

	ts := now()
	var copyID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO survey (
			title, description, intro_enabled, intro_content,
			scoring_method, status, colors_config, button_config,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		original.Title+" (Copy)", original.Description, original.IntroEnabled, original.IntroContent,
		original.ScoringMethod, model.StatusDraft, colors, button,
		ts, ts,
	).Scan(&copyID)
	if err != nil {
		return 0, errors.Wrap(err, "db.duplicate_survey")
	}

	for _, q := range questions {
		_, err = insertQuestion(ctx, tx, copyID, model.QuestionInput{
			Text:      q.Text,
			Type:      q.Type,
			SortOrder: q.SortOrder,
			MinScore:  q.MinScore,
			MaxScore:  q.MaxScore,
			Required:  q.Required,
			Options:   q.Options,
		})
		if err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "db.duplicate_survey.commit")
	}
	return copyID, nil
}
