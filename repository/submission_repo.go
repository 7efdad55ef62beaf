package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mbolis/survey-builder/model"
	"github.com/mbolis/survey-builder/scoring"
	"github.com/pkg/errors"
)

const submissionColumns = `
	sub.id, sub.survey_id, COALESCE(s.title, ''), sub.user_name, sub.user_email,
	sub.total_score, sub.submission_data, sub.submitted_at, sub.ip_address`

type SubmissionRepo struct {
	db *sql.DB
}

func NewSubmissionRepo(db *sql.DB) *SubmissionRepo {
	return &SubmissionRepo{db}
}

// Create stores a submission and its responses in one transaction, and
// returns the new submission id.
func (r *SubmissionRepo) Create(ctx context.Context, sub model.Submission, responses []model.Response) (int64, error) {
	data, err := json.Marshal(sub.Data)
	if err != nil {
		return 0, errors.Wrap(err, "db.insert_submission.data")
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "db.begin_tx")
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO submission (
			survey_id, user_name, user_email, total_score,
			submission_data, submitted_at, ip_address
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		sub.SurveyID, sub.UserName, sub.UserEmail, sub.TotalScore,
		string(data), sub.SubmittedAt.UTC(), sub.IPAddress,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "db.insert_submission")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO response (submission_id, question_id, response_value, score_value)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, errors.Wrap(err, "db.insert_submission.responses.prepare")
	}
	defer stmt.Close()

	for _, resp := range responses {
		_, err = stmt.ExecContext(ctx, id, resp.QuestionID, resp.Value, resp.Score)
		if err != nil {
			return 0, errors.Wrap(err, "db.insert_submission.responses.insert")
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "db.insert_submission.commit")
	}
	return id, nil
}

func (r *SubmissionRepo) Get(ctx context.Context, id int64) (*model.Submission, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submission sub
		LEFT OUTER JOIN survey s ON (s.id = sub.survey_id)
		WHERE sub.id = ?`,
		id,
	)
	sub, err := scanSubmission(row)
	if err != nil {
		return nil, notFound(err, "db.get_submission")
	}
	return sub, nil
}

func scanSubmission(row scanner) (*model.Submission, error) {
	sub := model.Submission{}
	var data string
	err := row.Scan(
		&sub.ID, &sub.SurveyID, &sub.SurveyTitle, &sub.UserName, &sub.UserEmail,
		&sub.TotalScore, &data, &sub.SubmittedAt, &sub.IPAddress,
	)
	if err != nil {
		return nil, err
	}
	if data != "" {
		if err = json.Unmarshal([]byte(data), &sub.Data); err != nil {
			return nil, errors.Wrap(err, "parse_data")
		}
	}
	return &sub, nil
}

func submissionWhere(f model.SubmissionFilter) (string, []any) {
	where := ` WHERE 1 = 1`
	var args []any
	if f.SurveyID != 0 {
		where += ` AND sub.survey_id = ?`
		args = append(args, f.SurveyID)
	}
	if !f.From.IsZero() {
		where += ` AND sub.submitted_at >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where += ` AND sub.submitted_at <= ?`
		args = append(args, f.To.UTC())
	}
	return where, args
}

// List returns submissions newest first unless f.Order is "asc".
func (r *SubmissionRepo) List(ctx context.Context, f model.SubmissionFilter) ([]model.Submission, error) {
	where, args := submissionWhere(f)
	query := `
		SELECT ` + submissionColumns + `
		FROM submission sub
		LEFT OUTER JOIN survey s ON (s.id = sub.survey_id)` + where + `
		ORDER BY sub.submitted_at ` + orderDir(f.Order) + `, sub.id ` + orderDir(f.Order)

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
		return nil, errors.Wrap(err, "db.get_submissions")
	}
	defer rows.Close()

	submissions := []model.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, errors.Wrap(err, "db.get_submissions.scan")
		}
		submissions = append(submissions, *sub)
	}
	return submissions, errors.Wrap(rows.Err(), "db.get_submissions.rows")
}

// Count ignores paging and ordering in f.
func (r *SubmissionRepo) Count(ctx context.Context, f model.SubmissionFilter) (int, error) {
	where, args := submissionWhere(f)
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submission sub`+where, args...).Scan(&n)
	return n, errors.Wrap(err, "db.count_submissions")
}

// Responses returns the responses of a submission with their question, in
// question display order.
func (r *SubmissionRepo) Responses(ctx context.Context, submissionID int64) ([]model.Response, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			r.id, r.submission_id, r.question_id, r.response_value, r.score_value,
			q.question_text, q.question_type
		FROM response r
		INNER JOIN question q ON (q.id = r.question_id)
		WHERE r.submission_id = ?
		ORDER BY q.sort_order ASC, q.id ASC`,
		submissionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_responses")
	}
	defer rows.Close()

	responses := []model.Response{}
	for rows.Next() {
		resp := model.Response{}
		err = rows.Scan(
			&resp.ID, &resp.SubmissionID, &resp.QuestionID, &resp.Value, &resp.Score,
			&resp.QuestionText, &resp.QuestionType,
		)
		if err != nil {
			return nil, errors.Wrap(err, "db.get_responses.scan")
		}
		responses = append(responses, resp)
	}
	return responses, errors.Wrap(rows.Err(), "db.get_responses.rows")
}

// Delete removes a submission and its responses.
func (r *SubmissionRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "db.begin_tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM response WHERE submission_id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "db.delete_submission.responses")
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM submission WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "db.delete_submission")
	}
	if err = affected(res, "db.delete_submission"); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "db.delete_submission.commit")
}

// Stats summarizes the submissions of a survey. Submissions at or after
// since count as recent.
func (r *SubmissionRepo) Stats(ctx context.Context, surveyID int64, since time.Time) (*model.Stats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT total_score, submitted_at >= ?
		FROM submission
		WHERE survey_id = ?`,
		since.UTC(),
		surveyID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_stats")
	}
	defer rows.Close()

	stats := model.Stats{}
	var scores []float64
	for rows.Next() {
		var score float64
		var recent bool
		if err = rows.Scan(&score, &recent); err != nil {
			return nil, errors.Wrap(err, "db.get_stats.scan")
		}
		scores = append(scores, score)
		if recent {
			stats.Recent++
		}
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "db.get_stats.rows")
	}

	stats.Total = len(scores)
	stats.Average = scoring.Mean(scores)
	stats.Distribution = scoring.Distribution(scores)
	return &stats, nil
}
