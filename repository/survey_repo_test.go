package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/mbolis/survey-builder/database/dbtest"
	"github.com/mbolis/survey-builder/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setClock(t *testing.T, ts time.Time) {
	prev := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = prev })
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

type fixture struct {
	db          *sql.DB
	surveys     *SurveyRepo
	submissions *SubmissionRepo
}

func newFixture(t *testing.T) fixture {
	db := dbtest.Open(t)
	return fixture{db, NewSurveyRepo(db), NewSubmissionRepo(db)}
}

// seed creates a survey with a rating and a yes/no question and one
// submission answering both.
func (f fixture) seed(t *testing.T, title string) (surveyID int64, questions []model.Question, submissionID int64) {
	t.Helper()
	ctx := context.Background()

	surveyID, err := f.surveys.Create(ctx, model.SurveyInput{Title: title, Status: model.StatusPublished})
	require.NoError(t, err)

	_, err = f.surveys.AddQuestion(ctx, surveyID, model.QuestionInput{
		Text: "How satisfied are you?", Type: model.TypeRating, SortOrder: 0, MinScore: 0, MaxScore: 10, Required: true,
	})
	require.NoError(t, err)
	_, err = f.surveys.AddQuestion(ctx, surveyID, model.QuestionInput{
		Text: "Would you come back?", Type: model.TypeYesNo, SortOrder: 1, MinScore: 0, MaxScore: 1, Required: true,
	})
	require.NoError(t, err)

	questions, err = f.surveys.Questions(ctx, surveyID)
	require.NoError(t, err)
	require.Len(t, questions, 2)

	submissionID, err = f.submissions.Create(ctx, model.Submission{
		SurveyID:   surveyID,
		UserName:   "Jane",
		UserEmail:  "jane@example.com",
		TotalScore: 9,
	}, []model.Response{
		{QuestionID: questions[0].ID, Value: "8", Score: 8},
		{QuestionID: questions[1].ID, Value: "yes", Score: 1},
	})
	require.NoError(t, err)

	return surveyID, questions, submissionID
}

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	setClock(t, ts)

	id, err := f.surveys.Create(ctx, model.SurveyInput{
		Title:        "  <b>Customer</b> satisfaction ",
		IntroEnabled: true,
		IntroContent: `<p>Hello</p><script>alert(1)</script>`,
		Colors:       map[string]string{"primary": "#FF0000", "text": "not-a-color"},
		Button:       model.ButtonConfig{Enabled: true, Text: "Book a call", URL: "javascript:alert(1)"},
	})
	require.NoError(t, err)

	s, err := f.surveys.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, "Customer satisfaction", s.Title)
	assert.Equal(t, "<p>Hello</p>", s.IntroContent)
	assert.Equal(t, model.ScoringSum, s.ScoringMethod)
	assert.Equal(t, model.StatusDraft, s.Status)
	assert.Equal(t, map[string]string{"primary": "#ff0000"}, s.Colors)
	assert.Equal(t, "Book a call", s.Button.Text)
	assert.Empty(t, s.Button.URL)
	assert.False(t, s.Button.Active())
	assert.True(t, s.CreatedAt.Equal(ts))
	assert.True(t, s.UpdatedAt.Equal(ts))
}

func TestCreateRequiresTitle(t *testing.T) {
	f := newFixture(t)

	_, err := f.surveys.Create(context.Background(), model.SurveyInput{Title: "<i></i>"})
	assert.ErrorIs(t, err, model.ErrTitleRequired)
	assert.Zero(t, count(t, f.db, "survey"))
}

func TestGetNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.surveys.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateIsPartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	setClock(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	id, err := f.surveys.Create(ctx, model.SurveyInput{Title: "Before", Description: "Keep me"})
	require.NoError(t, err)

	later := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	setClock(t, later)
	title := "After"
	status := model.StatusPublished
	require.NoError(t, f.surveys.Update(ctx, id, model.SurveyPatch{Title: &title, Status: &status}))

	s, err := f.surveys.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "After", s.Title)
	assert.Equal(t, "Keep me", s.Description)
	assert.Equal(t, model.StatusPublished, s.Status)
	assert.True(t, s.UpdatedAt.Equal(later))
}

func TestUpdateRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.surveys.Create(ctx, model.SurveyInput{Title: "Survey"})
	require.NoError(t, err)

	empty := " "
	assert.ErrorIs(t, f.surveys.Update(ctx, id, model.SurveyPatch{Title: &empty}), model.ErrTitleRequired)

	status := model.SurveyStatus("archived")
	assert.ErrorIs(t, f.surveys.Update(ctx, id, model.SurveyPatch{Status: &status}), model.ErrInvalidStatus)

	title := "Other"
	assert.ErrorIs(t, f.surveys.Update(ctx, 999, model.SurveyPatch{Title: &title}), ErrNotFound)
}

func TestDeleteRemovesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, _, _ := f.seed(t, "Doomed")
	otherID, _, _ := f.seed(t, "Survivor")

	require.NoError(t, f.surveys.Delete(ctx, id))

	_, err := f.surveys.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1, count(t, f.db, "survey"))
	assert.Equal(t, 2, count(t, f.db, "question"))
	assert.Equal(t, 1, count(t, f.db, "submission"))
	assert.Equal(t, 2, count(t, f.db, "response"))

	_, err = f.surveys.Get(ctx, otherID)
	assert.NoError(t, err)
}

func TestDeleteIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, _, _ := f.seed(t, "Survey")

	_, err := f.db.Exec(`
		CREATE TRIGGER fail_question_delete BEFORE DELETE ON question
		BEGIN
			SELECT RAISE(ABORT, 'injected failure');
		END`)
	require.NoError(t, err)

	err = f.surveys.Delete(ctx, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.delete_survey.questions")

	assert.Equal(t, 1, count(t, f.db, "survey"))
	assert.Equal(t, 2, count(t, f.db, "question"))
	assert.Equal(t, 1, count(t, f.db, "submission"))
	assert.Equal(t, 2, count(t, f.db, "response"))
}

func TestDeleteNotFound(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.surveys.Delete(context.Background(), 7), ErrNotFound)
}

func TestDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, questions, _ := f.seed(t, "Onboarding")

	copyID, err := f.surveys.Duplicate(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, id, copyID)

	dup, err := f.surveys.Get(ctx, copyID)
	require.NoError(t, err)
	assert.Equal(t, "Onboarding (Copy)", dup.Title)
	assert.Equal(t, model.StatusDraft, dup.Status)

	copied, err := f.surveys.Questions(ctx, copyID)
	require.NoError(t, err)
	require.Len(t, copied, len(questions))
	for i := range questions {
		assert.NotEqual(t, questions[i].ID, copied[i].ID)
		assert.Equal(t, copyID, copied[i].SurveyID)
		assert.Equal(t, questions[i].Text, copied[i].Text)
		assert.Equal(t, questions[i].Type, copied[i].Type)
		assert.Equal(t, questions[i].SortOrder, copied[i].SortOrder)
		assert.Equal(t, questions[i].MinScore, copied[i].MinScore)
		assert.Equal(t, questions[i].MaxScore, copied[i].MaxScore)
		assert.Equal(t, questions[i].Required, copied[i].Required)
	}

	n, err := f.submissions.Count(ctx, model.SubmissionFilter{SurveyID: copyID})
	require.NoError(t, err)
	assert.Zero(t, n)

	orig, err := f.surveys.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, orig.Status)
}

func TestDuplicateNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.surveys.Duplicate(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	setClock(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err := f.surveys.Create(ctx, model.SurveyInput{Title: "Alpha", Status: model.StatusPublished})
	require.NoError(t, err)
	setClock(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	_, err = f.surveys.Create(ctx, model.SurveyInput{Title: "Bravo"})
	require.NoError(t, err)
	setClock(t, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))
	_, err = f.surveys.Create(ctx, model.SurveyInput{Title: "Charlie", Status: model.StatusPublished})
	require.NoError(t, err)

	titles := func(surveys []model.Survey) []string {
		var out []string
		for _, s := range surveys {
			out = append(out, s.Title)
		}
		return out
	}

	all, err := f.surveys.List(ctx, model.SurveyFilter{Status: "all"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Charlie", "Bravo", "Alpha"}, titles(all))

	published, err := f.surveys.List(ctx, model.SurveyFilter{Status: "published", OrderBy: "title", Order: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Charlie"}, titles(published))

	paged, err := f.surveys.List(ctx, model.SurveyFilter{OrderBy: "title; DROP TABLE survey", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bravo"}, titles(paged))

	skipped, err := f.surveys.List(ctx, model.SurveyFilter{Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, titles(skipped))
}

func TestReplaceQuestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, questions, submissionID := f.seed(t, "Survey")

	err := f.surveys.ReplaceQuestions(ctx, id, []model.QuestionInput{
		{Text: "Brand new", Type: model.TypeMultipleChoice, SortOrder: 0, Options: []model.QuestionOption{
			{Label: "Poor", Value: "0"}, {Label: "Great", Value: "5"},
		}},
		{ID: questions[0].ID, Text: "How satisfied are you, really?", Type: model.TypeRating, SortOrder: 1, MinScore: 1, MaxScore: 5, Required: true},
	})
	require.NoError(t, err)

	saved, err := f.surveys.Questions(ctx, id)
	require.NoError(t, err)
	require.Len(t, saved, 2)

	assert.Equal(t, "Brand new", saved[0].Text)
	assert.Equal(t, []model.QuestionOption{{Label: "Poor", Value: "0"}, {Label: "Great", Value: "5"}}, saved[0].Options)
	assert.Equal(t, questions[0].ID, saved[1].ID)
	assert.Equal(t, "How satisfied are you, really?", saved[1].Text)
	assert.Equal(t, 5.0, saved[1].MaxScore)

	responses, err := f.submissions.Responses(ctx, submissionID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, questions[0].ID, responses[0].QuestionID)
}

func TestReplaceQuestionsValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, _, _ := f.seed(t, "Survey")

	err := f.surveys.ReplaceQuestions(ctx, id, []model.QuestionInput{
		{Text: "Backwards", Type: model.TypeRating, MinScore: 10, MaxScore: 0},
	})
	assert.ErrorIs(t, err, model.ErrInvalidScoreRange)
	assert.Equal(t, 2, count(t, f.db, "question"))

	err = f.surveys.ReplaceQuestions(ctx, 999, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuestionCRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, questions, submissionID := f.seed(t, "Survey")

	_, err := f.surveys.AddQuestion(ctx, 999, model.QuestionInput{Text: "Orphan"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.surveys.AddQuestion(ctx, id, model.QuestionInput{Text: "Pick", Type: "dropdown"})
	assert.ErrorIs(t, err, model.ErrInvalidType)

	q := questions[1]
	err = f.surveys.UpdateQuestion(ctx, id, model.QuestionInput{
		ID: q.ID, Text: "Would you come back soon?", Type: model.TypeYesNo, SortOrder: 5, MinScore: 0, MaxScore: 2,
	})
	require.NoError(t, err)

	require.NoError(t, f.surveys.DeleteQuestion(ctx, id, questions[0].ID))
	assert.ErrorIs(t, f.surveys.DeleteQuestion(ctx, id, questions[0].ID), ErrNotFound)

	remaining, err := f.surveys.Questions(ctx, id)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "Would you come back soon?", remaining[0].Text)
	assert.False(t, remaining[0].Required)

	responses, err := f.submissions.Responses(ctx, submissionID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, q.ID, responses[0].QuestionID)
}

func TestQuestionEditsStayInTheirSurvey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _, _ := f.seed(t, "A")
	b, qb, _ := f.seed(t, "B")

	err := f.surveys.UpdateQuestion(ctx, a, model.QuestionInput{
		ID: qb[0].ID, Text: "Renamed from A", Type: model.TypeRating, MaxScore: 10,
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.surveys.DeleteQuestion(ctx, a, qb[1].ID), ErrNotFound)

	questions, err := f.surveys.Questions(ctx, b)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "How satisfied are you?", questions[0].Text)
	assert.Equal(t, 4, count(t, f.db, "response"))
}

func TestSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.surveys.Save(ctx, 0, model.SurveyInput{Title: "Built"}, []model.QuestionInput{
		{Text: "Rate us", Type: model.TypeRating, MaxScore: 5},
	})
	require.NoError(t, err)

	survey, err := f.surveys.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Built", survey.Title)

	_, err = f.surveys.Save(ctx, id, model.SurveyInput{Title: "Rebuilt"}, []model.QuestionInput{
		{Text: "Come back?", Type: model.TypeYesNo, MaxScore: 1},
	})
	require.NoError(t, err)

	questions, err := f.surveys.Questions(ctx, id)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "Come back?", questions[0].Text)

	_, err = f.surveys.Save(ctx, 999, model.SurveyInput{Title: "Missing"}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRejectedStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	markupOnly := []model.QuestionInput{{Text: "<b></b>", Type: model.TypeRating, MaxScore: 10}}

	_, err := f.surveys.Save(ctx, 0, model.SurveyInput{Title: "New"}, markupOnly)
	assert.ErrorIs(t, err, model.ErrQuestionRequired)
	assert.Zero(t, count(t, f.db, "survey"))

	id, _, _ := f.seed(t, "Kept")
	_, err = f.surveys.Save(ctx, id, model.SurveyInput{Title: "Changed"}, markupOnly)
	assert.ErrorIs(t, err, model.ErrQuestionRequired)

	survey, err := f.surveys.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Kept", survey.Title)
	assert.Equal(t, 2, count(t, f.db, "question"))
}
