package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mbolis/survey-builder/cache"
	"github.com/mbolis/survey-builder/database/dbtest"
	"github.com/mbolis/survey-builder/model"
	"github.com/mbolis/survey-builder/notify"
	"github.com/mbolis/survey-builder/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	reports []notify.Report
	err     error
}

func (n *fakeNotifier) Notify(_ context.Context, r notify.Report) error {
	n.reports = append(n.reports, r)
	return n.err
}

type fakeLinker struct{}

func (fakeLinker) ResultsURL(id int64) (string, error) {
	return fmt.Sprintf("http://surveys.test/results?submission_id=%d", id), nil
}

// spyCache is an in-memory cache recording invalidations.
type spyCache struct {
	mu          sync.Mutex
	entries     map[int64]model.Survey
	invalidated []int64
}

func newSpyCache() *spyCache {
	return &spyCache{entries: map[int64]model.Survey{}}
}

func (c *spyCache) Get(_ context.Context, id int64) (*model.Survey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.entries[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (c *spyCache) Set(_ context.Context, s *model.Survey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[s.ID] = *s
	return nil
}

func (c *spyCache) Invalidate(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

var _ cache.SurveyCache = (*spyCache)(nil)

type env struct {
	db          *sql.DB
	surveys     *SurveyService
	submissions *SubmissionService
	notifier    *fakeNotifier
	cache       *spyCache
}

func newEnv(t *testing.T) env {
	db := dbtest.Open(t)
	c := newSpyCache()
	surveys := NewSurveyService(repository.NewSurveyRepo(db), c)
	n := &fakeNotifier{}
	subs := NewSubmissionService(surveys, repository.NewSubmissionRepo(db), n, fakeLinker{})
	return env{db, surveys, subs, n, c}
}

// publishedSurvey has a 0-10 rating and a 0-1 yes/no question.
func (e env) publishedSurvey(t *testing.T) (int64, []model.Question) {
	t.Helper()
	ctx := context.Background()

	id, err := e.surveys.Save(ctx, 0, model.SurveyInput{
		Title:  "Customer satisfaction",
		Status: model.StatusPublished,
	}, []model.QuestionInput{
		{Text: "How satisfied are you?", Type: model.TypeRating, SortOrder: 0, MinScore: 0, MaxScore: 10, Required: true},
		{Text: "Would you recommend us?", Type: model.TypeYesNo, SortOrder: 1, MinScore: 0, MaxScore: 1, Required: true},
	})
	require.NoError(t, err)

	questions, err := e.surveys.Questions(ctx, id)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	return id, questions
}

func TestSubmitEndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	surveyID, qs := e.publishedSurvey(t)

	res, err := e.submissions.Submit(ctx, SubmitRequest{
		SurveyID:  surveyID,
		UserName:  "Jane",
		UserEmail: "jane@example.com",
		Responses: map[int64]string{qs[0].ID: "8", qs[1].ID: "yes"},
		IP:        "203.0.113.7",
	})
	require.NoError(t, err)

	assert.Equal(t, 9.0, res.TotalScore)
	assert.Equal(t, fmt.Sprintf("http://surveys.test/results?submission_id=%d", res.SubmissionID), res.RedirectURL)

	result, err := e.submissions.Result(ctx, res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", result.Submission.UserName)
	assert.Equal(t, 9.0, result.Submission.TotalScore)
	assert.Equal(t, "203.0.113.7", result.Submission.IPAddress)
	assert.Equal(t, "Customer satisfaction", result.Survey.Title)
	require.Len(t, result.Responses, 2)
	assert.Equal(t, 8.0, result.Responses[0].Score)
	assert.Equal(t, 1.0, result.Responses[1].Score)

	require.Len(t, e.notifier.reports, 1)
	report := e.notifier.reports[0]
	assert.Equal(t, res.SubmissionID, report.Submission.ID)
	assert.Equal(t, res.RedirectURL, report.ResultsURL)
	assert.Len(t, report.Responses, 2)
}

func TestSubmitValidatesContact(t *testing.T) {
	tests := []struct {
		name, email string
		want        error
	}{
		{"", "jane@example.com", ErrNameRequired},
		{"   ", "jane@example.com", ErrNameRequired},
		{"Jane", "", ErrEmailRequired},
		{"Jane", "not-an-email", ErrEmailInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.want.Error(), func(t *testing.T) {
			e := newEnv(t)
			surveyID, qs := e.publishedSurvey(t)

			_, err := e.submissions.Submit(context.Background(), SubmitRequest{
				SurveyID:  surveyID,
				UserName:  tt.name,
				UserEmail: tt.email,
				Responses: map[int64]string{qs[0].ID: "5", qs[1].ID: "no"},
			})

			assert.ErrorIs(t, err, tt.want)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))

			var n int
			require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM submission`).Scan(&n))
			assert.Zero(t, n)
			assert.Empty(t, e.notifier.reports)
		})
	}
}

func TestSubmitRequiresAnswers(t *testing.T) {
	e := newEnv(t)
	surveyID, qs := e.publishedSurvey(t)

	_, err := e.submissions.Submit(context.Background(), SubmitRequest{
		SurveyID:  surveyID,
		UserName:  "Jane",
		UserEmail: "jane@example.com",
		Responses: map[int64]string{qs[0].ID: "5"},
	})
	assert.ErrorIs(t, err, ErrAnswerMissing)
}

func TestSubmitUnavailableSurveys(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	draft, err := e.surveys.Save(ctx, 0, model.SurveyInput{Title: "Draft"}, []model.QuestionInput{
		{Text: "Q", Type: model.TypeRating, MaxScore: 10},
	})
	require.NoError(t, err)
	empty, err := e.surveys.Create(ctx, model.SurveyInput{Title: "Empty", Status: model.StatusPublished})
	require.NoError(t, err)

	req := SubmitRequest{UserName: "Jane", UserEmail: "jane@example.com"}

	req.SurveyID = draft
	_, err = e.submissions.Submit(ctx, req)
	assert.ErrorIs(t, err, ErrSurveyUnavailable)

	req.SurveyID = empty
	_, err = e.submissions.Submit(ctx, req)
	assert.ErrorIs(t, err, ErrNoQuestions)

	req.SurveyID = 999
	_, err = e.submissions.Submit(ctx, req)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitIgnoresForeignAnswers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	surveyID, qs := e.publishedSurvey(t)

	res, err := e.submissions.Submit(ctx, SubmitRequest{
		SurveyID:  surveyID,
		UserName:  "Jane",
		UserEmail: "jane@example.com",
		Responses: map[int64]string{qs[0].ID: "15", qs[1].ID: "Yes", 4242: "10"},
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.TotalScore)

	result, err := e.submissions.Result(ctx, res.SubmissionID)
	require.NoError(t, err)
	assert.Len(t, result.Responses, 2)
	assert.Equal(t, 0.0, result.Responses[1].Score)
}

func TestSubmitSurvivesNotifyFailure(t *testing.T) {
	e := newEnv(t)
	e.notifier.err = errors.New("smtp down")
	surveyID, qs := e.publishedSurvey(t)

	res, err := e.submissions.Submit(context.Background(), SubmitRequest{
		SurveyID:  surveyID,
		UserName:  "Jane",
		UserEmail: "jane@example.com",
		Responses: map[int64]string{qs[0].ID: "2", qs[1].ID: "yes"},
	})
	require.NoError(t, err)
	assert.NotZero(t, res.SubmissionID)
}

func TestSubmissionAdminOperations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	surveyID, qs := e.publishedSurvey(t)

	var ids []int64
	for _, rating := range []string{"2", "7"} {
		res, err := e.submissions.Submit(ctx, SubmitRequest{
			SurveyID:  surveyID,
			UserName:  "Jane",
			UserEmail: "jane@example.com",
			Responses: map[int64]string{qs[0].ID: rating, qs[1].ID: "no"},
		})
		require.NoError(t, err)
		ids = append(ids, res.SubmissionID)
	}

	subs, total, err := e.submissions.List(ctx, model.SubmissionFilter{SurveyID: surveyID, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, subs, 1)
	assert.Equal(t, 2, total)

	stats, err := e.submissions.Stats(ctx, surveyID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 4.5, stats.Average)
	assert.Equal(t, 2, stats.Recent)

	require.NoError(t, e.submissions.Delete(ctx, ids[0]))
	_, err = e.submissions.Result(ctx, ids[0])
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishedUsesCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	surveyID, _ := e.publishedSurvey(t)

	first, err := e.surveys.Published(ctx, surveyID)
	require.NoError(t, err)
	assert.Len(t, first.Questions, 2)

	cached, err := e.cache.Get(ctx, surveyID)
	require.NoError(t, err)
	require.NotNil(t, cached)

	// a stale entry is served until invalidated
	_, err = e.db.Exec(`UPDATE survey SET title = 'Changed behind our back' WHERE id = ?`, surveyID)
	require.NoError(t, err)
	second, err := e.surveys.Published(ctx, surveyID)
	require.NoError(t, err)
	assert.Equal(t, "Customer satisfaction", second.Title)

	title := "Renamed"
	require.NoError(t, e.surveys.Update(ctx, surveyID, model.SurveyPatch{Title: &title}))
	third, err := e.surveys.Published(ctx, surveyID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", third.Title)
}

func TestMutationsInvalidateCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	surveyID, qs := e.publishedSurvey(t)
	e.cache.invalidated = nil

	status, err := e.surveys.ToggleStatus(ctx, surveyID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, status)

	_, err = e.surveys.AddQuestion(ctx, surveyID, model.QuestionInput{Text: "Extra", Type: model.TypeYesNo, MaxScore: 1})
	require.NoError(t, err)
	require.NoError(t, e.surveys.UpdateQuestion(ctx, surveyID, model.QuestionInput{
		ID: qs[0].ID, Text: "Edited", Type: model.TypeRating, MaxScore: 5,
	}))
	require.NoError(t, e.surveys.DeleteQuestion(ctx, surveyID, qs[1].ID))
	require.NoError(t, e.surveys.Delete(ctx, surveyID))

	assert.Equal(t, []int64{surveyID, surveyID, surveyID, surveyID, surveyID}, e.cache.invalidated)

	_, err = e.surveys.Published(ctx, surveyID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	id, err := e.surveys.Create(ctx, model.SurveyInput{Title: "Draft"})
	require.NoError(t, err)

	status, err := e.surveys.ToggleStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, status)

	status, err = e.surveys.ToggleStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, status)

	_, err = e.surveys.ToggleStatus(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveUpdatesExisting(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	surveyID, qs := e.publishedSurvey(t)

	id, err := e.surveys.Save(ctx, surveyID, model.SurveyInput{
		Title:  "Customer satisfaction 2",
		Status: model.StatusPublished,
	}, []model.QuestionInput{
		{ID: qs[1].ID, Text: "Would you recommend us?", Type: model.TypeYesNo, SortOrder: 0, MaxScore: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, surveyID, id)

	survey, err := e.surveys.Get(ctx, surveyID)
	require.NoError(t, err)
	assert.Equal(t, "Customer satisfaction 2", survey.Title)
	require.Len(t, survey.Questions, 1)
	assert.Equal(t, qs[1].ID, survey.Questions[0].ID)

	_, err = e.surveys.Save(ctx, surveyID, model.SurveyInput{Title: ""}, nil)
	assert.ErrorIs(t, err, model.ErrTitleRequired)
}

func TestSaveRejectedLeavesNoSurvey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.surveys.Save(ctx, 0, model.SurveyInput{Title: "New"}, []model.QuestionInput{
		{Text: "<b></b>", Type: model.TypeRating, MaxScore: 10},
	})
	assert.ErrorIs(t, err, model.ErrQuestionRequired)

	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM survey`).Scan(&n))
	assert.Zero(t, n)
	assert.Empty(t, e.cache.invalidated)
}

func TestQuestionEditsOfAnotherSurveyFail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, _ := e.publishedSurvey(t)
	b, qb := e.publishedSurvey(t)

	_, err := e.surveys.Published(ctx, b)
	require.NoError(t, err)

	err = e.surveys.UpdateQuestion(ctx, a, model.QuestionInput{
		ID: qb[0].ID, Text: "Renamed from A", Type: model.TypeRating, MaxScore: 10,
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, e.surveys.DeleteQuestion(ctx, a, qb[1].ID), ErrNotFound)

	stored, err := e.surveys.Get(ctx, b)
	require.NoError(t, err)
	require.Len(t, stored.Questions, 2)
	assert.Equal(t, "How satisfied are you?", stored.Questions[0].Text)
}

// stalledNotifier never gets through, like an unreachable mail relay.
type stalledNotifier struct {
	onCall     func()
	deadline   time.Time
	errOnEntry error
}

func (n *stalledNotifier) Notify(ctx context.Context, _ notify.Report) error {
	if n.onCall != nil {
		n.onCall()
	}
	n.errOnEntry = ctx.Err()
	n.deadline, _ = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestSubmitBoundsNotifications(t *testing.T) {
	e := newEnv(t)
	surveyID, qs := e.publishedSurvey(t)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	defer cancelReq()
	n := &stalledNotifier{onCall: cancelReq}
	subs := NewSubmissionService(e.surveys, repository.NewSubmissionRepo(e.db), n, fakeLinker{}).
		WithNotifyTimeout(50 * time.Millisecond)

	start := time.Now()
	res, err := subs.Submit(reqCtx, SubmitRequest{
		SurveyID:  surveyID,
		UserName:  "Jane",
		UserEmail: "jane@example.com",
		Responses: map[int64]string{qs[0].ID: "8", qs[1].ID: "yes"},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NotZero(t, res.SubmissionID)

	assert.NoError(t, n.errOnEntry)
	assert.False(t, n.deadline.IsZero())
	assert.WithinDuration(t, start, n.deadline, 5*time.Second)

	stored, err := subs.Result(context.Background(), res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", stored.Submission.UserName)
}

func TestNotifyTimeoutDefault(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, DefaultNotifyTimeout, e.submissions.WithNotifyTimeout(0).notifyTimeout)
	assert.Equal(t, time.Second, e.submissions.WithNotifyTimeout(time.Second).notifyTimeout)
}
