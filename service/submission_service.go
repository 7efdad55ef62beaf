package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mbolis/survey-builder/formflow"
	"github.com/mbolis/survey-builder/log"
	"github.com/mbolis/survey-builder/model"
	"github.com/mbolis/survey-builder/notify"
	"github.com/mbolis/survey-builder/sanitize"
	"github.com/mbolis/survey-builder/scoring"
)

// ValidationError rejects a submission before anything is stored.
type ValidationError struct {
	Field  string
	Reason error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

var (
	ErrNameRequired  = errors.New("name is required")
	ErrEmailRequired = errors.New("email is required")
	ErrEmailInvalid  = errors.New("email is invalid")
	ErrAnswerMissing = errors.New("required question not answered")
)

type SubmissionStore interface {
	Create(ctx context.Context, sub model.Submission, responses []model.Response) (int64, error)
	Get(ctx context.Context, id int64) (*model.Submission, error)
	List(ctx context.Context, f model.SubmissionFilter) ([]model.Submission, error)
	Count(ctx context.Context, f model.SubmissionFilter) (int, error)
	Responses(ctx context.Context, submissionID int64) ([]model.Response, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context, surveyID int64, since time.Time) (*model.Stats, error)
}

// SurveyReader loads surveys with their questions. Published only returns
// surveys open to respondents.
type SurveyReader interface {
	Published(ctx context.Context, id int64) (*model.Survey, error)
	Get(ctx context.Context, id int64) (*model.Survey, error)
}

type Notifier interface {
	Notify(ctx context.Context, r notify.Report) error
}

// ResultLinker builds the results page URL of a submission.
type ResultLinker interface {
	ResultsURL(submissionID int64) (string, error)
}

type SubmitRequest struct {
	SurveyID  int64
	UserName  string `validate:"required"`
	UserEmail string `validate:"required,email"`
	Responses map[int64]string
	IP        string
}

type SubmitResult struct {
	SubmissionID int64
	TotalScore   float64
	RedirectURL  string
}

// DefaultNotifyTimeout bounds the notices of one submission. It must stay
// below the browser's submit timeout.
const DefaultNotifyTimeout = 5 * time.Second

type SubmissionService struct {
	surveys       SurveyReader
	store         SubmissionStore
	notifier      Notifier
	links         ResultLinker
	validate      *validator.Validate
	adminURL      func(submissionID int64) string
	notifyTimeout time.Duration
}

func NewSubmissionService(surveys SurveyReader, store SubmissionStore, notifier Notifier, links ResultLinker) *SubmissionService {
	return &SubmissionService{
		surveys:       surveys,
		store:         store,
		notifier:      notifier,
		links:         links,
		validate:      validator.New(),
		notifyTimeout: DefaultNotifyTimeout,
	}
}

// WithAdminLinks makes admin notices link to the submission detail page.
func (s *SubmissionService) WithAdminLinks(url func(submissionID int64) string) *SubmissionService {
	s.adminURL = url
	return s
}

// WithNotifyTimeout bounds the notices sent after a submission is stored.
// Non-positive values keep the default.
func (s *SubmissionService) WithNotifyTimeout(d time.Duration) *SubmissionService {
	if d > 0 {
		s.notifyTimeout = d
	}
	return s
}

func (s *SubmissionService) validateContact(req *SubmitRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	switch {
	case fe.Field() == "UserName":
		return &ValidationError{Field: "user_name", Reason: ErrNameRequired}
	case fe.Tag() == "required":
		return &ValidationError{Field: "user_email", Reason: ErrEmailRequired}
	}
	return &ValidationError{Field: "user_email", Reason: ErrEmailInvalid}
}

// Submit validates, scores and stores a submission, then sends the
// notification emails. A failure to notify is logged and does not fail the
// submission.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	req.UserName = sanitize.Line(req.UserName)
	req.UserEmail = sanitize.Email(req.UserEmail)
	if err := s.validateContact(&req); err != nil {
		return nil, err
	}

	survey, err := s.surveys.Published(ctx, req.SurveyID)
	if err != nil {
		return nil, err
	}

	if q, missing := formflow.MissingRequired(survey.Questions, req.Responses); missing {
		return nil, &ValidationError{Field: "question_" + strconv.FormatInt(q.ID, 10), Reason: ErrAnswerMissing}
	}

	answers, total := scoring.Evaluate(survey.Questions, req.Responses)

	sub := model.Submission{
		SurveyID:    survey.ID,
		UserName:    req.UserName,
		UserEmail:   req.UserEmail,
		TotalScore:  total,
		Data:        make(map[string]string, len(req.Responses)),
		SubmittedAt: time.Now().UTC().Truncate(time.Second),
		IPAddress:   req.IP,
	}
	for qid, raw := range req.Responses {
		sub.Data[strconv.FormatInt(qid, 10)] = sanitize.Line(raw)
	}

	responses := make([]model.Response, 0, len(answers))
	for _, a := range answers {
		responses = append(responses, model.Response{
			QuestionID:   a.Question.ID,
			Value:        sanitize.Line(a.Value),
			Score:        a.Score,
			QuestionText: a.Question.Text,
			QuestionType: a.Question.Type,
		})
	}

	sub.ID, err = s.store.Create(ctx, sub, responses)
	if err != nil {
		return nil, err
	}
	sub.SurveyTitle = survey.Title

	resultsURL, err := s.links.ResultsURL(sub.ID)
	if err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{"survey_id": survey.ID, "submission_id": sub.ID})
	logger.Infof("submission stored, score %s", scoring.Format(total))

	report := notify.Report{
		Survey:     *survey,
		Submission: sub,
		Responses:  responses,
		ResultsURL: resultsURL,
	}
	if s.adminURL != nil {
		report.AdminURL = s.adminURL(sub.ID)
	}
	// notices outlive the request, not the timeout
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(notifyCtx, report); err != nil {
		logger.WithError(err).Error("notify")
	}

	return &SubmitResult{
		SubmissionID: sub.ID,
		TotalScore:   total,
		RedirectURL:  resultsURL,
	}, nil
}

// Result is a stored submission with its scored responses, as shown on the
// results page and in the admin detail view.
type Result struct {
	Survey     *model.Survey
	Submission *model.Submission
	Responses  []model.Response
}

func (r Result) Band() scoring.Band {
	return scoring.Interpret(r.Submission.TotalScore)
}

func (s *SubmissionService) Result(ctx context.Context, submissionID int64) (*Result, error) {
	sub, err := s.store.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	survey, err := s.surveys.Get(ctx, sub.SurveyID)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.Responses(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	return &Result{Survey: survey, Submission: sub, Responses: responses}, nil
}

func (s *SubmissionService) List(ctx context.Context, f model.SubmissionFilter) ([]model.Submission, int, error) {
	subs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	n, err := s.store.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return subs, n, nil
}

func (s *SubmissionService) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

// RecentWindow is how far back submissions count as recent in statistics.
const RecentWindow = 30 * 24 * time.Hour

func (s *SubmissionService) Stats(ctx context.Context, surveyID int64) (*model.Stats, error) {
	return s.store.Stats(ctx, surveyID, time.Now().Add(-RecentWindow))
}

// Count returns how many submissions match f.
func (s *SubmissionService) Count(ctx context.Context, f model.SubmissionFilter) (int, error) {
	return s.store.Count(ctx, f)
}
