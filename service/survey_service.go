// Package service holds the survey and submission use cases on top of the
// repositories.
package service

import (
	"context"
	"errors"

	"github.com/mbolis/survey-builder/cache"
	"github.com/mbolis/survey-builder/log"
	"github.com/mbolis/survey-builder/model"
	"github.com/mbolis/survey-builder/repository"
)

var (
	ErrNotFound          = repository.ErrNotFound
	ErrSurveyUnavailable = errors.New("survey not published")
	ErrNoQuestions       = errors.New("survey has no questions")
)

type SurveyStore interface {
	Create(ctx context.Context, in model.SurveyInput) (int64, error)
	Update(ctx context.Context, id int64, p model.SurveyPatch) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*model.Survey, error)
	List(ctx context.Context, f model.SurveyFilter) ([]model.Survey, error)
	Questions(ctx context.Context, surveyID int64) ([]model.Question, error)
	AddQuestion(ctx context.Context, surveyID int64, q model.QuestionInput) (int64, error)
	UpdateQuestion(ctx context.Context, surveyID int64, q model.QuestionInput) error
	DeleteQuestion(ctx context.Context, surveyID, id int64) error
	Save(ctx context.Context, id int64, in model.SurveyInput, questions []model.QuestionInput) (int64, error)
	Duplicate(ctx context.Context, id int64) (int64, error)
}

// SurveyService fronts the survey store and keeps the public survey cache
// coherent with every change.
type SurveyService struct {
	store SurveyStore
	cache cache.SurveyCache
}

func NewSurveyService(store SurveyStore, c cache.SurveyCache) *SurveyService {
	if c == nil {
		c = cache.Nop()
	}
	return &SurveyService{store, c}
}

func (s *SurveyService) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		log.WithFields(log.Fields{"survey_id": id}).WithError(err).Warn("cache.invalidate")
	}
}

func (s *SurveyService) Create(ctx context.Context, in model.SurveyInput) (int64, error) {
	return s.store.Create(ctx, in)
}

func (s *SurveyService) Update(ctx context.Context, id int64, p model.SurveyPatch) error {
	defer s.invalidate(ctx, id)
	return s.store.Update(ctx, id, p)
}

// Save stores a survey and its whole question list as edited in the admin
// form. A zero id creates the survey. It returns the survey id. Nothing is
// stored when the survey or any question is rejected.
func (s *SurveyService) Save(ctx context.Context, id int64, in model.SurveyInput, questions []model.QuestionInput) (int64, error) {
	saved, err := s.store.Save(ctx, id, in, questions)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, saved)
	return saved, nil
}

func (s *SurveyService) Delete(ctx context.Context, id int64) error {
	defer s.invalidate(ctx, id)
	return s.store.Delete(ctx, id)
}

func (s *SurveyService) Duplicate(ctx context.Context, id int64) (int64, error) {
	return s.store.Duplicate(ctx, id)
}

// ToggleStatus flips a survey between draft and published and returns the
// new status.
func (s *SurveyService) ToggleStatus(ctx context.Context, id int64) (model.SurveyStatus, error) {
	survey, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	status := survey.Status.Toggled()
	if err = s.Update(ctx, id, model.SurveyPatch{Status: &status}); err != nil {
		return "", err
	}
	return status, nil
}

// Get returns a survey with its questions, whatever its status.
func (s *SurveyService) Get(ctx context.Context, id int64) (*model.Survey, error) {
	survey, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if survey.Questions, err = s.store.Questions(ctx, id); err != nil {
		return nil, err
	}
	return survey, nil
}

func (s *SurveyService) List(ctx context.Context, f model.SurveyFilter) ([]model.Survey, error) {
	return s.store.List(ctx, f)
}

func (s *SurveyService) Questions(ctx context.Context, surveyID int64) ([]model.Question, error) {
	return s.store.Questions(ctx, surveyID)
}

func (s *SurveyService) AddQuestion(ctx context.Context, surveyID int64, q model.QuestionInput) (int64, error) {
	defer s.invalidate(ctx, surveyID)
	return s.store.AddQuestion(ctx, surveyID, q)
}

func (s *SurveyService) UpdateQuestion(ctx context.Context, surveyID int64, q model.QuestionInput) error {
	defer s.invalidate(ctx, surveyID)
	return s.store.UpdateQuestion(ctx, surveyID, q)
}

func (s *SurveyService) DeleteQuestion(ctx context.Context, surveyID, questionID int64) error {
	defer s.invalidate(ctx, surveyID)
	return s.store.DeleteQuestion(ctx, surveyID, questionID)
}

// Published returns a survey as shown to respondents: it must be published
// and have at least one question. Lookups go through the cache.
func (s *SurveyService) Published(ctx context.Context, id int64) (*model.Survey, error) {
	survey, err := s.cache.Get(ctx, id)
	if err != nil {
		log.WithFields(log.Fields{"survey_id": id}).WithError(err).Warn("cache.get")
		survey = nil
	}

	if survey == nil {
		if survey, err = s.Get(ctx, id); err != nil {
			return nil, err
		}
		if err = s.cache.Set(ctx, survey); err != nil {
			log.WithFields(log.Fields{"survey_id": id}).WithError(err).Warn("cache.set")
		}
	}

	if !survey.Published() {
		return nil, ErrSurveyUnavailable
	}
	if len(survey.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	return survey, nil
}
