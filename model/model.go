package model

import (
	"errors"
	"math"
	"strings"
	"time"
)

type SurveyStatus string

const (
	StatusDraft     SurveyStatus = "draft"
	StatusPublished SurveyStatus = "published"
)

func (s SurveyStatus) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Toggled returns the opposite status.
func (s SurveyStatus) Toggled() SurveyStatus {
	if s == StatusPublished {
		return StatusDraft
	}
	return StatusPublished
}

type ScoringMethod string

const (
	ScoringSum     ScoringMethod = "sum"
	ScoringAverage ScoringMethod = "average"
)

func (m ScoringMethod) Valid() bool {
	return m == ScoringSum || m == ScoringAverage
}

type QuestionType string

const (
	TypeRating         QuestionType = "rating"
	TypeYesNo          QuestionType = "yes_no"
	TypeMultipleChoice QuestionType = "multiple_choice"
)

var QuestionTypes = []QuestionType{TypeRating, TypeYesNo, TypeMultipleChoice}

func (t QuestionType) Valid() bool {
	for _, v := range QuestionTypes {
		if t == v {
			return true
		}
	}
	return false
}

func (t QuestionType) Label() string {
	switch t {
	case TypeRating:
		return "Rating Scale"
	case TypeYesNo:
		return "Yes/No"
	case TypeMultipleChoice:
		return "Multiple Choice"
	}
	return string(t)
}

// HasScoreRange reports whether min and max score are editable for the type.
func (t QuestionType) HasScoreRange() bool {
	return t == TypeRating
}

type ButtonConfig struct {
	Enabled     bool   `json:"enabled"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Active reports whether the call to action should be shown.
func (b ButtonConfig) Active() bool {
	return b.Enabled && b.Text != "" && b.URL != ""
}

var DefaultColors = map[string]string{
	"primary":    "#0073aa",
	"secondary":  "#ffffff",
	"text":       "#333333",
	"background": "#f9f9f9",
}

type Survey struct {
	ID            int64             `json:"id,omitempty"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	IntroEnabled  bool              `json:"intro_enabled"`
	IntroContent  string            `json:"intro_content"`
	ScoringMethod ScoringMethod     `json:"scoring_method"`
	Status        SurveyStatus      `json:"status"`
	Colors        map[string]string `json:"colors_config"`
	Button        ButtonConfig      `json:"button_config"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`

	Questions []Question `json:"questions,omitempty"`
}

func (s Survey) Published() bool {
	return s.Status == StatusPublished
}

func (s Survey) ShowIntro() bool {
	return s.IntroEnabled && strings.TrimSpace(s.IntroContent) != ""
}

// Color returns the configured color for key, falling back to the defaults.
func (s Survey) Color(key string) string {
	if c := s.Colors[key]; c != "" {
		return c
	}
	return DefaultColors[key]
}

type QuestionOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// DefaultOptions are offered by multiple choice questions with no options of
// their own.
func DefaultOptions() []QuestionOption {
	return []QuestionOption{
		{Label: "Option 1", Value: "1"},
		{Label: "Option 2", Value: "2"},
		{Label: "Option 3", Value: "3"},
	}
}

type Question struct {
	ID        int64            `json:"id,omitempty"`
	SurveyID  int64            `json:"survey_id,omitempty"`
	Text      string           `json:"question_text"`
	Type      QuestionType     `json:"question_type"`
	SortOrder int              `json:"sort_order"`
	MinScore  float64          `json:"min_score"`
	MaxScore  float64          `json:"max_score"`
	Required  bool             `json:"required"`
	Options   []QuestionOption `json:"options,omitempty"`
}

func (q Question) Choices() []QuestionOption {
	if len(q.Options) == 0 {
		return DefaultOptions()
	}
	return q.Options
}

// RatingRange lists the whole values selectable on a rating scale.
func (q Question) RatingRange() []int {
	lo, hi := int(math.Ceil(q.MinScore)), int(math.Floor(q.MaxScore))
	if hi < lo {
		return nil
	}
	values := make([]int, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		values = append(values, v)
	}
	return values
}

type Submission struct {
	ID          int64             `json:"id,omitempty"`
	SurveyID    int64             `json:"survey_id"`
	SurveyTitle string            `json:"survey_title,omitempty"`
	UserName    string            `json:"user_name"`
	UserEmail   string            `json:"user_email"`
	TotalScore  float64           `json:"total_score"`
	Data        map[string]string `json:"submission_data"`
	SubmittedAt time.Time         `json:"submitted_at"`
	IPAddress   string            `json:"ip_address"`
}

type Response struct {
	ID           int64        `json:"id,omitempty"`
	SubmissionID int64        `json:"submission_id,omitempty"`
	QuestionID   int64        `json:"question_id"`
	Value        string       `json:"response_value"`
	Score        float64      `json:"score_value"`
	QuestionText string       `json:"question_text,omitempty"`
	QuestionType QuestionType `json:"question_type,omitempty"`
}

type SurveyInput struct {
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	IntroEnabled  bool              `json:"intro_enabled"`
	IntroContent  string            `json:"intro_content"`
	ScoringMethod ScoringMethod     `json:"scoring_method"`
	Status        SurveyStatus      `json:"status"`
	Colors        map[string]string `json:"colors_config"`
	Button        ButtonConfig      `json:"button_config"`
}

var (
	ErrTitleRequired     = errors.New("title is required")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidScoring    = errors.New("invalid scoring method")
	ErrInvalidType       = errors.New("invalid question type")
	ErrQuestionRequired  = errors.New("question text is required")
	ErrInvalidScoreRange = errors.New("min score must not exceed max score")
)

// Normalize fills in defaults and checks the input.
func (in *SurveyInput) Normalize() error {
	if in.ScoringMethod == "" {
		in.ScoringMethod = ScoringSum
	}
	if in.Status == "" {
		in.Status = StatusDraft
	}
	if strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	if !in.Status.Valid() {
		return ErrInvalidStatus
	}
	if !in.ScoringMethod.Valid() {
		return ErrInvalidScoring
	}
	return nil
}

// SurveyPatch holds a partial survey update. Nil fields are left unchanged.
type SurveyPatch struct {
	Title         *string           `json:"title,omitempty"`
	Description   *string           `json:"description,omitempty"`
	IntroEnabled  *bool             `json:"intro_enabled,omitempty"`
	IntroContent  *string           `json:"intro_content,omitempty"`
	ScoringMethod *ScoringMethod    `json:"scoring_method,omitempty"`
	Status        *SurveyStatus     `json:"status,omitempty"`
	Colors        map[string]string `json:"colors_config,omitempty"`
	Button        *ButtonConfig     `json:"button_config,omitempty"`
}

func (p SurveyPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ErrTitleRequired
	}
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	if p.ScoringMethod != nil && !p.ScoringMethod.Valid() {
		return ErrInvalidScoring
	}
	return nil
}

// PatchFrom turns a full input into a patch touching every field.
func PatchFrom(in SurveyInput) SurveyPatch {
	colors := in.Colors
	if colors == nil {
		colors = map[string]string{}
	}
	return SurveyPatch{
		Title:         &in.Title,
		Description:   &in.Description,
		IntroEnabled:  &in.IntroEnabled,
		IntroContent:  &in.IntroContent,
		ScoringMethod: &in.ScoringMethod,
		Status:        &in.Status,
		Colors:        colors,
		Button:        &in.Button,
	}
}

// QuestionInput is a question as edited by an admin. A zero ID means a new
// question.
type QuestionInput struct {
	ID        int64            `json:"id,omitempty"`
	Text      string           `json:"question_text"`
	Type      QuestionType     `json:"question_type"`
	SortOrder int              `json:"sort_order"`
	MinScore  float64          `json:"min_score"`
	MaxScore  float64          `json:"max_score"`
	Required  bool             `json:"required"`
	Options   []QuestionOption `json:"options,omitempty"`
}

func (q *QuestionInput) Normalize() error {
	if q.Type == "" {
		q.Type = TypeRating
	}
	if !q.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(q.Text) == "" {
		return ErrQuestionRequired
	}
	if q.MinScore > q.MaxScore {
		return ErrInvalidScoreRange
	}
	if q.Type != TypeMultipleChoice {
		q.Options = nil
	}
	return nil
}

type SurveyFilter struct {
	Status  string
	OrderBy string
	Order   string
	Limit   int
	Offset  int
}

type SubmissionFilter struct {
	SurveyID int64
	From     time.Time
	To       time.Time
	Order    string
	Limit    int
	Offset   int
}

type Stats struct {
	Total        int      `json:"total_submissions"`
	Average      float64  `json:"average_score"`
	Distribution []Bucket `json:"score_distribution"`
	Recent       int      `json:"recent_submissions"`
}

// Bucket counts scores in [From, From+width).
type Bucket struct {
	From  int `json:"score_range"`
	Count int `json:"count"`
}
