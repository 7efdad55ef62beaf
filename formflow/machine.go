// Package formflow models the public multi-step survey form and the admin
// question builder as plain state, independent of any page or script.
package formflow

import (
	"errors"
	"regexp"
	"strings"

	"github.com/mbolis/survey-builder/model"
)

type Kind int

const (
	Intro Kind = iota
	Question
	LeadCapture
	Submitting
	Result
)

func (k Kind) String() string {
	switch k {
	case Intro:
		return "intro"
	case Question:
		return "question"
	case LeadCapture:
		return "lead_capture"
	case Submitting:
		return "submitting"
	case Result:
		return "result"
	}
	return "unknown"
}

// State is the step the form is on. Index is only meaningful for Question.
type State struct {
	Kind  Kind
	Index int
}

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAnswerRequired    = errors.New("answer required")
	ErrContactInvalid    = errors.New("invalid name or email")
	ErrAlreadySubmitting = errors.New("submission already in progress")
)

// Message is the text shown to the respondent for err.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAnswerRequired):
		return "Please answer this question before continuing."
	case errors.Is(err, ErrContactInvalid):
		return "Please provide valid name and email address."
	case errors.Is(err, ErrAlreadySubmitting):
		return "Your answers are being submitted."
	}
	return err.Error()
}

var reEmail = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail is the loose syntax check the form applies before submitting.
func ValidEmail(s string) bool {
	return reEmail.MatchString(s)
}

// Machine walks a respondent through intro, one step per question, the
// contact step, submission and result. It has no I/O: the caller performs
// the submission and reports back with Succeed or Fail.
type Machine struct {
	questions []model.Question
	answers   map[int64]string
	state     State

	name, email string
	resultURL   string
	err         error
}

// New starts on the intro when intro is true, on the first question
// otherwise.
func New(questions []model.Question, intro bool) *Machine {
	m := &Machine{
		questions: questions,
		answers:   map[int64]string{},
		state:     State{Kind: Question},
	}
	if intro {
		m.state = State{Kind: Intro}
	}
	return m
}

func (m *Machine) State() State { return m.state }

// Err is the error surfaced by the last failed step, if any.
func (m *Machine) Err() error { return m.err }

func (m *Machine) ResultURL() string { return m.resultURL }

// Current returns the question on screen, if the form is on a question.
func (m *Machine) Current() (model.Question, bool) {
	if m.state.Kind != Question || m.state.Index >= len(m.questions) {
		return model.Question{}, false
	}
	return m.questions[m.state.Index], true
}

func (m *Machine) Answer(questionID int64, value string) {
	m.answers[questionID] = value
}

func (m *Machine) Answers() map[int64]string {
	out := make(map[int64]string, len(m.answers))
	for k, v := range m.answers {
		out[k] = v
	}
	return out
}

func (m *Machine) SetContact(name, email string) {
	m.name, m.email = strings.TrimSpace(name), strings.TrimSpace(email)
}

func (m *Machine) Contact() (name, email string) {
	return m.name, m.email
}

func (m *Machine) fail(err error) error {
	m.err = err
	return err
}

func (m *Machine) move(s State) error {
	m.state = s
	m.err = nil
	return nil
}

// afterQuestion is the step following question i.
func (m *Machine) afterQuestion(i int) State {
	if i+1 < len(m.questions) {
		return State{Kind: Question, Index: i + 1}
	}
	return State{Kind: LeadCapture}
}

// Start leaves the intro.
func (m *Machine) Start() error {
	if m.state.Kind != Intro {
		return ErrInvalidTransition
	}
	if len(m.questions) == 0 {
		return m.move(State{Kind: LeadCapture})
	}
	return m.move(State{Kind: Question})
}

// Next validates the current question and moves forward.
func (m *Machine) Next() error {
	switch m.state.Kind {
	case Intro:
		return m.Start()
	case Question:
		if q, ok := m.Current(); ok && q.Required && strings.TrimSpace(m.answers[q.ID]) == "" {
			return m.fail(ErrAnswerRequired)
		}
		return m.move(m.afterQuestion(m.state.Index))
	}
	return ErrInvalidTransition
}

// Prev moves back one step without validation.
func (m *Machine) Prev() error {
	switch m.state.Kind {
	case Question:
		if m.state.Index > 0 {
			return m.move(State{Kind: Question, Index: m.state.Index - 1})
		}
	case LeadCapture:
		if n := len(m.questions); n > 0 {
			return m.move(State{Kind: Question, Index: n - 1})
		}
	}
	return ErrInvalidTransition
}

// Submit validates the contact details and enters Submitting. A second
// Submit while the first is in flight is rejected.
func (m *Machine) Submit() error {
	switch m.state.Kind {
	case Submitting:
		return ErrAlreadySubmitting
	case LeadCapture:
	default:
		return ErrInvalidTransition
	}

	if m.name == "" || !ValidEmail(m.email) {
		return m.fail(ErrContactInvalid)
	}
	if q, missing := MissingRequired(m.questions, m.answers); missing {
		for i := range m.questions {
			if m.questions[i].ID == q.ID {
				m.state = State{Kind: Question, Index: i}
			}
		}
		return m.fail(ErrAnswerRequired)
	}
	return m.move(State{Kind: Submitting})
}

func (m *Machine) Succeed(resultURL string) error {
	if m.state.Kind != Submitting {
		return ErrInvalidTransition
	}
	m.resultURL = resultURL
	return m.move(State{Kind: Result})
}

// Fail returns to the contact step, the last step carrying input, with err
// surfaced.
func (m *Machine) Fail(err error) error {
	if m.state.Kind != Submitting {
		return ErrInvalidTransition
	}
	m.state = State{Kind: LeadCapture}
	m.err = err
	return nil
}

// Step returns the 1-based position of the current step among the question
// and contact steps. The intro is step 0, submitting and result count as the
// last step.
func (m *Machine) Step() (current, total int) {
	total = len(m.questions) + 1
	switch m.state.Kind {
	case Intro:
		return 0, total
	case Question:
		return m.state.Index + 1, total
	}
	return total, total
}

func (m *Machine) Progress() float64 {
	return Progress(m.Step())
}

// Progress is the completion percentage of step current out of total.
func Progress(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(current) / float64(total) * 100
}

// MissingRequired returns the first required question with no answer.
func MissingRequired(questions []model.Question, answers map[int64]string) (model.Question, bool) {
	for _, q := range questions {
		if q.Required && strings.TrimSpace(answers[q.ID]) == "" {
			return q, true
		}
	}
	return model.Question{}, false
}
