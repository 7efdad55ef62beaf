package formflow

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mbolis/survey-builder/model"
	"github.com/pkg/errors"
)

// IndexPlaceholder stands for the row index in the row template that the
// browser clones when a question is added.
const IndexPlaceholder = "__INDEX__"

var ErrNoSuchRow = errors.New("no such question row")

type Row struct {
	ID        int64
	Text      string
	Type      model.QuestionType
	SortOrder int
	MinScore  float64
	MaxScore  float64
	Required  bool
	Options   []model.QuestionOption
}

func (r Row) ShowScoreRange() bool {
	return r.Type.HasScoreRange()
}

func (r Row) ShowOptions() bool {
	return r.Type == model.TypeMultipleChoice
}

func (r Row) OptionsText() string {
	return FormatOptions(r.Options)
}

// NewRow is the row added by the builder: a required 0-10 rating.
func NewRow() Row {
	return Row{Type: model.TypeRating, MinScore: 0, MaxScore: 10, Required: true}
}

// Builder edits the question list of a survey. It only holds view state:
// nothing is stored until the whole list is saved.
type Builder struct {
	rows []Row
}

func NewBuilder(questions []model.Question) *Builder {
	b := &Builder{}
	for _, q := range questions {
		b.rows = append(b.rows, Row{
			ID:        q.ID,
			Text:      q.Text,
			Type:      q.Type,
			SortOrder: q.SortOrder,
			MinScore:  q.MinScore,
			MaxScore:  q.MaxScore,
			Required:  q.Required,
			Options:   q.Options,
		})
	}
	b.renumber()
	return b
}

func (b *Builder) Rows() []Row {
	return b.rows
}

func (b *Builder) Len() int {
	return len(b.rows)
}

// Add appends a new row and returns its index.
func (b *Builder) Add() int {
	row := NewRow()
	row.SortOrder = len(b.rows)
	b.rows = append(b.rows, row)
	return len(b.rows) - 1
}

// Remove deletes row i and renumbers the rest.
func (b *Builder) Remove(i int) error {
	if i < 0 || i >= len(b.rows) {
		return ErrNoSuchRow
	}
	b.rows = append(b.rows[:i], b.rows[i+1:]...)
	b.renumber()
	return nil
}

// Move puts row from at position to.
func (b *Builder) Move(from, to int) error {
	if from < 0 || from >= len(b.rows) || to < 0 || to >= len(b.rows) {
		return ErrNoSuchRow
	}
	row := b.rows[from]
	b.rows = append(b.rows[:from], b.rows[from+1:]...)
	b.rows = append(b.rows[:to], append([]Row{row}, b.rows[to:]...)...)
	b.renumber()
	return nil
}

// SetType changes the type of row i. Values of fields that the new type does
// not show are kept, so switching back restores them.
func (b *Builder) SetType(i int, t model.QuestionType) error {
	if i < 0 || i >= len(b.rows) {
		return ErrNoSuchRow
	}
	if !t.Valid() {
		return model.ErrInvalidType
	}
	b.rows[i].Type = t
	if t == model.TypeMultipleChoice && len(b.rows[i].Options) == 0 {
		b.rows[i].Options = model.DefaultOptions()
	}
	return nil
}

// every row's sort order is its position
func (b *Builder) renumber() {
	for i := range b.rows {
		b.rows[i].SortOrder = i
	}
}

// Apply runs a command posted by a builder button: "add", "remove:N",
// "up:N" or "down:N".
func (b *Builder) Apply(cmd string) error {
	name, arg, _ := strings.Cut(cmd, ":")
	if name == "add" {
		b.Add()
		return nil
	}

	i, err := strconv.Atoi(arg)
	if err != nil {
		return errors.Wrapf(ErrNoSuchRow, "builder command %q", cmd)
	}
	switch name {
	case "remove":
		return b.Remove(i)
	case "up":
		return b.Move(i, i-1)
	case "down":
		return b.Move(i, i+1)
	}
	return errors.Errorf("unknown builder command %q", cmd)
}

func (b *Builder) Inputs() []model.QuestionInput {
	inputs := make([]model.QuestionInput, 0, len(b.rows))
	for _, r := range b.rows {
		in := model.QuestionInput{
			ID:        r.ID,
			Text:      r.Text,
			Type:      r.Type,
			SortOrder: r.SortOrder,
			MinScore:  r.MinScore,
			MaxScore:  r.MaxScore,
			Required:  r.Required,
		}
		if r.Type == model.TypeMultipleChoice {
			in.Options = r.Options
		}
		inputs = append(inputs, in)
	}
	return inputs
}

var reQuestionField = regexp.MustCompile(`^questions\[(\d+)\]\[(\w+)\]$`)

// ParseForm reads rows posted as questions[i][field]. Rows are ordered by
// their posted sort_order, then by index.
func ParseForm(form url.Values) (*Builder, error) {
	type indexed struct {
		index int
		row   Row
	}
	byIndex := map[int]*indexed{}

	for key, values := range form {
		m := reQuestionField.FindStringSubmatch(key)
		if m == nil || len(values) == 0 {
			continue
		}
		i, _ := strconv.Atoi(m[1])
		entry, ok := byIndex[i]
		if !ok {
			entry = &indexed{index: i, row: NewRow()}
			entry.row.Required = false
			byIndex[i] = entry
		}
		if err := setField(&entry.row, m[2], values[len(values)-1]); err != nil {
			return nil, errors.Wrapf(err, "question %d", i+1)
		}
	}

	entries := make([]*indexed, 0, len(byIndex))
	for _, e := range byIndex {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].row.SortOrder != entries[b].row.SortOrder {
			return entries[a].row.SortOrder < entries[b].row.SortOrder
		}
		return entries[a].index < entries[b].index
	})

	b := &Builder{}
	for _, e := range entries {
		b.rows = append(b.rows, e.row)
	}
	b.renumber()
	return b, nil
}

func setField(r *Row, field, value string) (err error) {
	value = strings.TrimSpace(value)
	switch field {
	case "id":
		if value != "" {
			r.ID, err = strconv.ParseInt(value, 10, 64)
		}
	case "sort_order":
		if value != "" {
			r.SortOrder, err = strconv.Atoi(value)
		}
	case "question_text":
		r.Text = value
	case "question_type":
		r.Type = model.QuestionType(value)
	case "min_score":
		if value != "" {
			r.MinScore, err = strconv.ParseFloat(value, 64)
		}
	case "max_score":
		if value != "" {
			r.MaxScore, err = strconv.ParseFloat(value, 64)
		}
	case "required":
		r.Required = value != "" && value != "0"
	case "options":
		r.Options = ParseOptions(value)
	}
	if err != nil {
		return errors.Errorf("invalid %s %q", field, value)
	}
	return nil
}

// ParseOptions reads one option per line, as "Label = value" or just
// "Label", in which case the value is the option's position.
func ParseOptions(text string) []model.QuestionOption {
	var opts []model.QuestionOption
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, value, ok := strings.Cut(line, "=")
		label, value = strings.TrimSpace(label), strings.TrimSpace(value)
		if !ok || value == "" {
			value = strconv.Itoa(len(opts) + 1)
		}
		opts = append(opts, model.QuestionOption{Label: label, Value: value})
	}
	return opts
}

func FormatOptions(opts []model.QuestionOption) string {
	lines := make([]string, len(opts))
	for i, o := range opts {
		lines[i] = o.Label + " = " + o.Value
	}
	return strings.Join(lines, "\n")
}
