package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"attestbot/core/config"
	"attestbot/core/logger"
	"log/slog"
)

// DataError reports malformed or missing question/reference data. It is
// scoped to one specialization (or reference file) and never fatal to the
// process.
type DataError struct {
	Spec string
	Path string
	Err  error
}

func (e *DataError) Error() string {
	if e.Spec != "" {
		return fmt.Sprintf("question data for %s (%s): %v", e.Spec, e.Path, e.Err)
	}
	return fmt.Sprintf("reference data %s: %v", e.Path, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// Code returns the stable error code used in logs.
func (e *DataError) Code() string { return "DATA_ERROR" }

// Bank serves immutable question sets per specialization plus the closed
// enumerations used for registration. Safe for concurrent reads.
type Bank struct {
	order       []string
	specs       map[string]*Specialization
	positions   []string
	departments []string
}

// questionFile is the JSON contract of one question object.
type questionFile struct {
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	CorrectAnswers []int    `json:"correct_answers"`
	Difficulty     string   `json:"difficulty,omitempty"`
}

// Load builds the bank from the configured data directory. A specialization
// whose file fails validation is marked unavailable and logged; the rest of
// the bank keeps working. Reference data failures are returned: without the
// position and department enumerations no user can register.
func Load(cfg config.QuizConfig) (*Bank, error) {
	positions, err := loadStringList(filepath.Join(cfg.DataDir, cfg.PositionsFile))
	if err != nil {
		return nil, err
	}
	departments, err := loadStringList(filepath.Join(cfg.DataDir, cfg.DepartmentsFile))
	if err != nil {
		return nil, err
	}

	b := &Bank{
		specs:       make(map[string]*Specialization, len(cfg.Specializations)),
		positions:   positions,
		departments: departments,
	}

	questionsDir := filepath.Join(cfg.DataDir, "questions")
	available := 0
	for _, sc := range cfg.Specializations {
		path := filepath.Join(questionsDir, sc.QuestionsFile)
		sp := &Specialization{
			ID:           sc.ID,
			Name:         sc.Name,
			Difficulty:   sc.Difficulty,
			QuestionTime: time.Duration(sc.SecondsPerQuestion) * time.Second,
		}
		b.order = append(b.order, sc.ID)
		b.specs[sc.ID] = sp

		set, loadErr := loadQuestionSet(sc.ID, path)
		if loadErr != nil {
			logger.Warn(context.Background(), "bank", "bank.load",
				slog.String("status", "skip"),
				slog.String("spec", sc.ID),
				slog.String("err", loadErr.Error()),
			)
			continue
		}

		sp.Questions = set
		sp.Available = true
		sp.SessionTime = time.Duration(sc.SessionSeconds) * time.Second
		if sp.SessionTime <= 0 {
			sp.SessionTime = sp.QuestionTime * time.Duration(len(set))
		}
		available++
		logger.Info(context.Background(), "bank", "bank.load",
			slog.String("status", "ok"),
			slog.String("spec", sc.ID),
			slog.Int("questions", len(set)),
		)
	}

	if available == 0 {
		return nil, fmt.Errorf("question bank: no specialization loaded successfully")
	}
	logger.Info(context.Background(), "bank", "bank.ready",
		slog.Int("count", available),
		slog.Int("total", len(cfg.Specializations)),
	)
	return b, nil
}

func loadQuestionSet(spec, path string) (QuestionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DataError{Spec: spec, Path: path, Err: err}
	}
	var raw []questionFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DataError{Spec: spec, Path: path, Err: fmt.Errorf("malformed JSON: %w", err)}
	}
	if len(raw) == 0 {
		return nil, &DataError{Spec: spec, Path: path, Err: fmt.Errorf("empty question set")}
	}

	set := make(QuestionSet, 0, len(raw))
	for i, q := range raw {
		if err := validateQuestion(q); err != nil {
			return nil, &DataError{Spec: spec, Path: path, Err: fmt.Errorf("question %d: %w", i+1, err)}
		}
		correct := normalizeIndices(q.CorrectAnswers)
		set = append(set, Question{
			Text:       q.Question,
			Options:    q.Options,
			Correct:    correct,
			Difficulty: q.Difficulty,
		})
	}
	return set, nil
}

func validateQuestion(q questionFile) error {
	if strings.TrimSpace(q.Question) == "" {
		return fmt.Errorf("missing question text")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("requires at least 2 options, got %d", len(q.Options))
	}
	if len(q.CorrectAnswers) == 0 {
		return fmt.Errorf("missing correct_answers")
	}
	for _, idx := range q.CorrectAnswers {
		if idx < 0 || idx >= len(q.Options) {
			return fmt.Errorf("correct answer index %d out of range [0,%d)", idx, len(q.Options))
		}
	}
	return nil
}

func loadStringList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DataError{Path: path, Err: err}
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, &DataError{Path: path, Err: fmt.Errorf("malformed JSON: %w", err)}
	}
	out := values[:0]
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil, &DataError{Path: path, Err: fmt.Errorf("empty list")}
	}
	return out, nil
}

// Get returns the specialization by id. Unknown or unavailable ids yield a
// DataError.
func (b *Bank) Get(id string) (*Specialization, error) {
	sp, ok := b.specs[id]
	if !ok {
		return nil, &DataError{Spec: id, Err: fmt.Errorf("unknown specialization")}
	}
	if !sp.Available {
		return nil, &DataError{Spec: id, Err: fmt.Errorf("specialization unavailable")}
	}
	return sp, nil
}

// ListSpecializations returns the available specializations in registry order.
func (b *Bank) ListSpecializations() []*Specialization {
	out := make([]*Specialization, 0, len(b.order))
	for _, id := range b.order {
		if sp := b.specs[id]; sp.Available {
			out = append(out, sp)
		}
	}
	return out
}

// Positions returns the closed position enumeration.
func (b *Bank) Positions() []string { return b.positions }

// Departments returns the closed department enumeration.
func (b *Bank) Departments() []string { return b.departments }

// HasPosition reports membership in the position enumeration.
func (b *Bank) HasPosition(p string) bool { return contains(b.positions, p) }

// HasDepartment reports membership in the department enumeration.
func (b *Bank) HasDepartment(d string) bool { return contains(b.departments, d) }

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
