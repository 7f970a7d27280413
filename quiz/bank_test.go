package quiz

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestbot/core/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func bankFixture(t *testing.T) (string, config.QuizConfig) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "positions.json"), `["inspector","senior inspector"]`)
	writeFile(t, filepath.Join(dir, "departments.json"), `["north","south"]`)
	cfg := config.QuizConfig{
		DataDir:         dir,
		PositionsFile:   "positions.json",
		DepartmentsFile: "departments.json",
	}
	return dir, cfg
}

const validQuestions = `[
  {"question": "2+2?", "options": ["3", "4"], "correct_answers": [1]},
  {"question": "pick two", "options": ["a", "b", "c"], "correct_answers": [0, 2], "difficulty": "hard"}
]`

func TestLoadValidSpecialization(t *testing.T) {
	dir, cfg := bankFixture(t)
	writeFile(t, filepath.Join(dir, "questions", "enforcement.json"), validQuestions)
	cfg.Specializations = []config.SpecializationConfig{{
		ID: "enforcement", Name: "Enforcement", QuestionsFile: "enforcement.json",
		SecondsPerQuestion: 30,
	}}

	bank, err := Load(cfg)
	require.NoError(t, err)

	sp, err := bank.Get("enforcement")
	require.NoError(t, err)
	assert.True(t, sp.Available)
	assert.Len(t, sp.Questions, 2)
	assert.Equal(t, 30*time.Second, sp.QuestionTime)
	// session time defaults to the sum of per-question limits
	assert.Equal(t, 60*time.Second, sp.SessionTime)
	assert.Equal(t, []int{0, 2}, sp.Questions[1].Correct)

	for _, q := range sp.Questions {
		assert.GreaterOrEqual(t, len(q.Options), 2)
		assert.NotEmpty(t, q.Correct)
		for _, idx := range q.Correct {
			assert.GreaterOrEqual(t, idx, 0)
			assert.Less(t, idx, len(q.Options))
		}
	}
}

func TestLoadBadSpecializationDegradesGracefully(t *testing.T) {
	dir, cfg := bankFixture(t)
	writeFile(t, filepath.Join(dir, "questions", "good.json"), validQuestions)
	writeFile(t, filepath.Join(dir, "questions", "bad.json"), `[{"question": "x", "options": ["only one"], "correct_answers": [0]}]`)
	cfg.Specializations = []config.SpecializationConfig{
		{ID: "good", Name: "Good", QuestionsFile: "good.json", SecondsPerQuestion: 60},
		{ID: "bad", Name: "Bad", QuestionsFile: "bad.json", SecondsPerQuestion: 60},
		{ID: "missing", Name: "Missing", QuestionsFile: "missing.json", SecondsPerQuestion: 60},
	}

	bank, err := Load(cfg)
	require.NoError(t, err, "one bad file must not fail the whole bank")

	list := bank.ListSpecializations()
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].ID)

	_, err = bank.Get("bad")
	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, "bad", dataErr.Spec)

	_, err = bank.Get("missing")
	assert.Error(t, err)
}

func TestLoadRejectsMalformedQuestions(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"oops"`,
		"empty set":         `[]`,
		"missing text":      `[{"options": ["a", "b"], "correct_answers": [0]}]`,
		"missing correct":   `[{"question": "x", "options": ["a", "b"]}]`,
		"index out of range": `[{"question": "x", "options": ["a", "b"], "correct_answers": [2]}]`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir, cfg := bankFixture(t)
			writeFile(t, filepath.Join(dir, "questions", "spec.json"), content)
			cfg.Specializations = []config.SpecializationConfig{
				{ID: "spec", QuestionsFile: "spec.json", SecondsPerQuestion: 60},
			}
			_, err := Load(cfg)
			require.Error(t, err, "bank with zero available specializations must fail")
		})
	}
}

func TestLoadFailsOnMissingReferenceData(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "questions", "spec.json"), validQuestions)
	cfg := config.QuizConfig{
		DataDir:         dir,
		PositionsFile:   "positions.json",
		DepartmentsFile: "departments.json",
		Specializations: []config.SpecializationConfig{
			{ID: "spec", QuestionsFile: "spec.json", SecondsPerQuestion: 60},
		},
	}

	_, err := Load(cfg)
	var dataErr *DataError
	require.True(t, errors.As(err, &dataErr))
}

func TestReferenceEnumerations(t *testing.T) {
	dir, cfg := bankFixture(t)
	writeFile(t, filepath.Join(dir, "questions", "spec.json"), validQuestions)
	cfg.Specializations = []config.SpecializationConfig{
		{ID: "spec", QuestionsFile: "spec.json", SecondsPerQuestion: 60},
	}

	bank, err := Load(cfg)
	require.NoError(t, err)

	assert.True(t, bank.HasPosition("inspector"))
	assert.False(t, bank.HasPosition("intern"))
	assert.True(t, bank.HasDepartment("north"))
	assert.False(t, bank.HasDepartment("west"))
	assert.Equal(t, []string{"inspector", "senior inspector"}, bank.Positions())
	assert.Equal(t, []string{"north", "south"}, bank.Departments())
}
