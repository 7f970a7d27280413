package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coredatabase "attestbot/core/database"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// AntiSpamConfig bounds per-user action throughput. A user exceeding
// MaxActions within WindowSeconds is rejected until the window rolls over.
type AntiSpamConfig struct {
	WindowSeconds int `yaml:"window_seconds" envconfig:"ANTISPAM_WINDOW_SECONDS"`
	MaxActions    int `yaml:"max_actions" envconfig:"ANTISPAM_MAX_ACTIONS"`
}

// GradeBucket is one step of the grading scale: every percentage at or above
// MinPercent (up to the next bucket) maps to Label.
type GradeBucket struct {
	MinPercent int    `yaml:"min_percent"`
	Label      string `yaml:"label"`
}

// SpecializationConfig registers one test track.
type SpecializationConfig struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	QuestionsFile string `yaml:"questions_file"`
	Difficulty    string `yaml:"difficulty"`
	// SecondsPerQuestion is the per-question deadline; 0 -> default (60).
	SecondsPerQuestion int `yaml:"seconds_per_question"`
	// SessionSeconds caps the whole test; 0 -> sum of per-question limits.
	SessionSeconds int `yaml:"session_seconds"`
}

const (
	// ZeroAnswerGrade grades a session timeout with no answers as 0%.
	ZeroAnswerGrade = "grade"
	// ZeroAnswerAbandon marks a session timeout with no answers as abandoned.
	ZeroAnswerAbandon = "abandon"
)

// QuizConfig describes the question bank, reference data and grading scale.
type QuizConfig struct {
	DataDir          string                 `yaml:"data_dir" envconfig:"QUIZ_DATA_DIR"`
	PositionsFile    string                 `yaml:"positions_file"`
	DepartmentsFile  string                 `yaml:"departments_file"`
	ZeroAnswerPolicy string                 `yaml:"zero_answer_policy" envconfig:"QUIZ_ZERO_ANSWER_POLICY"`
	GradingScale     []GradeBucket          `yaml:"grading_scale"`
	Specializations  []SpecializationConfig `yaml:"specializations"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const defaultSecondsPerQuestion = 60

// Config aggregates the full application configuration.
type Config struct {
	Telegram TelegramConfig      `yaml:"telegram"`
	Webhook  WebhookConfig       `yaml:"webhook"`
	Logging  LoggingConfig       `yaml:"logging"`
	Database coredatabase.Config `yaml:"database"`
	AntiSpam AntiSpamConfig      `yaml:"antispam"`
	Quiz     QuizConfig          `yaml:"quiz"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs eager validation of configuration and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if cfg.AntiSpam.WindowSeconds <= 0 {
		cfg.AntiSpam.WindowSeconds = 10
	}
	if cfg.AntiSpam.MaxActions <= 0 {
		cfg.AntiSpam.MaxActions = 5
	}

	return normalizeQuiz(&cfg.Quiz)
}

func normalizeQuiz(q *QuizConfig) error {
	if strings.TrimSpace(q.DataDir) == "" {
		q.DataDir = "data"
	}
	if strings.TrimSpace(q.PositionsFile) == "" {
		q.PositionsFile = "positions.json"
	}
	if strings.TrimSpace(q.DepartmentsFile) == "" {
		q.DepartmentsFile = "departments.json"
	}

	policy := strings.ToLower(strings.TrimSpace(q.ZeroAnswerPolicy))
	if policy == "" {
		policy = ZeroAnswerAbandon
	}
	if policy != ZeroAnswerGrade && policy != ZeroAnswerAbandon {
		return fmt.Errorf("invalid quiz.zero_answer_policy %q; allowed: grade, abandon", q.ZeroAnswerPolicy)
	}
	q.ZeroAnswerPolicy = policy

	if err := ValidateScale(q.GradingScale); err != nil {
		return err
	}

	if len(q.Specializations) == 0 {
		return fmt.Errorf("quiz.specializations must not be empty")
	}
	seen := make(map[string]struct{}, len(q.Specializations))
	for i := range q.Specializations {
		sp := &q.Specializations[i]
		sp.ID = strings.TrimSpace(sp.ID)
		if sp.ID == "" {
			return fmt.Errorf("quiz.specializations[%d]: id is required", i)
		}
		if _, dup := seen[sp.ID]; dup {
			return fmt.Errorf("quiz.specializations: duplicate id %q", sp.ID)
		}
		seen[sp.ID] = struct{}{}
		if strings.TrimSpace(sp.Name) == "" {
			sp.Name = sp.ID
		}
		if strings.TrimSpace(sp.QuestionsFile) == "" {
			sp.QuestionsFile = sp.ID + ".json"
		}
		if sp.SecondsPerQuestion <= 0 {
			sp.SecondsPerQuestion = defaultSecondsPerQuestion
		}
		if sp.SessionSeconds < 0 {
			return fmt.Errorf("quiz.specializations[%s]: session_seconds must be >= 0", sp.ID)
		}
	}
	return nil
}

// ValidateScale ensures grading buckets are total over [0,100]: the first
// bucket starts at 0 and minimums strictly increase.
func ValidateScale(scale []GradeBucket) error {
	if len(scale) == 0 {
		return fmt.Errorf("quiz.grading_scale must not be empty")
	}
	prev := -1
	for i, b := range scale {
		if b.MinPercent < 0 || b.MinPercent > 100 {
			return fmt.Errorf("quiz.grading_scale[%d]: min_percent %d out of range [0,100]", i, b.MinPercent)
		}
		if i == 0 && b.MinPercent != 0 {
			return fmt.Errorf("quiz.grading_scale must start at min_percent 0")
		}
		if b.MinPercent <= prev {
			return fmt.Errorf("quiz.grading_scale[%d]: min_percent %d must be greater than %d", i, b.MinPercent, prev)
		}
		if strings.TrimSpace(b.Label) == "" {
			return fmt.Errorf("quiz.grading_scale[%d]: label is required", i)
		}
		prev = b.MinPercent
	}
	return nil
}
