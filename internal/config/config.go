package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mpart-uis/grant-scout/internal/match"
)

// Thresholds are the three score cut-offs of the pipeline. DeepAnalysis
// drives the matching adapter's depth decision, Escalation drives the
// discovery pipeline's advisory flag, Alert drives immediate email
// notification.
type Thresholds struct {
	DeepAnalysis int `yaml:"deep_analysis" validate:"min=0,max=100"`
	Escalation   int `yaml:"escalation" validate:"min=0,max=100"`
	Alert        int `yaml:"alert" validate:"min=0,max=100"`
}

// SMTPSettings configure the digest/alert sender. Password is normally
// supplied via ${SMTP_PASSWORD} expansion in the YAML file.
type SMTPSettings struct {
	Enabled    bool     `yaml:"enabled"`
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	Sender     string   `yaml:"sender"`
	Recipients []string `yaml:"recipients"`
}

// SourceToggles enable or disable individual discovery sources without
// touching the source registry.
type SourceToggles struct {
	IllinoisGATA bool `yaml:"illinois_gata"`
	GrantsGov    bool `yaml:"grants_gov"`
}

// Settings is the service configuration: defaults in code, optional YAML
// file on top, environment expansion inside the file.
type Settings struct {
	Organization string `yaml:"organization" validate:"required"`

	Thresholds Thresholds    `yaml:"thresholds"`
	Sources    SourceToggles `yaml:"sources"`
	SMTP       SMTPSettings  `yaml:"smtp"`

	// KeywordWeights overrides or extends the default scorer table.
	// Recalibrating weights is a data change, not a code change.
	KeywordWeights map[string]int `yaml:"keyword_weights"`

	// DiscoverySchedule is a cron expression for scheduled runs; empty
	// disables the scheduler.
	DiscoverySchedule string `yaml:"discovery_schedule"`

	ExportDir string `yaml:"export_dir"`
}

var validate = validator.New()

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Organization: "MPART @ UIS",
		Thresholds: Thresholds{
			DeepAnalysis: match.DefaultDeepAnalysisThreshold,
			Escalation:   80,
			Alert:        95,
		},
		Sources: SourceToggles{
			IllinoisGATA: true,
			GrantsGov:    true,
		},
		SMTP: SMTPSettings{
			Port: 587,
		},
		DiscoverySchedule: "0 6 * * *",
		ExportDir:         "exports",
	}
}

// Load returns the defaults overlaid with the YAML file at path, if it
// exists. Environment variables inside the file (e.g. ${SMTP_PASSWORD})
// are expanded before parsing.
func Load(path string) (*Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else {
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), s); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}

// ScorerWeights resolves the effective keyword table: the default table
// with per-phrase weight overrides applied in place, plus any new
// phrases appended in sorted order so the table stays deterministic.
func (s *Settings) ScorerWeights() []match.KeywordWeight {
	weights := make([]match.KeywordWeight, len(match.DefaultKeywordWeights))
	copy(weights, match.DefaultKeywordWeights)

	if len(s.KeywordWeights) == 0 {
		return weights
	}

	seen := make(map[string]bool, len(weights))
	for i := range weights {
		seen[weights[i].Phrase] = true
		if w, ok := s.KeywordWeights[weights[i].Phrase]; ok {
			weights[i].Weight = w
		}
	}

	var extra []string
	for phrase := range s.KeywordWeights {
		if !seen[phrase] {
			extra = append(extra, phrase)
		}
	}
	sort.Strings(extra)
	for _, phrase := range extra {
		weights = append(weights, match.KeywordWeight{Phrase: phrase, Weight: s.KeywordWeights[phrase]})
	}

	return weights
}
