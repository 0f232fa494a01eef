package sources

import (
	"embed"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mpart-uis/grant-scout/internal/models"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the configuration for all discovery sources.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// FetchConfig defines HTTP fetching behavior for a source.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // default 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // default 3
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // default 1.0
}

// SelectorConfig maps listing-page CSS selectors for HTML sources.
type SelectorConfig struct {
	Container   string `yaml:"container,omitempty"`
	Title       string `yaml:"title,omitempty"`
	Link        string `yaml:"link,omitempty"`
	Agency      string `yaml:"agency,omitempty"`
	Deadline    string `yaml:"deadline,omitempty"`
	Description string `yaml:"description,omitempty"`
	Attachment  string `yaml:"attachment,omitempty"` // NOFO PDF link, optional
}

// SourceConfig defines a single discovery source.
type SourceConfig struct {
	ID       string               `yaml:"id"`
	Name     string               `yaml:"name"`
	Origin   models.FundingSource `yaml:"origin"`
	Strategy string               `yaml:"strategy"` // "html_listing", "api_grants_gov"
	BaseURL  string               `yaml:"base_url,omitempty"`
	Keywords []string             `yaml:"keywords,omitempty"`
	Enabled  bool                 `yaml:"enabled"`

	Fetch     FetchConfig    `yaml:"fetch,omitempty"`
	Selectors SelectorConfig `yaml:"selectors,omitempty"`
}

// LoadRegistry reads the embedded sources.yaml, falling back to the
// filesystem path for local development. Environment variables inside
// the YAML (e.g. ${GATA_BASE_URL}) are expanded first.
func LoadRegistry(path string) (*Registry, error) {
	data, err := sourcesYAML.ReadFile("config/sources.yaml")
	if err != nil {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Get returns the config for a source ID.
func (r *Registry) Get(id string) (*SourceConfig, bool) {
	for i := range r.Sources {
		if r.Sources[i].ID == id {
			return &r.Sources[i], true
		}
	}
	return nil, false
}
