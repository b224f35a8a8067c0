package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Models      []Model     `yaml:"models"`
	API         API         `yaml:"api"`
	Experiment  Experiment  `yaml:"experiment"`
	Definitions Definitions `yaml:"definitions"`
	Sandbox     Sandbox     `yaml:"sandbox"`
	Secrets     Secrets     `yaml:"secrets"`
	Results     Results     `yaml:"results"`
	Pricing     string      `yaml:"pricing"`
}

type Model struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"`
	// APIURL overrides API.URL for this model.
	APIURL string `yaml:"api_url"`
	// APIKeyEnv names the environment variable holding the key (openai only).
	APIKeyEnv string `yaml:"api_key_env"`
}

type API struct {
	URL               string  `yaml:"url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type Experiment struct {
	TestCases   []string `yaml:"test_cases"`
	Lang        string   `yaml:"lang"`
	SpecLang    string   `yaml:"spec_lang"`
	PromptStyle string   `yaml:"prompt_style"`
	Mode        string   `yaml:"mode"`
	MaxCycles   int      `yaml:"max_cycles"`
	Repetitions int      `yaml:"repetitions"`
	SpecCheck   string   `yaml:"spec_check"`
}

type Definitions struct {
	Dir        string `yaml:"dir"`
	PromptsDir string `yaml:"prompts_dir"`
	SourceLang string `yaml:"source_lang"`
	// Repo and Tag, when set, fetch the definitions from git; Dir and
	// PromptsDir are then resolved inside the checkout.
	Repo string `yaml:"repo"`
	Tag  string `yaml:"tag"`
}

type Sandbox struct {
	Kind           string   `yaml:"kind"`
	Interpreter    []string `yaml:"interpreter"`
	Image          string   `yaml:"image"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	CPULimit       float64  `yaml:"cpu_limit"`
	MemoryMB       int64    `yaml:"memory_mb"`
	TempDir        string   `yaml:"temp_dir"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate applies defaults and checks cfg. Load calls it; callers that
// modify a loaded config (CLI overrides) call it again.
func Validate(cfg *Config) error {
	return validate(cfg)
}

func validate(cfg *Config) error {
	if len(cfg.Models) == 0 {
		return fmt.Errorf("no models defined")
	}
	for i := range cfg.Models {
		m := &cfg.Models[i]
		if m.Name == "" {
			return fmt.Errorf("model %d: name is required", i)
		}
		if m.Provider == "" {
			m.Provider = "ollama"
		}
		switch m.Provider {
		case "ollama":
		case "openai":
			if m.APIKeyEnv == "" {
				m.APIKeyEnv = "OPENAI_API_KEY"
			}
		default:
			return fmt.Errorf("model %q: unknown provider %q", m.Name, m.Provider)
		}
		if m.APIURL == "" && cfg.API.URL == "" && m.Provider == "ollama" {
			return fmt.Errorf("model %q: api url is required", m.Name)
		}
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 60
	}

	e := &cfg.Experiment
	if e.Lang == "" {
		e.Lang = "en"
	}
	if e.SpecLang == "" {
		return fmt.Errorf("experiment: spec_lang is required")
	}
	if e.PromptStyle == "" {
		return fmt.Errorf("experiment: prompt_style is required")
	}
	switch e.Mode {
	case "":
		e.Mode = "forgiving"
	case "forgiving", "strict":
	default:
		return fmt.Errorf("experiment: mode must be strict or forgiving, got %q", e.Mode)
	}
	switch e.SpecCheck {
	case "":
		e.SpecCheck = "off"
	case "off", "exact":
	default:
		return fmt.Errorf("experiment: spec_check must be off or exact, got %q", e.SpecCheck)
	}
	if e.MaxCycles == 0 {
		e.MaxCycles = 10
	}
	if e.MaxCycles < 1 {
		return fmt.Errorf("experiment: max_cycles must be at least 1")
	}
	if e.Repetitions == 0 {
		e.Repetitions = 1
	}
	if e.Repetitions < 1 {
		return fmt.Errorf("experiment: repetitions must be at least 1")
	}

	d := &cfg.Definitions
	if d.Dir == "" {
		d.Dir = "01_TestDefinitions"
	}
	if d.PromptsDir == "" {
		d.PromptsDir = "02_Prompts"
	}
	if d.SourceLang == "" {
		d.SourceLang = "python"
	}
	if d.Repo != "" && d.Tag == "" {
		return fmt.Errorf("definitions: tag is required when repo is set")
	}

	s := &cfg.Sandbox
	switch s.Kind {
	case "":
		s.Kind = "local"
	case "local":
	case "docker":
		if s.Image == "" {
			s.Image = "python:3.12-slim"
		}
	default:
		return fmt.Errorf("sandbox: kind must be local or docker, got %q", s.Kind)
	}
	if len(s.Interpreter) == 0 {
		s.Interpreter = []string{"python3"}
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = 10
	}

	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	return nil
}
