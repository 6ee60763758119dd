package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models titra.yml: the daily event template the titration schedule is
// generated from. The schedule shape (phase length, evening triplet, dosage
// steps) is data here so a clinician can adjust times without a rebuild.
type Config struct {
	Profile struct {
		NameKey   string `yaml:"name_key"`
		PhaseDays int    `yaml:"phase_days"`
	} `yaml:"profile"`
	Template struct {
		// Base is the standard day, present from phase 1.
		Base []TemplateEvent `yaml:"base"`
		// Evening joins the day from phase 2 onward.
		Evening []TemplateEvent `yaml:"evening"`
		// DosageSteps apply cumulatively, one per phase starting at phase 3:
		// the event at the given time gets the new description key.
		DosageSteps []DosageStep `yaml:"dosage_steps"`
	} `yaml:"template"`
}

type TemplateEvent struct {
	Time           string `yaml:"time"`
	Type           string `yaml:"type"`
	TitleKey       string `yaml:"title_key"`
	DescriptionKey string `yaml:"description_key"`
}

type DosageStep struct {
	Time           string `yaml:"time"`
	DescriptionKey string `yaml:"description_key"`
}

// Clock parses the HH:MM wall-clock slot of a template event.
func (e TemplateEvent) Clock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", e.Time)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid template time %q: %w", e.Time, err)
	}
	return t.Hour(), t.Minute(), nil
}

var validTypes = map[string]bool{
	"medication":     true,
	"blood_pressure": true,
	"meal":           true,
	"exercise":       true,
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Profile.NameKey == "" {
		return fmt.Errorf("config.profile.name_key is required")
	}
	if c.Profile.PhaseDays <= 0 {
		return fmt.Errorf("config.profile.phase_days must be positive")
	}
	if len(c.Template.Base) == 0 {
		return fmt.Errorf("config.template.base is required")
	}
	times := map[string]bool{}
	for _, group := range [][]TemplateEvent{c.Template.Base, c.Template.Evening} {
		for _, ev := range group {
			if _, _, err := ev.Clock(); err != nil {
				return err
			}
			if !validTypes[ev.Type] {
				return fmt.Errorf("template event %s has unknown type %q", ev.Time, ev.Type)
			}
			if ev.TitleKey == "" {
				return fmt.Errorf("template event %s has empty title_key", ev.Time)
			}
			times[ev.Time] = true
		}
	}
	for _, step := range c.Template.DosageSteps {
		if step.DescriptionKey == "" {
			return fmt.Errorf("dosage step %s has empty description_key", step.Time)
		}
		if !times[step.Time] {
			return fmt.Errorf("dosage step %s does not match any template event", step.Time)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "titra.yml")
}

// Load reads the workspace config, falling back to the built-in template when
// the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in low-dosage Madopar template.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// GenerateDefault returns the default config YAML for `titra config init`.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `profile:
  name_key: MEDICATION_PROFILE_LOW_DOSAGE
  phase_days: 14

template:
  base:
    - time: "08:00"
      type: medication
      title_key: MEDICATION_NAME_MADOPAR
      description_key: DOSAGE_ONE_QUARTER_TABLET
    - time: "08:05"
      type: blood_pressure
      title_key: ACTIVITY_BLOOD_PRESSURE
      description_key: ACTIVITY_TAKE_BLOOD_PRESSURE
    - time: "08:30"
      type: meal
      title_key: MEAL_BREAKFAST
      description_key: MEAL_BREAKFAST
    - time: "09:00"
      type: exercise
      title_key: ACTIVITY_EXERCISE
      description_key: ACTIVITY_30_MINUTES
    - time: "12:00"
      type: medication
      title_key: MEDICATION_NAME_MADOPAR
      description_key: DOSAGE_ONE_QUARTER_TABLET
    - time: "12:05"
      type: blood_pressure
      title_key: ACTIVITY_BLOOD_PRESSURE
      description_key: ACTIVITY_TAKE_BLOOD_PRESSURE
    - time: "12:30"
      type: meal
      title_key: MEAL_LUNCH
      description_key: MEAL_LUNCH

  evening:
    - time: "17:00"
      type: medication
      title_key: MEDICATION_NAME_MADOPAR
      description_key: DOSAGE_ONE_QUARTER_TABLET
    - time: "17:05"
      type: blood_pressure
      title_key: ACTIVITY_BLOOD_PRESSURE
      description_key: ACTIVITY_TAKE_BLOOD_PRESSURE
    - time: "17:30"
      type: meal
      title_key: MEAL_DINNER
      description_key: MEAL_DINNER

  dosage_steps:
    - time: "08:00"
      description_key: DOSAGE_ONE_HALF_TABLET
    - time: "12:00"
      description_key: DOSAGE_ONE_HALF_TABLET
    - time: "17:00"
      description_key: DOSAGE_ONE_HALF_TABLET
`
