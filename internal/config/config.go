package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dyluth/nroy/internal/design"
	"github.com/dyluth/nroy/internal/emulator"
	"github.com/dyluth/nroy/internal/history"
	"github.com/dyluth/nroy/internal/storage"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the campaign configuration file name looked up by the CLI.
const DefaultFile = "campaign.yml"

// Simulator drivers.
const (
	DriverExec   = "exec"
	DriverDocker = "docker"
)

const (
	DefaultTrainingPoints = 20
	DefaultQueryPoints    = 1000
	DefaultMaxAttempts    = 3
	DefaultConcurrency    = 1
	DefaultTimeout        = 30 * time.Minute
	DefaultWorkDir        = "runs"

	// MaxNameLength is the maximum length for a campaign name (DNS-compatible)
	MaxNameLength = 63
)

// NamePattern is the regex pattern for valid campaign names.
// Must be DNS-compatible: lowercase alphanumeric, hyphens allowed (but not at start/end)
var NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// CampaignConfig represents the top-level campaign.yml configuration
type CampaignConfig struct {
	Version         string                `yaml:"version"`
	Name            string                `yaml:"name"`
	Parameters      []Parameter           `yaml:"parameters"`
	Design          DesignConfig          `yaml:"design"`
	Simulator       SimulatorConfig       `yaml:"simulator"`
	Emulator        emulator.FitConfig    `yaml:"emulator"`
	HistoryMatching HistoryMatchingConfig `yaml:"history_matching"`
	Storage         storage.Config        `yaml:"storage"`
	MetricsAddr     string                `yaml:"metrics_addr,omitempty"`
}

// Parameter is one uncertain input of the simulator.
type Parameter struct {
	Name  string  `yaml:"name"`
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// DesignConfig controls the Latin hypercube draws.
type DesignConfig struct {
	TrainingPoints int    `yaml:"training_points"`
	Seed           uint64 `yaml:"seed"` // 0 = non-deterministic
	QueryPoints    int    `yaml:"query_points"`
	// QuerySeed, when non-zero, draws the query points from a reseeded copy
	// of the design instead of continuing the persisted generator.
	QuerySeed uint64 `yaml:"query_seed,omitempty"`
}

// SimulatorConfig selects and configures the simulation driver.
type SimulatorConfig struct {
	Driver string `yaml:"driver"` // "exec" or "docker"
	// Command is the argv of the exec driver, or the container command
	// override of the docker driver.
	Command []string `yaml:"command"`

	// Docker driver only.
	Image   string `yaml:"image,omitempty"`
	Network string `yaml:"network,omitempty"`
	Pull    bool   `yaml:"pull,omitempty"`

	Environment []string      `yaml:"environment,omitempty"`
	WorkDir     string        `yaml:"work_dir,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
	Backoff     time.Duration `yaml:"backoff,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
}

// HistoryMatchingConfig holds the observation the campaign is matched against.
type HistoryMatchingConfig struct {
	Observed            *float64 `yaml:"observed,omitempty"`
	ObservationVariance float64  `yaml:"observation_variance,omitempty"`
	DiscrepancyVariance float64  `yaml:"discrepancy_variance,omitempty"`
	// Threshold defaults to history.DefaultThreshold when unset. Zero is
	// valid and keeps only exact matches.
	Threshold *float64 `yaml:"threshold,omitempty"`
	// ReferenceRun obtains the observed value by simulating one extra design
	// point when Observed is not given.
	ReferenceRun bool `yaml:"reference_run,omitempty"`
}

// ValidateName checks if a campaign name is valid according to DNS naming rules.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("campaign name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("campaign name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid campaign name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}

// ParameterSpace converts the parameters into a design.ParameterSpace.
func (c *CampaignConfig) ParameterSpace() design.ParameterSpace {
	space := design.ParameterSpace{
		Bounds: make([]design.Bound, len(c.Parameters)),
		Names:  make([]string, len(c.Parameters)),
	}
	for i, p := range c.Parameters {
		space.Bounds[i] = design.Bound{Lower: p.Lower, Upper: p.Upper}
		space.Names[i] = p.Name
	}
	return space
}

// Validate performs strict validation on the configuration and applies
// defaults for omitted optional fields.
func (c *CampaignConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := ValidateName(c.Name); err != nil {
		return err
	}

	if err := c.validateParameters(); err != nil {
		return err
	}
	if err := c.Design.validate(len(c.Parameters)); err != nil {
		return err
	}
	if err := c.Simulator.validate(); err != nil {
		return err
	}

	c.Emulator = c.Emulator.WithDefaults()
	if err := c.Emulator.Validate(); err != nil {
		return fmt.Errorf("emulator: %w", err)
	}

	if err := c.HistoryMatching.validate(); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case "":
		c.Storage.Backend = storage.BackendFilesystem
	case storage.BackendMemory, storage.BackendFilesystem:
	case storage.BackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage: redis_url is required for the redis backend")
		}
	case storage.BackendMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("storage: minio.endpoint and minio.bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("storage: unknown backend '%s' (must be 'memory', 'filesystem', 'redis' or 'minio')", c.Storage.Backend)
	}
	if c.Storage.Backend == storage.BackendFilesystem && c.Storage.Path == "" {
		c.Storage.Path = ".nroy"
	}

	return nil
}

// ResolvePaths makes the relative filesystem paths of the configuration
// (storage.path and simulator.work_dir) relative to base, normally the
// directory holding campaign.yml.
func (c *CampaignConfig) ResolvePaths(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Storage.Path = resolve(c.Storage.Path)
	c.Simulator.WorkDir = resolve(c.Simulator.WorkDir)
}

func (c *CampaignConfig) validateParameters() error {
	if len(c.Parameters) == 0 {
		return fmt.Errorf("no parameters defined")
	}

	seen := make(map[string]int)
	for i, p := range c.Parameters {
		if p.Name == "" {
			return fmt.Errorf("parameter %d: name is required", i)
		}
		if prev, exists := seen[p.Name]; exists {
			return fmt.Errorf("duplicate parameter name '%s' (parameters %d and %d)", p.Name, prev, i)
		}
		seen[p.Name] = i
	}

	if err := c.ParameterSpace().Validate(); err != nil {
		return fmt.Errorf("parameters: %w", err)
	}
	return nil
}

func (d *DesignConfig) validate(dim int) error {
	if d.TrainingPoints == 0 {
		d.TrainingPoints = DefaultTrainingPoints
	}
	if d.TrainingPoints < dim+1 {
		return fmt.Errorf("design.training_points must be at least %d (parameters + 1), got %d", dim+1, d.TrainingPoints)
	}

	if d.QueryPoints == 0 {
		d.QueryPoints = DefaultQueryPoints
	}
	if d.QueryPoints < 1 {
		return fmt.Errorf("design.query_points must be >= 1, got %d", d.QueryPoints)
	}
	return nil
}

func (s *SimulatorConfig) validate() error {
	switch s.Driver {
	case DriverExec:
		if len(s.Command) == 0 {
			return fmt.Errorf("simulator: command is required for the exec driver")
		}
	case DriverDocker:
		if s.Image == "" {
			return fmt.Errorf("simulator: image is required for the docker driver")
		}
	case "":
		return fmt.Errorf("simulator: driver is required")
	default:
		return fmt.Errorf("simulator: invalid driver: %s (must be 'exec' or 'docker')", s.Driver)
	}

	if s.WorkDir == "" {
		s.WorkDir = DefaultWorkDir
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	if s.Timeout < 0 {
		return fmt.Errorf("simulator.timeout must be positive, got %s", s.Timeout)
	}
	if s.MaxAttempts == 0 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("simulator.max_attempts must be >= 1, got %d", s.MaxAttempts)
	}
	if s.Backoff < 0 {
		return fmt.Errorf("simulator.backoff must be >= 0, got %s", s.Backoff)
	}
	if s.Concurrency == 0 {
		s.Concurrency = DefaultConcurrency
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("simulator.concurrency must be >= 1, got %d", s.Concurrency)
	}

	for _, kv := range s.Environment {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("simulator.environment: entry '%s' is not KEY=VALUE", kv)
		}
	}
	return nil
}

func (h *HistoryMatchingConfig) validate() error {
	if h.Observed == nil && !h.ReferenceRun {
		return fmt.Errorf("history_matching: either observed or reference_run must be provided")
	}
	if h.Observed != nil && (math.IsNaN(*h.Observed) || math.IsInf(*h.Observed, 0)) {
		return fmt.Errorf("history_matching.observed must be finite")
	}
	if !(h.ObservationVariance >= 0) {
		return fmt.Errorf("history_matching.observation_variance must be >= 0, got %g", h.ObservationVariance)
	}
	if !(h.DiscrepancyVariance >= 0) {
		return fmt.Errorf("history_matching.discrepancy_variance must be >= 0, got %g", h.DiscrepancyVariance)
	}

	if h.Threshold == nil {
		t := history.DefaultThreshold
		h.Threshold = &t
	}
	if !(*h.Threshold >= 0) {
		return fmt.Errorf("history_matching.threshold must be >= 0, got %g", *h.Threshold)
	}
	return nil
}

// Cutoff returns the implausibility threshold, or history.DefaultThreshold
// when none was configured.
func (h HistoryMatchingConfig) Cutoff() float64 {
	if h.Threshold == nil {
		return history.DefaultThreshold
	}
	return *h.Threshold
}

// Load reads and validates campaign.yml from the specified path
func Load(path string) (*CampaignConfig, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides reads campaign.yml, applies environment and flag
// overrides, then validates the result.
func LoadWithOverrides(path string, o *Overrides) (*CampaignConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config CampaignConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	o.Apply(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
