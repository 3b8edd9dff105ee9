package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/abduction.report/internal/pose/export"
	"github.com/banshee-data/abduction.report/internal/pose/l2smoothing"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/l4quality"
	"github.com/banshee-data/abduction.report/internal/pose/pipeline"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
	"github.com/banshee-data/abduction.report/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the flat tuning schema shared by the JSON and YAML
// files. Omitted fields fall back to the Get* defaults.
type TuningConfig struct {
	// Filter bank, position (x, y) channels
	PositionMinCutoff *float64 `json:"position_min_cutoff,omitempty" yaml:"position_min_cutoff,omitempty"`
	PositionBeta      *float64 `json:"position_beta,omitempty" yaml:"position_beta,omitempty"`
	PositionDCutoff   *float64 `json:"position_d_cutoff,omitempty" yaml:"position_d_cutoff,omitempty"`

	// Filter bank, depth (z) channel
	DepthMinCutoff *float64 `json:"depth_min_cutoff,omitempty" yaml:"depth_min_cutoff,omitempty"`
	DepthBeta      *float64 `json:"depth_beta,omitempty" yaml:"depth_beta,omitempty"`
	DepthDCutoff   *float64 `json:"depth_d_cutoff,omitempty" yaml:"depth_d_cutoff,omitempty"`

	// Quality gate
	MinVisibility    *float64 `json:"min_visibility,omitempty" yaml:"min_visibility,omitempty"`
	MinShoulderWidth *float64 `json:"min_shoulder_width,omitempty" yaml:"min_shoulder_width,omitempty"`
	MinHipWidth      *float64 `json:"min_hip_width,omitempty" yaml:"min_hip_width,omitempty"`
	MinTorsoLength   *float64 `json:"min_torso_length,omitempty" yaml:"min_torso_length,omitempty"`

	// Zones (degrees)
	NominalMin *float64 `json:"nominal_min,omitempty" yaml:"nominal_min,omitempty"`
	NominalMax *float64 `json:"nominal_max,omitempty" yaml:"nominal_max,omitempty"`
	CautionMax *float64 `json:"caution_max,omitempty" yaml:"caution_max,omitempty"`

	// Cadence, as duration strings like "10ms"
	RefreshInterval   *string `json:"refresh_interval,omitempty" yaml:"refresh_interval,omitempty"`
	SampleInterval    *string `json:"sample_interval,omitempty" yaml:"sample_interval,omitempty"`
	RecordingDuration *string `json:"recording_duration,omitempty" yaml:"recording_duration,omitempty"`

	// Presentation
	AngleUnits   *string `json:"angle_units,omitempty" yaml:"angle_units,omitempty"`
	Timezone     *string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	ExportFormat *string `json:"export_format,omitempty" yaml:"export_format,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a config with every field set to its
// default.
func DefaultTuningConfig() *TuningConfig {
	pos, depth := l2smoothing.DefaultPositionParams(), l2smoothing.DefaultDepthParams()
	gate := l4quality.DefaultConfig()
	zones := l3geometry.DefaultZones()
	smp := sampler.DefaultConfig()
	return &TuningConfig{
		PositionMinCutoff: ptrFloat64(pos.MinCutoff),
		PositionBeta:      ptrFloat64(pos.Beta),
		PositionDCutoff:   ptrFloat64(pos.DCutoff),
		DepthMinCutoff:    ptrFloat64(depth.MinCutoff),
		DepthBeta:         ptrFloat64(depth.Beta),
		DepthDCutoff:      ptrFloat64(depth.DCutoff),
		MinVisibility:     ptrFloat64(gate.MinVisibility),
		MinShoulderWidth:  ptrFloat64(gate.MinShoulderWidth),
		MinHipWidth:       ptrFloat64(gate.MinHipWidth),
		MinTorsoLength:    ptrFloat64(gate.MinTorsoLength),
		NominalMin:        ptrFloat64(zones.NominalMin),
		NominalMax:        ptrFloat64(zones.NominalMax),
		CautionMax:        ptrFloat64(zones.CautionMax),
		RefreshInterval:   ptrString(pipeline.DefaultRefreshInterval.String()),
		SampleInterval:    ptrString(smp.Interval.String()),
		RecordingDuration: ptrString(smp.Duration.String()),
		AngleUnits:        ptrString(units.Degrees),
		Timezone:          ptrString("UTC"),
		ExportFormat:      ptrString(string(export.FormatJSON)),
	}
}

// LoadTuningConfig loads a TuningConfig from a .json, .yaml or .yml file.
// Fields omitted from the file retain their default values, so partial
// configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,          // from cmd/abduction/
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/pose/<pkg>/
		"../../../../" + DefaultConfigPath, // from internal/pose/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func parseDuration(field string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", field, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, *v)
	}
	return nil
}

// Validate checks field formats and the derived stage configurations.
func (c *TuningConfig) Validate() error {
	if err := parseDuration("refresh_interval", c.RefreshInterval); err != nil {
		return err
	}
	if err := parseDuration("sample_interval", c.SampleInterval); err != nil {
		return err
	}
	if err := parseDuration("recording_duration", c.RecordingDuration); err != nil {
		return err
	}
	if u := c.GetAngleUnits(); !units.IsValid(u) {
		return fmt.Errorf("angle_units must be one of %s, got %q", units.GetValidUnitsString(), u)
	}
	if tz := c.GetTimezone(); tz != "UTC" && !units.IsTimezoneValid(tz) {
		return fmt.Errorf("unknown timezone %q", tz)
	}
	if c.ExportFormat != nil {
		if _, err := export.ParseFormat(*c.ExportFormat); err != nil {
			return err
		}
	}
	if err := c.PipelineConfig().Filter.Validate(); err != nil {
		return err
	}
	if err := c.PipelineConfig().Gate.Validate(); err != nil {
		return err
	}
	if err := c.GetZones().Validate(); err != nil {
		return err
	}
	return c.SamplerConfig().Validate()
}

func getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetPositionParams returns the filter parameters for the x and y channels.
func (c *TuningConfig) GetPositionParams() l2smoothing.Params {
	def := l2smoothing.DefaultPositionParams()
	return l2smoothing.Params{
		MinCutoff: getFloat(c.PositionMinCutoff, def.MinCutoff),
		Beta:      getFloat(c.PositionBeta, def.Beta),
		DCutoff:   getFloat(c.PositionDCutoff, def.DCutoff),
	}
}

// GetDepthParams returns the filter parameters for the z channel.
func (c *TuningConfig) GetDepthParams() l2smoothing.Params {
	def := l2smoothing.DefaultDepthParams()
	return l2smoothing.Params{
		MinCutoff: getFloat(c.DepthMinCutoff, def.MinCutoff),
		Beta:      getFloat(c.DepthBeta, def.Beta),
		DCutoff:   getFloat(c.DepthDCutoff, def.DCutoff),
	}
}

// GetGate returns the quality gate thresholds.
func (c *TuningConfig) GetGate() l4quality.Config {
	def := l4quality.DefaultConfig()
	return l4quality.Config{
		MinVisibility:    getFloat(c.MinVisibility, def.MinVisibility),
		MinShoulderWidth: getFloat(c.MinShoulderWidth, def.MinShoulderWidth),
		MinHipWidth:      getFloat(c.MinHipWidth, def.MinHipWidth),
		MinTorsoLength:   getFloat(c.MinTorsoLength, def.MinTorsoLength),
	}
}

// GetZones returns the zone thresholds.
func (c *TuningConfig) GetZones() l3geometry.Zones {
	def := l3geometry.DefaultZones()
	return l3geometry.Zones{
		NominalMin: getFloat(c.NominalMin, def.NominalMin),
		NominalMax: getFloat(c.NominalMax, def.NominalMax),
		CautionMax: getFloat(c.CautionMax, def.CautionMax),
	}
}

// GetRefreshInterval returns the scheduler tick period.
func (c *TuningConfig) GetRefreshInterval() time.Duration {
	return getDuration(c.RefreshInterval, pipeline.DefaultRefreshInterval)
}

// GetSampleInterval returns the sampler tick period.
func (c *TuningConfig) GetSampleInterval() time.Duration {
	return getDuration(c.SampleInterval, sampler.DefaultConfig().Interval)
}

// GetRecordingDuration returns the recording window length.
func (c *TuningConfig) GetRecordingDuration() time.Duration {
	return getDuration(c.RecordingDuration, sampler.DefaultConfig().Duration)
}

// GetAngleUnits returns the angle_units value or the default.
func (c *TuningConfig) GetAngleUnits() string {
	if c.AngleUnits == nil || *c.AngleUnits == "" {
		return units.Degrees
	}
	return *c.AngleUnits
}

// GetTimezone returns the display timezone or UTC.
func (c *TuningConfig) GetTimezone() string {
	if c.Timezone == nil || *c.Timezone == "" {
		return "UTC"
	}
	return *c.Timezone
}

// GetExportFormat returns the export format, JSON unless configured.
func (c *TuningConfig) GetExportFormat() export.Format {
	if c.ExportFormat == nil {
		return export.FormatJSON
	}
	f, err := export.ParseFormat(*c.ExportFormat)
	if err != nil {
		return export.FormatJSON
	}
	return f
}

// PipelineConfig builds the scheduler configuration.
func (c *TuningConfig) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Filter: l2smoothing.BankConfig{
			Position: c.GetPositionParams(),
			Depth:    c.GetDepthParams(),
		},
		Gate:            c.GetGate(),
		Zones:           c.GetZones(),
		RefreshInterval: c.GetRefreshInterval(),
	}
}

// SamplerConfig builds the sampler configuration.
func (c *TuningConfig) SamplerConfig() sampler.Config {
	return sampler.Config{
		Interval: c.GetSampleInterval(),
		Duration: c.GetRecordingDuration(),
	}
}
