// Package config holds the solver settings and loads them from YAML or HCL
// files with environment overrides.
package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// Settings controls the mesh loop, the NLP backend and logging.
type Settings struct {
	NLPBackend       string  `yaml:"nlp_backend" hcl:"nlp_backend,optional" validate:"required,oneof=alm"`
	NLPTolerance     float64 `yaml:"nlp_tolerance" hcl:"nlp_tolerance,optional" validate:"gt=0,lt=1"`
	MaxNLPIterations int     `yaml:"max_nlp_iterations" hcl:"max_nlp_iterations,optional" validate:"gte=1"`

	MeshTolerance     float64 `yaml:"mesh_tolerance" hcl:"mesh_tolerance,optional" validate:"gt=0"`
	MaxMeshIterations int     `yaml:"max_mesh_iterations" hcl:"max_mesh_iterations,optional" validate:"gte=1"`

	CollocationPointsMin int `yaml:"collocation_points_min" hcl:"collocation_points_min,optional" validate:"gte=2"`
	CollocationPointsMax int `yaml:"collocation_points_max" hcl:"collocation_points_max,optional" validate:"gtefield=CollocationPointsMin"`
	DefaultSegments      int `yaml:"default_segments" hcl:"default_segments,optional" validate:"gte=1"`
	DefaultPoints        int `yaml:"default_points" hcl:"default_points,optional" validate:"gtefield=CollocationPointsMin,ltefield=CollocationPointsMax"`

	// InfValue replaces infinite bounds.
	InfValue float64 `yaml:"inf_value" hcl:"inf_value,optional" validate:"gt=0"`

	MaximiseObjective bool `yaml:"maximise_objective" hcl:"maximise_objective,optional"`
	CheckNLPFunctions bool `yaml:"check_nlp_functions" hcl:"check_nlp_functions,optional"`
	// DerivativeLevel 1 skips the Lagrangian Hessians.
	DerivativeLevel int `yaml:"derivative_level" hcl:"derivative_level,optional" validate:"oneof=1 2"`

	LogLevel  string `yaml:"log_level" hcl:"log_level,optional" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" hcl:"log_format,optional" validate:"oneof=text json"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		NLPBackend:           "alm",
		NLPTolerance:         1e-8,
		MaxNLPIterations:     2000,
		MeshTolerance:        1e-7,
		MaxMeshIterations:    10,
		CollocationPointsMin: 2,
		CollocationPointsMax: 10,
		DefaultSegments:      10,
		DefaultPoints:        4,
		InfValue:             1e19,
		DerivativeLevel:      2,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its tag and that InfValue is finite.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s fails %q (value %v)", ErrInvalidSettings, f.Field(), f.ActualTag(), f.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if math.IsInf(s.InfValue, 0) || math.IsNaN(s.InfValue) {
		return fmt.Errorf("%w: inf_value must be finite", ErrInvalidSettings)
	}
	return nil
}
