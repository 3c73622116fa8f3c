package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. GOCOLLO_NLP_TOLERANCE.
const EnvPrefix = "GOCOLLO_"

// Load starts from Default, overlays the file at path when path is not
// empty, applies environment overrides and validates the result.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		if err := loadFile(path, &s); err != nil {
			return s, fmt.Errorf("load settings %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&s, os.LookupEnv); err != nil {
		return s, err
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func loadFile(path string, s *Settings) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(src, s)
	case ".hcl":
		return decodeHCL(src, path, s)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

func decodeYAML(src []byte, s *Settings) error {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// hclContext lets settings files write e.g. nlp_tolerance = pow(10, -9).
var hclContext = &hcl.EvalContext{
	Functions: map[string]function.Function{
		"pow": stdlib.PowFunc,
		"min": stdlib.MinFunc,
		"max": stdlib.MaxFunc,
	},
}

func decodeHCL(src []byte, filename string, s *Settings) error {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, diags)
	}
	// Attributes missing from the file keep the values already in s.
	if diags := gohcl.DecodeBody(f.Body, hclContext, s); diags.HasErrors() {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, diags)
	}
	return nil
}

// envFields maps each override suffix to the field it sets.
func envFields(s *Settings) map[string]any {
	return map[string]any{
		"NLP_BACKEND":            &s.NLPBackend,
		"NLP_TOLERANCE":          &s.NLPTolerance,
		"MAX_NLP_ITERATIONS":     &s.MaxNLPIterations,
		"MESH_TOLERANCE":         &s.MeshTolerance,
		"MAX_MESH_ITERATIONS":    &s.MaxMeshIterations,
		"COLLOCATION_POINTS_MIN": &s.CollocationPointsMin,
		"COLLOCATION_POINTS_MAX": &s.CollocationPointsMax,
		"DEFAULT_SEGMENTS":       &s.DefaultSegments,
		"DEFAULT_POINTS":         &s.DefaultPoints,
		"INF_VALUE":              &s.InfValue,
		"MAXIMISE_OBJECTIVE":     &s.MaximiseObjective,
		"CHECK_NLP_FUNCTIONS":    &s.CheckNLPFunctions,
		"DERIVATIVE_LEVEL":       &s.DerivativeLevel,
		"LOG_LEVEL":              &s.LogLevel,
		"LOG_FORMAT":             &s.LogFormat,
	}
}

// ApplyEnv overrides fields of s from variables found by lookup. Values are
// converted to the field type the way HCL converts strings, so "1e-9",
// "true" and "12" all work.
func ApplyEnv(s *Settings, lookup func(string) (string, bool)) error {
	for suffix, dst := range envFields(s) {
		raw, ok := lookup(EnvPrefix + suffix)
		if !ok {
			continue
		}
		ty, err := gocty.ImpliedType(dst)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalidSettings, EnvPrefix, suffix, err)
		}
		v, err := convert.Convert(cty.StringVal(strings.TrimSpace(raw)), ty)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidSettings, EnvPrefix, suffix, raw, err)
		}
		if err := gocty.FromCtyValue(v, dst); err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidSettings, EnvPrefix, suffix, raw, err)
		}
	}
	return nil
}
