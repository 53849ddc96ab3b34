package policy

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aristath/riskpilot/pkg/embedded"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// ConfigError collects every problem found while loading a policy.
// The engine refuses to start while any problem remains.
type ConfigError struct {
	Source   string
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid policy %s: %d problem(s): %s",
		e.Source, len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ConfigError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Load reads, defaults and validates the policy file at path
func Load(path string, log zerolog.Logger) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	return Parse(data, path, log)
}

// Default returns the policy embedded in the binary
func Default(log zerolog.Logger) (*Policy, error) {
	data, err := embedded.DefaultPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded policy: %w", err)
	}
	return Parse(data, "embedded", log)
}

// LoadOrDefault loads path when set, the embedded policy otherwise
func LoadOrDefault(path string, log zerolog.Logger) (*Policy, error) {
	if path == "" {
		return Default(log)
	}
	return Load(path, log)
}

// Parse decodes a policy document and runs every load-time check.
// Unknown keys are rejected so that typos cannot silently drop a setting.
func Parse(data []byte, source string, log zerolog.Logger) (*Policy, error) {
	log = log.With().Str("component", "policy").Str("source", source).Logger()

	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, &ConfigError{Source: source, Problems: []string{fmt.Sprintf("decode: %v", err)}}
	}

	if err := defaults.Set(&p); err != nil {
		return nil, fmt.Errorf("failed to apply policy defaults: %w", err)
	}

	cerr := &ConfigError{Source: source}
	if err := validate.Struct(&p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("failed to validate policy: %w", err)
		}
		for _, fe := range verrs {
			cerr.add("%s: failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		// Semantic checks assume a structurally sound document
		return nil, cerr
	}

	p.check(cerr)
	if len(cerr.Problems) > 0 {
		return nil, cerr
	}

	for _, sym := range intersect(p.Classification.HedgeSymbols, p.Classification.IncomeSymbols) {
		log.Debug().Str("symbol", sym).Msg("Symbol is both hedge and income; options resolve by rule order")
	}

	log.Info().
		Int("categories", len(p.Categories)).
		Int("indicators", len(p.IndicatorNames())).
		Int("regimes", len(p.Regimes)).
		Msg("Policy loaded")

	return &p, nil
}
