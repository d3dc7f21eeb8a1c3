package extraction

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"go.yaml.in/yaml/v3"
)

// RuleFile is the YAML shape of a custom rule file
type RuleFile struct {
	// Mode is "replace" (default) or "append"
	Mode  string     `yaml:"mode"`
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec describes one rule with regexp sources
type RuleSpec struct {
	ID      string `yaml:"id"`
	Field   string `yaml:"field"`
	Label   string `yaml:"label"`
	Value   string `yaml:"value"`
	Window  int    `yaml:"window"`
	Exclude string `yaml:"exclude"`
	Unique  bool   `yaml:"unique"`
}

// Compile turns the rule definition into a Rule
func (s RuleSpec) Compile() (Rule, error) {
	field, err := ParseField(s.Field)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", s.ID, err)
	}
	rule := Rule{ID: s.ID, Field: field, Window: s.Window, Unique: s.Unique}

	if rule.Value, err = regexp.Compile(s.Value); err != nil {
		return Rule{}, fmt.Errorf("rule %s: compiling value: %w", s.ID, err)
	}
	if s.Label != "" {
		if rule.Label, err = regexp.Compile(s.Label); err != nil {
			return Rule{}, fmt.Errorf("rule %s: compiling label: %w", s.ID, err)
		}
	}
	if s.Exclude != "" {
		if rule.Exclude, err = regexp.Compile(s.Exclude); err != nil {
			return Rule{}, fmt.Errorf("rule %s: compiling exclude: %w", s.ID, err)
		}
	}
	return rule, nil
}

// LoadRules reads a rule file and merges it over base
func LoadRules(path string, base RuleSet) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	return ParseRules(data, base)
}

// ParseRules merges YAML rules over base. In replace mode the rules for
// every field named in the file take the place of that field's base rules.
func ParseRules(data []byte, base RuleSet) (RuleSet, error) {
	var file RuleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(&file)
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyRuleFile
	}
	if err != nil {
		return nil, fmt.Errorf("decoding rule file: %w", err)
	}

	custom := make(RuleSet, 0, len(file.Rules))
	for _, spec := range file.Rules {
		rule, err := spec.Compile()
		if err != nil {
			return nil, err
		}
		custom = append(custom, rule)
	}

	var merged RuleSet
	switch file.Mode {
	case "", "replace":
		replaced := make(map[Field]bool)
		for _, r := range custom {
			replaced[r.Field] = true
		}
		for _, r := range base {
			if !replaced[r.Field] {
				merged = append(merged, r)
			}
		}
		merged = append(merged, custom...)
	case "append":
		merged = append(append(merged, base...), custom...)
	default:
		return nil, fmt.Errorf("unknown rule file mode: %s", file.Mode)
	}

	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}
