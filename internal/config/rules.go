package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/subcards/subcards/internal/domain/subtitle"
)

// RuleFile is the YAML schema for the SFX/narration filter rules. Rules are
// evaluated in file order, first match wins.
type RuleFile struct {
	Rules []RuleConfig `yaml:"rules"`
}

type RuleConfig struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Action  string `yaml:"action"` // drop or tag
	Tag     string `yaml:"tag"`
}

// LoadRules reads a rule file and compiles it. An empty path yields the
// built-in defaults.
func LoadRules(path string) (*subtitle.RuleSet, error) {
	if path == "" {
		return subtitle.NewRuleSet(subtitle.DefaultRules())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	rules := make([]subtitle.Rule, 0, len(rf.Rules))
	for _, r := range rf.Rules {
		rules = append(rules, subtitle.Rule{
			Name:    r.Name,
			Pattern: r.Pattern,
			Action:  subtitle.Action(r.Action),
			Tag:     r.Tag,
		})
	}
	rs, err := subtitle.NewRuleSet(rules)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return rs, nil
}
