package recognizer

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/Anmol9893/botservice/pkg/dialog"
)

// RuleSet is the YAML form of a rule recognizer.
type RuleSet struct {
	Intents []IntentRule `yaml:"intents"`
}

// IntentRule maps patterns to an intent.
type IntentRule struct {
	Name     string       `yaml:"name"`
	Score    float64      `yaml:"score,omitempty"`
	Patterns []string     `yaml:"patterns"`
	Entities []EntityRule `yaml:"entities,omitempty"`
}

// EntityRule extracts a named entity; the first capture group is the value.
type EntityRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

type compiledIntent struct {
	name     string
	score    float64
	patterns []*regexp.Regexp
	entities []compiledEntity
}

type compiledEntity struct {
	name string
	re   *regexp.Regexp
}

// RuleRecognizer matches text against ordered, case-insensitive patterns.
type RuleRecognizer struct {
	intents []compiledIntent
}

// NewRuleRecognizer compiles a rule set.
func NewRuleRecognizer(rs RuleSet) (*RuleRecognizer, error) {
	r := &RuleRecognizer{intents: make([]compiledIntent, 0, len(rs.Intents))}
	for i, in := range rs.Intents {
		if in.Name == "" {
			return nil, fmt.Errorf("intent %d: name is required", i)
		}
		if len(in.Patterns) == 0 {
			return nil, fmt.Errorf("intent %q: at least one pattern is required", in.Name)
		}
		ci := compiledIntent{name: in.Name, score: in.Score}
		if ci.score <= 0 {
			ci.score = 1
		}
		for _, p := range in.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("intent %q: pattern %q: %w", in.Name, p, err)
			}
			ci.patterns = append(ci.patterns, re)
		}
		for _, e := range in.Entities {
			re, err := regexp.Compile("(?i)" + e.Pattern)
			if err != nil {
				return nil, fmt.Errorf("intent %q: entity %q: %w", in.Name, e.Name, err)
			}
			ci.entities = append(ci.entities, compiledEntity{name: e.Name, re: re})
		}
		r.intents = append(r.intents, ci)
	}
	return r, nil
}

// LoadRules reads a YAML rule file.
func LoadRules(path string) (*RuleRecognizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %q: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules.
func ParseRules(data []byte) (*RuleRecognizer, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return NewRuleRecognizer(rs)
}

func (r *RuleRecognizer) Recognize(_ context.Context, activity dialog.Activity) (Result, error) {
	text := activity.Text
	for _, in := range r.intents {
		for _, re := range in.patterns {
			if !re.MatchString(text) {
				continue
			}
			res := Result{Intent: in.name, Score: in.score, Entities: map[string]any{}}
			for _, e := range in.entities {
				if m := e.re.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
					res.Entities[e.name] = m[1]
				}
			}
			return res, nil
		}
	}
	return NoMatch(), nil
}
