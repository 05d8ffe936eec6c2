// Package knowledge holds the bundled knowledge-base seed and its YAML loader.
package knowledge

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"bankbot/internal/domain"
	"bankbot/internal/storage/sqlite"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

type Seed struct {
	Intents   []SeedIntent    `yaml:"intents"`
	Smalltalk []SeedSmalltalk `yaml:"smalltalk"`
	Facts     []SeedFact      `yaml:"facts"`
}

type SeedIntent struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Examples    []string `yaml:"examples"`
}

type SeedSmalltalk struct {
	Pattern  string `yaml:"pattern"`
	Response string `yaml:"response"`
}

type SeedFact struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// Load reads the seed at path, or the bundled default when path is empty.
func Load(path string) (*Seed, error) {
	data := defaultSeed
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed: %w", err)
		}
	}
	return Parse(data)
}

func Parse(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed yaml: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Seed) validate() error {
	seen := make(map[string]bool, len(s.Intents))
	for i, in := range s.Intents {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return fmt.Errorf("seed intent #%d has no name", i+1)
		}
		if seen[name] {
			return fmt.Errorf("seed intent %q declared twice", name)
		}
		if name == domain.SmalltalkIntent {
			return fmt.Errorf("seed intent name %q is reserved", name)
		}
		seen[name] = true
	}
	for i, st := range s.Smalltalk {
		if strings.Trim(st.Pattern, "%* \t") == "" {
			return fmt.Errorf("seed smalltalk rule #%d has an empty pattern", i+1)
		}
		if strings.TrimSpace(st.Response) == "" {
			return fmt.Errorf("seed smalltalk rule %q has no response", st.Pattern)
		}
	}
	for i, f := range s.Facts {
		if strings.TrimSpace(f.Key) == "" {
			return fmt.Errorf("seed fact #%d has no key", i+1)
		}
	}
	return nil
}

// Data flattens the seed into store rows. Duplicate examples within one
// intent are collapsed.
func (s *Seed) Data() sqlite.SeedData {
	var out sqlite.SeedData
	for _, in := range s.Intents {
		name := strings.TrimSpace(in.Name)
		out.Intents = append(out.Intents, domain.Intent{Name: name, Description: in.Description})
		seen := make(map[string]bool, len(in.Examples))
		for _, ex := range in.Examples {
			ex = strings.TrimSpace(ex)
			if ex == "" || seen[strings.ToLower(ex)] {
				continue
			}
			seen[strings.ToLower(ex)] = true
			out.Examples = append(out.Examples, domain.IntentExample{IntentName: name, Example: ex})
		}
	}
	for _, st := range s.Smalltalk {
		out.Smalltalk = append(out.Smalltalk, domain.SmalltalkRule{Pattern: st.Pattern, Response: st.Response})
	}
	for _, f := range s.Facts {
		out.Facts = append(out.Facts, domain.Fact{Key: strings.TrimSpace(f.Key), Value: f.Value})
	}
	return out
}

// Apply writes the seed into db.
func (s *Seed) Apply(db *sql.DB) (sqlite.SeedResult, error) {
	return sqlite.SeedKnowledge(db, s.Data())
}
