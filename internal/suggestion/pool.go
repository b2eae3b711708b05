package suggestion

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"household-missions/internal/model"
)

//go:embed templates.yaml
var defaultPool []byte

// Template is a reusable challenge definition.
type Template struct {
	Key      string `yaml:"key"`
	Title    string `yaml:"title"`
	ExpValue int    `yaml:"exp"`
}

// Pool is the set of templates a batch is sampled from.
type Pool []Template

type poolFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadPool reads a YAML pool from path, or the built-in pool when path is empty.
func LoadPool(path string) (Pool, error) {
	data := defaultPool
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read templates: %w", err)
		}
		data = raw
	}
	return ParsePool(data)
}

// ParsePool decodes and validates a YAML pool.
func ParsePool(data []byte) (Pool, error) {
	var file poolFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	seen := make(map[string]bool, len(file.Templates))
	pool := make(Pool, 0, len(file.Templates))
	for i, tpl := range file.Templates {
		tpl.Key = strings.TrimSpace(tpl.Key)
		tpl.Title = strings.TrimSpace(tpl.Title)
		switch {
		case tpl.Key == "":
			return nil, fmt.Errorf("template %d: key is required", i)
		case tpl.Title == "":
			return nil, fmt.Errorf("template %q: title is required", tpl.Key)
		case tpl.ExpValue < 0 || tpl.ExpValue > model.MaxExpValue:
			return nil, fmt.Errorf("template %q: exp must be between 0 and %d", tpl.Key, model.MaxExpValue)
		case seen[tpl.Key]:
			return nil, fmt.Errorf("template %q: duplicate key", tpl.Key)
		}
		seen[tpl.Key] = true
		pool = append(pool, tpl)
	}
	return pool, nil
}
