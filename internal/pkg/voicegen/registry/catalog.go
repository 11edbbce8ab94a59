package registry

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// LanguageEntry is one language choice and the voice models offered for it.
type LanguageEntry struct {
	Label  string   `yaml:"label"`
	Models []string `yaml:"models"`
}

// Catalog is the ordered list of language choices shown to the user.
type Catalog struct {
	Languages []LanguageEntry `yaml:"languages"`
}

func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic("registry: embedded catalog is invalid: " + err.Error())
	}
	return c
}

func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(c.Languages) == 0 {
		return nil, fmt.Errorf("catalog has no languages")
	}
	seen := make(map[string]bool, len(c.Languages))
	for _, l := range c.Languages {
		if l.Label == "" {
			return nil, fmt.Errorf("catalog entry without label")
		}
		if seen[l.Label] {
			return nil, fmt.Errorf("duplicate catalog language %q", l.Label)
		}
		seen[l.Label] = true
		if len(l.Models) == 0 {
			return nil, fmt.Errorf("catalog language %q has no models", l.Label)
		}
	}
	return &c, nil
}

func (c *Catalog) Labels() []string {
	labels := make([]string, 0, len(c.Languages))
	for _, l := range c.Languages {
		labels = append(labels, l.Label)
	}
	return labels
}

// Models returns the voice models for a language label, or nil.
func (c *Catalog) Models(label string) []string {
	for _, l := range c.Languages {
		if l.Label == label {
			return l.Models
		}
	}
	return nil
}

// DefaultModel is the first model of the first language.
func (c *Catalog) DefaultModel() string {
	return c.Languages[0].Models[0]
}
