package autonomy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Classifier detects permission-denial signatures in final response text.
//
// The upstream agent's denial phrasing is not contractually stable, so this
// is a best-effort substring match, versioned separately from the structured
// event protocol. Phrases are matched case-insensitively.
type Classifier struct {
	phrases []string
}

// defaultPhrases are the denial signatures observed in current agent builds.
var defaultPhrases = []string{
	"insufficient permission",
	"skip-permissions-unsafe",
}

// NewClassifier creates a Classifier with the built-in signatures.
func NewClassifier() *Classifier {
	return &Classifier{phrases: append([]string(nil), defaultPhrases...)}
}

// patternsFile is the YAML shape of an external signature file.
type patternsFile struct {
	Phrases []string `yaml:"phrases"`
}

// LoadClassifier creates a Classifier extended with phrases from a YAML
// file. The built-in signatures are always kept.
func LoadClassifier(path string) (*Classifier, error) {
	c := NewClassifier()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns file: %w", err)
	}
	var pf patternsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse patterns file: %w", err)
	}
	for _, p := range pf.Phrases {
		p = strings.TrimSpace(p)
		if p != "" {
			c.phrases = append(c.phrases, strings.ToLower(p))
		}
	}
	return c, nil
}

// Denied reports whether text contains any denial signature.
func (c *Classifier) Denied(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range c.phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
