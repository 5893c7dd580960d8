// Package rubric renders the evaluation prompts and parses the model's answers.
package rubric

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Template names of the catalog.
const (
	TplCreativity        = "creativity"
	TplDepth             = "depth"
	TplCoherence         = "coherence"
	TplGrammarMistakes   = "grammar_mistakes"
	TplCompareCreativity = "compare_creativity"
	TplCompareDepth      = "compare_depth"
	TplCompareCoherence  = "compare_coherence"
	TplCompareGrammar    = "compare_grammar"
	TplPlagiarism        = "plagiarism"
	TplStory             = "story"
)

var requiredTemplates = []string{
	TplCreativity, TplDepth, TplCoherence, TplGrammarMistakes,
	TplCompareCreativity, TplCompareDepth, TplCompareCoherence, TplCompareGrammar,
	TplPlagiarism, TplStory,
}

// PromptData is the input of every template. Single-text prompts use Text; pairwise
// prompts use TextA/TextB and, for grammar, the JSON-encoded mistake lists.
type PromptData struct {
	Text      string
	TextA     string
	TextB     string
	MistakesA string
	MistakesB string
}

type catalogFile struct {
	Version   int               `yaml:"version"`
	Partials  map[string]string `yaml:"partials"`
	Templates map[string]string `yaml:"templates"`
}

// Catalog is an immutable set of parsed prompt templates, safe for concurrent use.
type Catalog struct {
	Version int
	root    *template.Template
}

// LoadCatalog parses a YAML prompt catalog and checks that every required template
// exists and renders.
func LoadCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("op=rubric.LoadCatalog: parse yaml: %w", err)
	}
	root := template.New("catalog").Option("missingkey=error")
	for name, body := range f.Partials {
		if _, err := root.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("op=rubric.LoadCatalog: partial %q: %w", name, err)
		}
	}
	for name, body := range f.Templates {
		if _, err := root.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("op=rubric.LoadCatalog: template %q: %w", name, err)
		}
	}
	c := &Catalog{Version: f.Version, root: root}
	for _, name := range requiredTemplates {
		if _, ok := f.Templates[name]; !ok {
			return nil, fmt.Errorf("op=rubric.LoadCatalog: missing template %q", name)
		}
		if _, err := c.Render(name, PromptData{}); err != nil {
			return nil, fmt.Errorf("op=rubric.LoadCatalog: %w", err)
		}
	}
	return c, nil
}

// DefaultCatalog returns the embedded catalog. It panics if the embedded file is invalid,
// which the package tests rule out.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(defaultPrompts)
	if err != nil {
		panic(err)
	}
	return c
}

// Render executes the named template with data.
func (c *Catalog) Render(name string, data PromptData) (string, error) {
	t := c.root.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("unknown template %q", name)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %q: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}
