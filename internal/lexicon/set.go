package lexicon

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultFS embed.FS

// File is the on-disk YAML layout of a lexicon file.
type File struct {
	Version      int           `yaml:"version"`
	Lexicons     []FileLexicon `yaml:"lexicons"`
	ContextRules []ContextRule `yaml:"context_rules"`
}

// FileLexicon is one lexicon entry in a File.
type FileLexicon struct {
	Name     string             `yaml:"name"`
	Category string             `yaml:"category"`
	Terms    map[string]float64 `yaml:"terms"`
}

// Set holds one merged lexicon per category plus the context rule table.
type Set struct {
	byCategory map[string]*Lexicon
	Context    *ContextTable
}

// Lexicon returns the lexicon for category, or nil.
func (s *Set) Lexicon(category string) *Lexicon {
	return s.byCategory[category]
}

// Categories returns the categories present, sorted.
func (s *Set) Categories() []string {
	out := make([]string, 0, len(s.byCategory))
	for c := range s.byCategory {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Scorer returns a scorer using the set's context table and the given
// negator (may be nil).
func (s *Set) Scorer(neg Negator) *Scorer {
	return &Scorer{Context: s.Context, Negator: neg}
}

// Default loads the embedded lexicons.
func Default() (*Set, error) {
	entries, err := defaultFS.ReadDir("defaults")
	if err != nil {
		return nil, fmt.Errorf("lexicon: read embedded defaults: %w", err)
	}
	var files []File
	for _, e := range entries {
		data, err := defaultFS.ReadFile("defaults/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("lexicon: read embedded %s: %w", e.Name(), err)
		}
		f, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("lexicon: embedded %s: %w", e.Name(), err)
		}
		files = append(files, f)
	}
	return build(files)
}

// Load reads lexicon files. Paths may be files or directories of *.yaml.
// An empty path list falls back to the embedded defaults. A missing or
// malformed file is an error: safety lexicons never degrade silently.
func Load(paths []string) (*Set, error) {
	if len(paths) == 0 {
		return Default()
	}
	var files []File
	for _, p := range paths {
		matches, err := expand(p)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, fmt.Errorf("lexicon: read %s: %w", m, err)
			}
			f, err := parse(data)
			if err != nil {
				return nil, fmt.Errorf("lexicon: %s: %w", m, err)
			}
			files = append(files, f)
		}
	}
	return build(files)
}

func expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("lexicon: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var out []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		m, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, fmt.Errorf("lexicon: glob %s: %w", path, err)
		}
		out = append(out, m...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("lexicon: no lexicon files in %s", path)
	}
	sort.Strings(out)
	return out, nil
}

func parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse: %w", err)
	}
	return f, nil
}

func build(files []File) (*Set, error) {
	s := &Set{byCategory: make(map[string]*Lexicon)}
	var rules []ContextRule
	for _, f := range files {
		for _, fl := range f.Lexicons {
			if fl.Category == "" {
				return nil, fmt.Errorf("lexicon %s: category is required", fl.Name)
			}
			lx, err := New(fl.Name, fl.Category, fl.Terms)
			if err != nil {
				return nil, err
			}
			if cur, ok := s.byCategory[fl.Category]; ok {
				cur.merge(lx)
				continue
			}
			s.byCategory[fl.Category] = lx
		}
		rules = append(rules, f.ContextRules...)
	}

	for _, c := range RequiredCategories {
		if s.byCategory[c].Len() == 0 {
			return nil, fmt.Errorf("lexicon: required category %q is empty", c)
		}
	}

	ct, err := NewContextTable(rules)
	if err != nil {
		return nil, fmt.Errorf("lexicon: %w", err)
	}
	s.Context = ct
	return s, nil
}
