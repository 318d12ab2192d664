package relex

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/relex/extract"
	"github.com/brunobiangulo/relex/store"
)

// SchemaFile is the declarative schema definition the CLI loads from YAML:
// which mention types to extract, which relations to build over them, and
// the filter flags for binary relations.
type SchemaFile struct {
	MentionTypes []MentionTypeSpec `yaml:"mention_types"`
	Relations    []RelationSpec    `yaml:"relations"`
	Filters      *FilterFlags      `yaml:"filters,omitempty"`
}

// MentionTypeSpec declares one mention type: its name, the n-gram span
// space size, and the matcher that filters proposed spans.
type MentionTypeSpec struct {
	Name     string      `yaml:"name"`
	MaxNgram int         `yaml:"max_ngram"`
	Matcher  MatcherSpec `yaml:"matcher"`
}

// MatcherSpec names one of the built-in matchers. Type "regex" matches the
// span text against Pattern (full match); "dict" matches against Words; an
// empty type accepts every span.
type MatcherSpec struct {
	Type       string   `yaml:"type"`
	Pattern    string   `yaml:"pattern,omitempty"`
	Words      []string `yaml:"words,omitempty"`
	IgnoreCase bool     `yaml:"ignore_case,omitempty"`
}

// RelationSpec declares one relation schema. Throttler names a built-in
// throttler ("same_sentence") or is empty for none.
type RelationSpec struct {
	Name      string     `yaml:"name"`
	Roles     []RoleSpec `yaml:"roles"`
	Throttler string     `yaml:"throttler,omitempty"`
}

// RoleSpec is one ordered argument slot of a relation.
type RoleSpec struct {
	Name        string `yaml:"name"`
	MentionType string `yaml:"mention_type"`
}

// FilterFlags mirrors extract.FilterPolicy in the schema file.
type FilterFlags struct {
	SelfRelations      bool `yaml:"self_relations"`
	NestedRelations    bool `yaml:"nested_relations"`
	SymmetricRelations bool `yaml:"symmetric_relations"`
}

// LoadSchemaFile reads and decodes a YAML schema definition.
func LoadSchemaFile(path string) (SchemaFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SchemaFile{}, fmt.Errorf("reading schema file: %w", err)
	}
	var f SchemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return SchemaFile{}, fmt.Errorf("parsing schema file: %w", err)
	}
	return f, nil
}

// mentionInputs builds the parallel lists NewMentionExtractor expects.
func (f SchemaFile) mentionInputs() ([]string, []extract.SpanSpace, []extract.Matcher, error) {
	var (
		types    []string
		spaces   []extract.SpanSpace
		matchers []extract.Matcher
	)
	for _, mt := range f.MentionTypes {
		if mt.Name == "" {
			return nil, nil, nil, fmt.Errorf("%w: mention type with empty name", ErrInvalidConfig)
		}
		matcher, err := buildMatcher(mt.Matcher)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("mention type %q: %w", mt.Name, err)
		}
		types = append(types, mt.Name)
		spaces = append(spaces, extract.Ngrams{NMax: mt.MaxNgram})
		matchers = append(matchers, matcher)
	}
	return types, spaces, matchers, nil
}

// relationInputs builds the schema and throttler lists for
// NewCandidateExtractor, checking every role against the declared mention
// types.
func (f SchemaFile) relationInputs() ([]store.RelationDef, []extract.Throttler, error) {
	known := make(map[string]bool, len(f.MentionTypes))
	for _, mt := range f.MentionTypes {
		known[mt.Name] = true
	}

	var (
		schemas    []store.RelationDef
		throttlers []extract.Throttler
	)
	for _, rel := range f.Relations {
		def := store.RelationDef{Name: rel.Name}
		for _, role := range rel.Roles {
			if !known[role.MentionType] {
				return nil, nil, fmt.Errorf("%w: relation %q role %q references mention type %q",
					ErrUnknownMentionType, rel.Name, role.Name, role.MentionType)
			}
			def.Roles = append(def.Roles, store.Role{Name: role.Name, MentionType: role.MentionType})
		}
		throttler, err := buildThrottler(rel.Throttler)
		if err != nil {
			return nil, nil, fmt.Errorf("relation %q: %w", rel.Name, err)
		}
		schemas = append(schemas, def)
		throttlers = append(throttlers, throttler)
	}
	return schemas, throttlers, nil
}

// filterPolicy resolves the effective filter flags: the schema file wins,
// the Config defaults otherwise.
func (f SchemaFile) filterPolicy(cfg Config) extract.FilterPolicy {
	if f.Filters != nil {
		return extract.FilterPolicy{
			SelfRelations:      f.Filters.SelfRelations,
			NestedRelations:    f.Filters.NestedRelations,
			SymmetricRelations: f.Filters.SymmetricRelations,
		}
	}
	return extract.FilterPolicy{
		SelfRelations:      cfg.SelfRelations,
		NestedRelations:    cfg.NestedRelations,
		SymmetricRelations: cfg.SymmetricRelations,
	}
}

// buildMatcher resolves a MatcherSpec to a predicate.
func buildMatcher(spec MatcherSpec) (extract.Matcher, error) {
	switch spec.Type {
	case "":
		return nil, nil
	case "regex":
		if spec.Pattern == "" {
			return nil, fmt.Errorf("%w: regex matcher without pattern", ErrInvalidConfig)
		}
		pattern := spec.Pattern
		if spec.IgnoreCase {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("%w: regex matcher: %v", ErrInvalidConfig, err)
		}
		return func(m store.Mention) bool {
			return re.MatchString(m.Text)
		}, nil
	case "dict":
		if len(spec.Words) == 0 {
			return nil, fmt.Errorf("%w: dict matcher without words", ErrInvalidConfig)
		}
		words := make(map[string]bool, len(spec.Words))
		for _, w := range spec.Words {
			if spec.IgnoreCase {
				w = strings.ToLower(w)
			}
			words[w] = true
		}
		ignoreCase := spec.IgnoreCase
		return func(m store.Mention) bool {
			text := m.Text
			if ignoreCase {
				text = strings.ToLower(text)
			}
			return words[text]
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown matcher type %q", ErrInvalidConfig, spec.Type)
	}
}

// buildThrottler resolves a throttler name to a predicate.
func buildThrottler(name string) (extract.Throttler, error) {
	switch name {
	case "":
		return nil, nil
	case "same_sentence":
		return extract.SameSentence, nil
	default:
		return nil, fmt.Errorf("%w: unknown throttler %q", ErrInvalidConfig, name)
	}
}
