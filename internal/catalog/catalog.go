// Package catalog loads and holds the process-wide, immutable Pattern
// Catalog (spec.md §3, §4.1): regex alternatives per entity type,
// controlled vocabularies, per-province context keywords, and the fixed
// placeholder strings substituted during anonymization.
//
// A Catalog is safe for unsynchronized concurrent reads once Load
// returns; nothing about it is mutated afterward.
package catalog

import (
	_ "embed"
	"fmt"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/karim-bhalwani/context-aware-redactor/internal/rerrors"
	"github.com/karim-bhalwani/context-aware-redactor/internal/spans"
)

//go:embed patterns.yaml
var defaultPatternsYAML []byte

// PatternDef is one named regex alternative for an entity type, with its
// recognizer score (spec.md §3: "score is monotone within a rule").
type PatternDef struct {
	Name  string  `yaml:"name"`
	Regex string  `yaml:"regex"`
	Score float64 `yaml:"score"`
}

// ProvinceDef holds the context keywords used by a provincial health
// number validator/recognizer.
type ProvinceDef struct {
	Keywords []string `yaml:"keywords"`
}

// Vocabulary groups the controlled word-lists the recognizers and
// annotator consult.
type Vocabulary struct {
	HealthcareTitles        []string `yaml:"healthcare_titles"`
	PatientVerbsActive       []string `yaml:"patient_verbs_active"`
	PatientVerbsPassive      []string `yaml:"patient_verbs_passive"`
	PatientContextKeywords   []string `yaml:"patient_context_keywords"`
	CreditCardContext        []string `yaml:"credit_card_context"`
	StopWords                []string `yaml:"stop_words"`
}

type rawConfig struct {
	Vocabulary Vocabulary                      `yaml:"vocabulary"`
	Patterns   map[string][]PatternDef         `yaml:"patterns"`
	Provinces  map[string]ProvinceDef          `yaml:"provinces"`
}

// Catalog is the immutable, process-wide configuration: patterns,
// vocabulary, provinces, and placeholders.
type Catalog struct {
	patterns  map[spans.EntityType][]PatternDef
	vocab     Vocabulary
	stopWords map[string]struct{}
	titles    map[string]struct{}
	provinces map[string]ProvinceDef

	compiledMu sync.RWMutex
	compiled   map[spans.EntityType][]compiledPattern
}

type compiledPattern struct {
	def PatternDef
	re  *regexp.Regexp
}

// requiredSections are the top-level keys that must be present for the
// catalog to load at all (spec.md §6).
var requiredSections = []string{"patterns", "vocabulary", "provinces"}

// Load parses raw YAML bytes into a Catalog. A missing required section
// is a ConfigError (fatal at startup, spec.md §7); a pattern entity type
// with a malformed regex is also a ConfigError, since a silently-broken
// recognizer would defeat precision. Unknown/extra sections are ignored.
func Load(data []byte) (*Catalog, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, rerrors.Wrap(rerrors.KindConfigError, "failed to parse pattern catalog", err)
	}
	if len(raw) == 0 {
		return nil, rerrors.New(rerrors.KindConfigError, "pattern catalog is empty")
	}
	var missing []string
	for _, s := range requiredSections {
		if _, ok := raw[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return nil, rerrors.New(rerrors.KindConfigError,
			fmt.Sprintf("pattern catalog missing required sections: %v", missing))
	}

	var cfg rawConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, rerrors.Wrap(rerrors.KindConfigError, "failed to decode pattern catalog", err)
	}

	c := &Catalog{
		patterns:  make(map[spans.EntityType][]PatternDef, len(cfg.Patterns)),
		vocab:     cfg.Vocabulary,
		stopWords: toSet(cfg.Vocabulary.StopWords),
		titles:    toSet(cfg.Vocabulary.HealthcareTitles),
		provinces: cfg.Provinces,
		compiled:  make(map[spans.EntityType][]compiledPattern),
	}
	for entity, defs := range cfg.Patterns {
		c.patterns[spans.EntityType(entity)] = defs
	}

	// Validate every regex compiles; a malformed regex is fatal (ConfigError),
	// an entity type with zero patterns is merely skipped (optional).
	for entity, defs := range c.patterns {
		for _, d := range defs {
			if _, err := regexp.Compile(d.Regex); err != nil {
				return nil, rerrors.Wrap(rerrors.KindConfigError,
					fmt.Sprintf("invalid regex for pattern %q", d.Name), err)
			}
		}
		_ = entity
	}

	return c, nil
}

// LoadDefault loads the catalog embedded at build time.
func LoadDefault() (*Catalog, error) {
	return Load(defaultPatternsYAML)
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, s := range items {
		m[s] = struct{}{}
	}
	return m
}

// Patterns returns the configured pattern definitions for an entity type.
// A missing entity type returns (nil, false). CompiledPatterns then yields
// an empty list, so that entity type's recognizer emits nothing; no
// warning is logged.
func (c *Catalog) Patterns(entity spans.EntityType) ([]PatternDef, bool) {
	defs, ok := c.patterns[entity]
	return defs, ok && len(defs) > 0
}

// CompiledPatterns returns entity's patterns pre-compiled into
// *regexp.Regexp, memoized per entity type (mirrors the original's
// module-level _PATTERN_CACHE in redaction/engine/recognizers.py).
func (c *Catalog) CompiledPatterns(entity spans.EntityType) []compiledPattern {
	c.compiledMu.RLock()
	if cp, ok := c.compiled[entity]; ok {
		c.compiledMu.RUnlock()
		return cp
	}
	c.compiledMu.RUnlock()

	defs, _ := c.Patterns(entity)
	cp := make([]compiledPattern, 0, len(defs))
	for _, d := range defs {
		re, err := regexp.Compile(d.Regex)
		if err != nil {
			// Already validated at Load time; defensive only.
			continue
		}
		cp = append(cp, compiledPattern{def: d, re: re})
	}

	c.compiledMu.Lock()
	c.compiled[entity] = cp
	c.compiledMu.Unlock()
	return cp
}

// Regex returns the compiled regex of a compiledPattern.
func (p compiledPattern) Regex() *regexp.Regexp { return p.re }

// Score returns the configured score of a compiledPattern.
func (p compiledPattern) Score() float64 { return p.def.Score }

// Name returns the rule name of a compiledPattern.
func (p compiledPattern) Name() string { return p.def.Name }

// Vocabulary returns the loaded vocabulary set.
func (c *Catalog) Vocabulary() Vocabulary { return c.vocab }

// IsStopWord reports whether a casefolded word is in the stop-word list.
func (c *Catalog) IsStopWord(word string) bool {
	_, ok := c.stopWords[word]
	return ok
}

// IsHealthcareTitle reports whether a casefolded, dot-stripped word is a
// configured healthcare title.
func (c *Catalog) IsHealthcareTitle(word string) bool {
	_, ok := c.titles[word]
	return ok
}

// ProvinceKeywords returns the context keywords for a two-letter
// province code.
func (c *Catalog) ProvinceKeywords(code string) []string {
	return c.provinces[code].Keywords
}

// Placeholder returns the literal substitution string for an entity type:
// always "<ENTITY_TYPE>" (spec.md §4.8, §6).
func Placeholder(entity spans.EntityType) string {
	return "<" + string(entity) + ">"
}
