// Package facts holds the static known-facts table used as a sanity net for
// provider data. It is loaded once at startup and never mutated.
package facts

import (
	"os"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Severity classifies how serious a known-fact mismatch is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// fieldSeverity maps tracked fields to their mismatch severity. Fields not
// listed here are not checked against the facts table.
var fieldSeverity = map[string]Severity{
	"ceo":          SeverityCritical,
	"company_name": SeverityWarning,
	"headquarters": SeverityWarning,
	"founded_year": SeverityWarning,
	"industry":     SeverityInfo,
}

// Penalty returns the confidence penalty for a mismatch of the given severity.
func Penalty(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return 0.3
	case SeverityWarning:
		return 0.1
	case SeverityInfo:
		return 0.05
	default:
		return 0
	}
}

// SeverityFor returns the mismatch severity for a tracked field, or false if
// the field is not checked against known facts.
func SeverityFor(field string) (Severity, bool) {
	s, ok := fieldSeverity[field]
	return s, ok
}

// Table is the immutable known-facts lookup: domain → field → acceptable
// values, plus a blacklist of placeholder person names.
type Table struct {
	domains      map[string]map[string][]string
	placeholders []string
}

// tableFile is the YAML shape of a facts file.
type tableFile struct {
	Facts        map[string]map[string][]string `yaml:"facts"`
	Placeholders []string                       `yaml:"placeholders"`
}

// defaultPlaceholders flag obviously fake contact records.
var defaultPlaceholders = []string{"test", "n/a", "tbd", "unknown", "placeholder", "asdf", "john doe", "jane doe"}

// Default returns the built-in facts table so the validator works with zero
// configuration.
func Default() *Table {
	return &Table{
		domains: map[string]map[string][]string{
			"microsoft.com": {
				"ceo":          {"Satya Nadella"},
				"company_name": {"Microsoft", "Microsoft Corporation"},
				"headquarters": {"Redmond, Washington", "Redmond, WA", "Redmond"},
				"industry":     {"Technology", "Software", "Computer Software"},
				"founded_year": {"1975"},
			},
			"apple.com": {
				"ceo":          {"Tim Cook"},
				"company_name": {"Apple", "Apple Inc.", "Apple Inc"},
				"headquarters": {"Cupertino, California", "Cupertino, CA", "Cupertino"},
				"industry":     {"Technology", "Consumer Electronics"},
				"founded_year": {"1976"},
			},
			"salesforce.com": {
				"ceo":          {"Marc Benioff"},
				"company_name": {"Salesforce", "Salesforce, Inc."},
				"headquarters": {"San Francisco, California", "San Francisco, CA"},
				"industry":     {"Technology", "Software", "Cloud Computing"},
				"founded_year": {"1999"},
			},
		},
		placeholders: defaultPlaceholders,
	}
}

// Load reads a facts table from a YAML file, merging the placeholder
// blacklist with the built-in defaults.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "facts: read %s", path)
	}

	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, eris.Wrap(err, "facts: parse")
	}

	placeholders := defaultPlaceholders
	if len(tf.Placeholders) > 0 {
		placeholders = append(placeholders, tf.Placeholders...)
	}

	t := &Table{
		domains:      make(map[string]map[string][]string, len(tf.Facts)),
		placeholders: placeholders,
	}
	for domain, fields := range tf.Facts {
		t.domains[strings.ToLower(strings.TrimSpace(domain))] = fields
	}
	return t, nil
}

// Lookup returns the known field values for a domain, or false if the domain
// is not covered by the table.
func (t *Table) Lookup(domain string) (map[string][]string, bool) {
	fields, ok := t.domains[strings.ToLower(strings.TrimSpace(domain))]
	return fields, ok
}

// Domains returns the number of covered domains.
func (t *Table) Domains() int {
	return len(t.domains)
}

// IsPlaceholder reports whether a person name matches the placeholder
// blacklist (substring, case-insensitive).
func (t *Table) IsPlaceholder(name string) bool {
	n := Normalize(name)
	if n == "" {
		return true
	}
	for _, p := range t.placeholders {
		if strings.Contains(n, p) {
			return true
		}
	}
	return false
}

// stripMarks removes diacritical marks so "José" compares equal to "Jose".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, trims, and accent-folds a value for comparison.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// Matches reports whether a provided value is consistent with any of the
// acceptable values. Matching is case/accent-insensitive and substring
// tolerant in both directions, so "Satya" matches "Satya Nadella" and
// "Microsoft Corporation" matches "Microsoft".
func Matches(provided string, acceptable []string) bool {
	p := Normalize(provided)
	if p == "" {
		return false
	}
	for _, a := range acceptable {
		n := Normalize(a)
		if n == "" {
			continue
		}
		if strings.Contains(n, p) || strings.Contains(p, n) {
			return true
		}
	}
	return false
}
