package parse

import (
	"regexp"
	"strings"
)

const (
	minOptions     = 2
	maxOptionLen   = 200
	minOptionLen   = 1
	optionBreakSeq = "\n\n"
)

// optionStrategy finds option markers with one regexp and maps the captured
// marker to an option key.
type optionStrategy struct {
	name string
	re   *regexp.Regexp
	key  func(marker string) string
}

var numericKeys = map[string]string{"1": "A", "2": "B", "3": "C", "4": "D"}

func numericKey(m string) string { return numericKeys[m] }
func alphaKey(m string) string   { return strings.ToUpper(m) }

// optionStrategies are tried in order; the first one that yields at least
// two valid options wins and later ones are not attempted.
var optionStrategies = []optionStrategy{
	{
		name: "numeric-marker",
		re:   regexp.MustCompile(`(?:^|\s)\(?([1-4])\)[ \t]*`),
		key:  numericKey,
	},
	{
		name: "alpha-marker",
		re:   regexp.MustCompile(`(?:^|\s)\(?([A-D])\)[ \t]*`),
		key:  alphaKey,
	},
	{
		name: "numeric-list",
		re:   regexp.MustCompile(`(?m)^[ \t]*([1-4])[.:][ \t]+`),
		key:  numericKey,
	},
	{
		name: "alpha-list",
		re:   regexp.MustCompile(`(?mi)^[ \t]*\(?([a-d])[.):][ \t]+`),
		key:  alphaKey,
	},
	{
		name: "inline-alpha",
		re:   regexp.MustCompile(`(?:^|\s)([A-D])[.:][ \t]+`),
		key:  alphaKey,
	},
}

// optionMatch is the outcome of one strategy on one block.
type optionMatch struct {
	strategy string
	options  map[string]string
	// stemEnd is the offset of the first option marker; the question stem is
	// everything before it.
	stemEnd int
}

// extract applies the strategy to text. Markers repeat-keyed after the first
// occurrence end the option list.
func (s optionStrategy) extract(text string) optionMatch {
	matches := s.re.FindAllStringSubmatchIndex(text, -1)
	out := optionMatch{strategy: s.name, options: map[string]string{}, stemEnd: -1}
	if len(matches) == 0 {
		return out
	}

	seen := map[string]bool{}
	var kept [][]int
	var keys []string
	for _, m := range matches {
		k := s.key(text[m[2]:m[3]])
		if k == "" {
			continue
		}
		if seen[k] {
			break
		}
		seen[k] = true
		kept = append(kept, m)
		keys = append(keys, k)
	}
	if len(kept) == 0 {
		return out
	}

	out.stemEnd = kept[0][0]
	for i, m := range kept {
		end := len(text)
		if i+1 < len(kept) {
			end = kept[i+1][0]
		}
		if v, ok := optionValue(text[m[1]:end]); ok {
			out.options[keys[i]] = v
		}
	}
	return out
}

// optionValue cleans a raw option segment and reports whether it is usable.
func optionValue(raw string) (string, bool) {
	if i := strings.Index(raw, optionBreakSeq); i >= 0 {
		raw = raw[:i]
	}
	v := collapse(raw)
	n := len([]rune(v))
	return v, n > minOptionLen && n < maxOptionLen
}

// ExtractOptions runs the option strategies over a question block and returns
// the options of the first strategy with at least two valid entries, or nil.
func ExtractOptions(text string) map[string]string {
	m, ok := extractOptions(text)
	if !ok {
		return nil
	}
	return m.options
}

func extractOptions(text string) (optionMatch, bool) {
	for _, s := range optionStrategies {
		m := s.extract(text)
		if len(m.options) >= minOptions {
			return m, true
		}
	}
	return optionMatch{}, false
}
