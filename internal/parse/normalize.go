package parse

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Normalizer rewrites spoken transcript quirks into parseable text. A set of
// built-in substitutions handles common dictation artifacts; users can layer
// their own rules file on top (literal "from => to" lines and simplified
// "s/pattern/replacement/flags" lines, # for comments). Rules iterate until
// the text is stable, bounded by loopLimit.
type Normalizer struct {
	rules     []rule
	loopLimit int
}

type rule struct {
	re          *regexp.Regexp
	replacement string
}

var userRegexRule = regexp.MustCompile(`^s/((?:\\.|[^/])+)/((?:\\.|[^/])*)/([gi]*)$`)

func NewNormalizer(path string, loopLimit int) (*Normalizer, error) {
	if loopLimit <= 0 {
		loopLimit = 30
	}

	rules := builtinRules()

	if strings.TrimSpace(path) != "" {
		contents, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
		}
		if err == nil {
			userRules, parseErr := parseUserRules(string(contents))
			if parseErr != nil {
				return nil, fmt.Errorf("failed to parse rules file %q: %w", path, parseErr)
			}
			rules = append(rules, userRules...)
		}
	}

	return &Normalizer{rules: rules, loopLimit: loopLimit}, nil
}

// Apply rewrites text until no rule changes it anymore.
func (n *Normalizer) Apply(text string) string {
	result := text
	for i := 0; i < n.loopLimit; i++ {
		changed := false
		for _, r := range n.rules {
			next := r.re.ReplaceAllString(result, r.replacement)
			if next != result {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return strings.Join(strings.Fields(result), " ")
}

func parseUserRules(contents string) ([]rule, error) {
	var rules []rule
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if match := userRegexRule.FindStringSubmatch(line); match != nil {
			// Dictated text has unpredictable casing; insensitive always.
			re, err := regexp.Compile("(?i)" + match[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid regex: %w", index+1, err)
			}
			rules = append(rules, rule{re: re, replacement: match[2]})
			continue
		}

		if from, to, ok := strings.Cut(line, "=>"); ok {
			from = strings.TrimSpace(from)
			to = strings.TrimSpace(to)
			if from == "" {
				return nil, fmt.Errorf("line %d: literal rule source cannot be empty", index+1)
			}
			re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			rules = append(rules, rule{re: re, replacement: to})
			continue
		}

		return nil, fmt.Errorf("line %d: unsupported rule format", index+1)
	}
	return rules, nil
}

var spokenDigits = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
	"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10",
	"eleven": "11", "twelve": "12",
}

func builtinRules() []rule {
	rules := []rule{
		{regexp.MustCompile(`(?i)\ba\.?\s?m\.?\b`), "am"},
		{regexp.MustCompile(`(?i)\bp\.?\s?m\.?\b`), "pm"},
		{regexp.MustCompile(`(?i)\b(\d{1,2})\s+o'?clock\b`), "$1"},
		{regexp.MustCompile(`(?i)\bhalf past (\d{1,2})\b`), "$1:30"},
		{regexp.MustCompile(`(?i)\bquarter past (\d{1,2})\b`), "$1:15"},
	}
	// Spelled-out hours only where time context surrounds them, so reminder
	// titles like "buy two melons" stay untouched.
	for word, digit := range spokenDigits {
		rules = append(rules,
			rule{
				regexp.MustCompile(`(?i)\b` + word + `\b(\s*(?:am|pm|o'?clock|:\d{2}))`),
				digit + "$1",
			},
			rule{
				regexp.MustCompile(`(?i)\b((?:at|past)\s+)` + word + `\b`),
				"${1}" + digit,
			},
		)
	}
	return rules
}
