package assets

import (
	"regexp"

	"github.com/wolfeidau/assetpipe/internal/transform"
)

// StepRef names a transform step and the options passed to it verbatim.
type StepRef struct {
	Step    string
	Options transform.Options
}

// Rule dispatches files whose path matches Test and none of Exclude.
type Rule struct {
	Test    *regexp.Regexp
	Exclude []*regexp.Regexp
	Use     []StepRef
}

// Matches reports whether the rule selects the path.
func (r Rule) Matches(path string) bool {
	if r.Test == nil || !r.Test.MatchString(path) {
		return false
	}
	for _, ex := range r.Exclude {
		if ex.MatchString(path) {
			return false
		}
	}
	return true
}

// passthroughRule handles files no declared rule matches.
var passthroughRule = Rule{Use: []StepRef{{Step: "passthrough"}}}

// Matcher selects the rules that apply to a file, in declaration order.
type Matcher struct {
	rules  []Rule
	strict bool
}

func NewMatcher(rules []Rule, strict bool) *Matcher {
	return &Matcher{rules: rules, strict: strict}
}

// Match returns every rule selecting the path, possibly none.
func (m *Matcher) Match(path string) []Rule {
	var matched []Rule
	for _, r := range m.rules {
		if r.Matches(path) {
			matched = append(matched, r)
		}
	}
	return matched
}

// Resolve is Match with the no-match policy applied: a binary copy, or an
// UnhandledAssetTypeError in strict mode.
func (m *Matcher) Resolve(path string) ([]Rule, error) {
	matched := m.Match(path)
	if len(matched) > 0 {
		return matched, nil
	}
	if m.strict {
		return nil, &UnhandledAssetTypeError{Path: path}
	}
	return []Rule{passthroughRule}, nil
}

// expectedKind guesses what a chain produces so a failed module can be
// attributed to the right artifact.
func expectedKind(rules []Rule) transform.Kind {
	if len(rules) == 0 {
		return transform.KindFile
	}
	for _, ref := range rules[0].Use {
		switch ref.Step {
		case "style-compiler", "extract-to-file":
			return transform.KindStyle
		case "passthrough":
			return transform.KindFile
		}
	}
	return transform.KindScript
}
