package subtitle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/subcards/subcards/internal/types"
)

// Action is what a matched rule does with a cue.
type Action string

const (
	// ActionDrop excludes the cue from downstream stages. It still lands in
	// the audit list; dropping is a policy decision, not a parse error.
	ActionDrop Action = "drop"
	// ActionTag keeps the cue and annotates it with the rule's tag.
	ActionTag Action = "tag"
)

// Rule pairs a matcher with an action. Rules run against the normalized cue
// text, first match wins.
type Rule struct {
	Name    string
	Pattern string
	Action  Action
	Tag     string

	re *regexp.Regexp
}

// RuleSet is an ordered list of compiled rules.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet compiles rules in order. A tag rule without a tag falls back to
// the rule name.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	compiled := make([]Rule, 0, len(rules))
	for _, r := range rules {
		switch r.Action {
		case ActionDrop, ActionTag:
		default:
			return nil, fmt.Errorf("rule %q: unknown action %q", r.Name, r.Action)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.re = re
		if r.Action == ActionTag && r.Tag == "" {
			r.Tag = r.Name
		}
		compiled = append(compiled, r)
	}
	return &RuleSet{rules: compiled}, nil
}

// DefaultRules drop sound-effect and narration cues: lines that are nothing
// but a bracketed annotation, and musical-note lines.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "sfx-bracketed", Pattern: `^[\(（\[【].*[\)）\]】]$`, Action: ActionDrop},
		{Name: "sfx-music", Pattern: `^[♪♫〜～]+$|^[♪♫].*[♪♫]$|^[♪♫]`, Action: ActionDrop},
	}
}

var leadingTagRe = regexp.MustCompile(`^[\(（\[【].+?[\)）\]】]\s*(.+)$`)

// Normalize strips leading bracketed annotation tags per physical line,
// flattens explicit line breaks and collapses whitespace. Literal "\N" breaks
// survive some subtitle exporters, so they are treated as newlines.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, `\N`, "\n")
	text = strings.ReplaceAll(text, `\n`, "\n")
	var parts []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if m := leadingTagRe.FindStringSubmatch(line); m != nil {
			line = strings.TrimSpace(m[1])
		}
		parts = append(parts, line)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// FilterResult separates kept cues from the audit list of dropped ones.
type FilterResult struct {
	Kept    []types.Cue
	Dropped []types.DroppedCue
}

// Apply normalizes each cue's text and classifies it KEEP or DROP.
// Kept cues carry normalized text and retain their original track ordinal;
// dropped cues keep their raw text in the audit list for traceability.
func (rs *RuleSet) Apply(cues []types.Cue) FilterResult {
	var res FilterResult
	for _, c := range cues {
		norm := Normalize(c.Text)
		if norm == "" {
			res.Dropped = append(res.Dropped, types.DroppedCue{
				Track: c.Track, Index: c.Index, Text: c.Text, Rule: "empty",
			})
			continue
		}
		dropped := false
		for _, r := range rs.rules {
			if !r.re.MatchString(norm) {
				continue
			}
			if r.Action == ActionDrop {
				res.Dropped = append(res.Dropped, types.DroppedCue{
					Track: c.Track, Index: c.Index, Text: c.Text, Rule: r.Name,
				})
				dropped = true
			} else {
				c.Tags = appendUnique(c.Tags, r.Tag)
			}
			break
		}
		if dropped {
			continue
		}
		c.Text = norm
		res.Kept = append(res.Kept, c)
	}
	return res
}

func appendUnique(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}
