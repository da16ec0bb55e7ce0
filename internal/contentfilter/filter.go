// Package contentfilter screens chat content before it is stored or relayed.
package contentfilter

import (
	"strings"
	"unicode"
)

// Result is the filter decision for one piece of content.
type Result string

const (
	// ResultAllowed means the content passed unchanged.
	ResultAllowed Result = "allowed"
	// ResultFiltered means objectionable terms were masked but the content
	// may still post.
	ResultFiltered Result = "filtered"
	// ResultBlocked means the content must be rejected entirely.
	ResultBlocked Result = "blocked"
)

// Outcome carries the decision, the (possibly masked) text, and the flags to
// record in the moderation log.
type Outcome struct {
	Result  Result
	Content string
	Flags   []string
}

// Filter screens text against a maskable term list and a blocklist.
type Filter struct {
	maskTerms  []string
	blockTerms []string
	maxLinks   int
}

// Option configures a Filter.
type Option func(*Filter)

// WithMaskTerms replaces the default maskable term list.
func WithMaskTerms(terms []string) Option {
	return func(f *Filter) { f.maskTerms = lower(terms) }
}

// WithBlockTerms replaces the default block term list.
func WithBlockTerms(terms []string) Option {
	return func(f *Filter) { f.blockTerms = lower(terms) }
}

// Default term lists. Kept deliberately short here; production deployments
// load the full lists from configuration at startup.
var (
	defaultMaskTerms  = []string{"damn", "hell", "crap", "jackass"}
	defaultBlockTerms = []string{"kill yourself", "kys", "die in a fire"}
)

// New returns a Filter with the default term lists.
func New(opts ...Option) *Filter {
	f := &Filter{
		maskTerms:  defaultMaskTerms,
		blockTerms: defaultBlockTerms,
		maxLinks:   5,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func lower(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = strings.ToLower(t)
	}
	return out
}

// Check screens the text. Block terms dominate: content containing any block
// term is rejected regardless of what else it contains.
func (f *Filter) Check(text string) Outcome {
	lowered := strings.ToLower(text)

	var flags []string

	for _, term := range f.blockTerms {
		if strings.Contains(lowered, term) {
			return Outcome{
				Result:  ResultBlocked,
				Content: "",
				Flags:   []string{"abusive_content"},
			}
		}
	}

	if f.looksLikeSpam(lowered) {
		return Outcome{
			Result:  ResultBlocked,
			Content: "",
			Flags:   []string{"spam"},
		}
	}

	// Mask in rune space. strings.ToLower can change byte length for some
	// runes, so byte offsets into the lowered string do not line up with the
	// original; per-rune folding keeps the two slices index-aligned.
	masked := []rune(text)
	folded := make([]rune, len(masked))
	for i, r := range masked {
		folded[i] = unicode.ToLower(r)
	}
	maskedAny := false
	for _, term := range f.maskTerms {
		tr := []rune(term)
		if len(tr) == 0 {
			continue
		}
		for i := 0; i+len(tr) <= len(masked); i++ {
			if !runesEqual(folded[i:i+len(tr)], tr) {
				continue
			}
			for j := i; j < i+len(tr); j++ {
				masked[j] = '*'
				folded[j] = '*'
			}
			maskedAny = true
			i += len(tr) - 1
		}
	}
	if maskedAny {
		flags = append(flags, "profanity")
		return Outcome{Result: ResultFiltered, Content: string(masked), Flags: flags}
	}

	return Outcome{Result: ResultAllowed, Content: text, Flags: nil}
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// looksLikeSpam applies cheap heuristics: link flooding and long runs of a
// repeated character.
func (f *Filter) looksLikeSpam(lowered string) bool {
	if strings.Count(lowered, "http://")+strings.Count(lowered, "https://") > f.maxLinks {
		return true
	}

	run := 0
	var prev rune
	for _, r := range lowered {
		if r == prev && !unicode.IsSpace(r) {
			run++
			if run >= 20 {
				return true
			}
		} else {
			run = 1
			prev = r
		}
	}
	return false
}

// Preview returns the audit-log preview of the original content, truncated to
// at most n bytes on a rune boundary.
func Preview(text string, n int) string {
	if len(text) <= n {
		return text
	}
	runes := []rune(text)
	out := make([]rune, 0, len(runes))
	size := 0
	for _, r := range runes {
		size += len(string(r))
		if size > n {
			break
		}
		out = append(out, r)
	}
	return string(out)
}
