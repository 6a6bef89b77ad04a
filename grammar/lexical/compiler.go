package lexical

import (
	"fmt"
	"regexp"
	"regexp/syntax"
	"sort"
	"strings"
)

// Entry is one terminal of the compiled lexical specification.
type Entry struct {
	// Num is the terminal's symbol number; it doubles as the index into
	// Spec.Entries.
	Num int

	Name string

	// Pattern is the composed regex source, unanchored. Declared entries
	// have none and are never matched by the lexer.
	Pattern string

	// Literal marks terminals whose pattern contains no metacharacters.
	// Literal keywords must win over identifier-like patterns of equal
	// priority, so they rank first.
	Literal bool

	// Text is the plain text of a literal entry.
	Text string

	Priority         int
	ExplicitPriority bool

	// FilterOut marks tokens dropped from parse trees: anonymous literal
	// terminals and `_`-prefixed names.
	FilterOut bool

	Anonymous bool
	Declared  bool

	// DefOrder breaks priority ties: earlier definitions win.
	DefOrder int

	re *regexp.Regexp
}

// Match returns the length in bytes of the entry's match at the start of
// text, or -1.
func (e *Entry) Match(text string) int {
	if e.re == nil {
		return -1
	}
	loc := e.re.FindStringIndex(text)
	if loc == nil {
		return -1
	}
	return loc[1]
}

// MatchLengths returns every match length of the entry at the start of
// text when all is true, in ascending order; otherwise only the longest.
// The all form backs the dynamic-complete lexer.
func (e *Entry) MatchLengths(text string, all bool) []int {
	if e.re == nil {
		return nil
	}
	if !all {
		if n := e.Match(text); n > 0 {
			return []int{n}
		}
		return nil
	}
	whole, err := regexp.Compile(`\A(?:` + e.Pattern + `)\z`)
	if err != nil {
		return nil
	}
	var lens []int
	for n := 1; n <= len(text); n++ {
		if whole.MatchString(text[:n]) {
			lens = append(lens, n)
		}
	}
	return lens
}

// CollisionWarning reports two regex terminals whose languages may
// intersect while nothing orders them.
type CollisionWarning struct {
	Name1 string
	Name2 string
}

func (w *CollisionWarning) String() string {
	return fmt.Sprintf("terminals %v and %v may match the same text and no priority distinguishes them", w.Name1, w.Name2)
}

// Spec is the compiled lexical specification shared by every parse.
type Spec struct {
	// Entries is indexed by terminal number; entry 0 and gaps are nil.
	Entries []*Entry

	// order holds the entries the lexer tries, sorted by (priority desc,
	// literal first, longer literal first, definition order).
	order []*Entry

	// ignored is keyed by terminal number.
	ignored map[int]struct{}
}

// NewSpec compiles the entries and runs the collision analysis. The
// returned warnings are advisory; compilation fails only on an invalid
// pattern.
func NewSpec(entries []*Entry, ignored []int) (*Spec, []*CollisionWarning, error) {
	maxNum := 0
	for _, e := range entries {
		if e.Num > maxNum {
			maxNum = e.Num
		}
	}

	s := &Spec{
		Entries: make([]*Entry, maxNum+1),
		ignored: map[int]struct{}{},
	}
	for _, e := range entries {
		if !e.Declared {
			re, err := regexp.Compile(`\A(?:` + e.Pattern + `)`)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid pattern for terminal %v: %w", e.Name, err)
			}
			e.re = re
		}
		s.Entries[e.Num] = e
		if !e.Declared {
			s.order = append(s.order, e)
		}
	}
	for _, num := range ignored {
		s.ignored[num] = struct{}{}
	}

	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.order[i], s.order[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Literal != b.Literal {
			return a.Literal
		}
		if a.Literal && b.Literal && len(a.Text) != len(b.Text) {
			return len(a.Text) > len(b.Text)
		}
		return a.DefOrder < b.DefOrder
	})

	return s, s.analyzeCollisions(), nil
}

// Candidates returns the entries in match-preference order. When allowed
// is non-nil, entries outside it are skipped; the contextual lexer passes
// the current parser state's terminal set here.
func (s *Spec) Candidates(allowed map[int]struct{}) []*Entry {
	if allowed == nil {
		return s.order
	}
	var cands []*Entry
	for _, e := range s.order {
		if _, ok := allowed[e.Num]; ok {
			cands = append(cands, e)
			continue
		}
		if _, ok := s.ignored[e.Num]; ok {
			cands = append(cands, e)
		}
	}
	return cands
}

func (s *Spec) IsIgnored(num int) bool {
	_, ok := s.ignored[num]
	return ok
}

func (s *Spec) IgnoredTerminals() []int {
	var nums []int
	for num := range s.ignored {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

// analyzeCollisions pairs up terminals whose languages may intersect.
// A literal against a regex is decided exactly by matching the literal.
// Regex against regex uses a conservative check and only reports when
// equal priority leaves the pair unordered.
func (s *Spec) analyzeCollisions() []*CollisionWarning {
	var warnings []*CollisionWarning
	for i, a := range s.order {
		for _, b := range s.order[i+1:] {
			if a.Literal && b.Literal {
				continue
			}
			if a.Priority != b.Priority {
				continue
			}
			if a.Literal != b.Literal {
				// The ordering already puts the literal first; no warning
				// is needed even when the regex covers the literal.
				continue
			}
			if regexOverlap(a.Pattern, b.Pattern) {
				warnings = append(warnings, &CollisionWarning{
					Name1: a.Name,
					Name2: b.Name,
				})
			}
		}
	}
	return warnings
}

// regexOverlap conservatively reports whether two patterns may accept the
// same string: identical sources, or one's literal prefix is accepted by
// the other.
func regexOverlap(p1, p2 string) bool {
	if p1 == p2 {
		return true
	}
	r1, err1 := syntax.Parse(p1, syntax.Perl)
	r2, err2 := syntax.Parse(p2, syntax.Perl)
	if err1 != nil || err2 != nil {
		return false
	}
	pre1, c1 := r1.Simplify().String(), exactPrefix(r1)
	pre2, c2 := r2.Simplify().String(), exactPrefix(r2)
	if pre1 == pre2 {
		return true
	}
	if c1 != "" && matchesWhole(p2, c1) {
		return true
	}
	if c2 != "" && matchesWhole(p1, c2) {
		return true
	}
	return false
}

// exactPrefix returns the text of a literal-only pattern, or "".
func exactPrefix(r *syntax.Regexp) string {
	if r.Op == syntax.OpLiteral {
		return string(r.Rune)
	}
	if r.Op == syntax.OpConcat && len(r.Sub) > 0 && r.Sub[0].Op == syntax.OpLiteral {
		allLit := true
		for _, sub := range r.Sub {
			if sub.Op != syntax.OpLiteral {
				allLit = false
				break
			}
		}
		if allLit {
			var b strings.Builder
			for _, sub := range r.Sub {
				b.WriteString(string(sub.Rune))
			}
			return b.String()
		}
	}
	return ""
}

func matchesWhole(pattern, text string) bool {
	re, err := regexp.Compile(`\A(?:` + pattern + `)\z`)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}
