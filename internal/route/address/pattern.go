package address

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Pattern is a compiled address pattern.
// Patterns are immutable and safe for concurrent use.
type Pattern struct {
	source   string
	segments []Segment
	literal  bool
}

// Compile parses pattern into a matcher.
// The returned error is a *PatternError carrying the offset and reason of the
// first problem found.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, &PatternError{Pattern: pattern, Offset: 0, Reason: "empty pattern"}
	}
	if pattern[0] != '/' {
		return nil, &PatternError{Pattern: pattern, Offset: 0, Reason: "pattern must start with '/'"}
	}

	p := &Pattern{source: pattern, literal: true}
	ps := &parser{src: pattern, pos: 1}
	for {
		seg, err := ps.segment()
		if err != nil {
			return nil, err
		}
		p.segments = append(p.segments, seg)
		if !seg.literal {
			p.literal = false
		}
		if ps.pos >= len(ps.src) {
			break
		}
		ps.pos++ // skip '/'
	}
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Match compiles pattern and matches it against the concrete address addr.
// An invalid pattern fails with ErrInvalidPattern and an invalid address with
// ErrInvalidAddress.
func Match(pattern, addr string) (bool, error) {
	p, err := Compile(pattern)
	if err != nil {
		return false, err
	}
	return p.MatchString(addr)
}

// String returns the pattern source text.
func (p *Pattern) String() string {
	return p.source
}

// IsLiteral returns true if the pattern contains no wildcards.
func (p *Pattern) IsLiteral() bool {
	return p.literal
}

// SegmentCount returns the number of segments in the pattern.
func (p *Pattern) SegmentCount() int {
	return len(p.segments)
}

// Segments returns the compiled segments.
func (p *Pattern) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// Match returns true if the address matches the pattern.
// Segments are compared pairwise and the walk stops at the first mismatch.
// Addresses with a different segment count never match.
func (p *Pattern) Match(a Address) bool {
	s := string(a)
	if s == "" || s[0] != '/' {
		return false
	}
	if p.literal {
		return s == p.source
	}

	rest := s[1:]
	last := len(p.segments) - 1
	for i := range p.segments {
		var part string
		idx := strings.IndexByte(rest, '/')
		switch {
		case idx < 0 && i != last:
			return false // address is shorter
		case idx >= 0 && i == last:
			return false // address is longer
		case idx < 0:
			part, rest = rest, ""
		default:
			part, rest = rest[:idx], rest[idx+1:]
		}
		if !p.segments[i].Match(part) {
			return false
		}
	}
	return true
}

// MatchString validates s as a concrete address and matches it.
func (p *Pattern) MatchString(s string) (bool, error) {
	if err := Validate(s); err != nil {
		return false, err
	}
	return p.Match(Address(s)), nil
}

// Segment is one compiled segment of a pattern.
type Segment struct {
	raw     string
	tokens  []token
	literal bool
}

// Raw returns the segment source text.
func (s Segment) Raw() string {
	return s.raw
}

// IsLiteral returns true if the segment contains no wildcards.
func (s Segment) IsLiteral() bool {
	return s.literal
}

// Match returns true if text (a single address segment) matches.
func (s Segment) Match(text string) bool {
	if s.literal {
		return s.raw == text
	}
	var failed map[int]struct{}
	return matchTokens(s.tokens, 0, text, 0, &failed)
}

type tokenKind uint8

const (
	tokenLiteral tokenKind = iota
	tokenAnyChar
	tokenAnyRun
	tokenClass
	tokenAlternation
)

type token struct {
	kind         tokenKind
	text         string
	class        charClass
	alternatives []string
}

type runeRange struct {
	lo, hi rune
}

type charClass struct {
	negated bool
	ranges  []runeRange
}

func (c charClass) contains(r rune) bool {
	in := false
	for _, rr := range c.ranges {
		if r >= rr.lo && r <= rr.hi {
			in = true
			break
		}
	}
	return in != c.negated
}

// matchTokens matches toks[ti:] against text[si:].
// Branch points ("*" and alternations) record failed (token, offset) states in
// failed so that repeated wildcards stay polynomial.
func matchTokens(toks []token, ti int, text string, si int, failed *map[int]struct{}) bool {
	for ti < len(toks) {
		t := &toks[ti]
		switch t.kind {
		case tokenLiteral:
			if !strings.HasPrefix(text[si:], t.text) {
				return false
			}
			si += len(t.text)
			ti++

		case tokenAnyChar:
			if si >= len(text) {
				return false
			}
			_, size := utf8.DecodeRuneInString(text[si:])
			si += size
			ti++

		case tokenClass:
			if si >= len(text) {
				return false
			}
			r, size := utf8.DecodeRuneInString(text[si:])
			if !t.class.contains(r) {
				return false
			}
			si += size
			ti++

		case tokenAlternation:
			key := ti*(len(text)+1) + si
			if isFailed(*failed, key) {
				return false
			}
			for _, alt := range t.alternatives {
				if strings.HasPrefix(text[si:], alt) && matchTokens(toks, ti+1, text, si+len(alt), failed) {
					return true
				}
			}
			markFailed(failed, key)
			return false

		case tokenAnyRun:
			if ti == len(toks)-1 {
				return true
			}
			key := ti*(len(text)+1) + si
			if isFailed(*failed, key) {
				return false
			}
			for k := si; ; {
				if matchTokens(toks, ti+1, text, k, failed) {
					return true
				}
				if k >= len(text) {
					break
				}
				_, size := utf8.DecodeRuneInString(text[k:])
				k += size
			}
			markFailed(failed, key)
			return false
		}
	}
	return si == len(text)
}

func isFailed(failed map[int]struct{}, key int) bool {
	if failed == nil {
		return false
	}
	_, ok := failed[key]
	return ok
}

func markFailed(failed *map[int]struct{}, key int) {
	if *failed == nil {
		*failed = make(map[int]struct{})
	}
	(*failed)[key] = struct{}{}
}

// parser compiles pattern text one segment at a time.
type parser struct {
	src string
	pos int
}

func (p *parser) fail(offset int, reason string) error {
	return &PatternError{Pattern: p.src, Offset: offset, Reason: reason}
}

// segment parses up to the next '/' or the end of the pattern.
func (p *parser) segment() (Segment, error) {
	start := p.pos
	var toks []token
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			toks = append(toks, token{kind: tokenLiteral, text: lit.String()})
			lit.Reset()
		}
	}

loop:
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		switch r {
		case '/':
			break loop
		case '?':
			flush()
			toks = append(toks, token{kind: tokenAnyChar})
			p.pos += size
		case '*':
			flush()
			// Adjacent stars are equivalent to one.
			if n := len(toks); n == 0 || toks[n-1].kind != tokenAnyRun {
				toks = append(toks, token{kind: tokenAnyRun})
			}
			p.pos += size
		case '[':
			flush()
			cls, err := p.class()
			if err != nil {
				return Segment{}, err
			}
			toks = append(toks, token{kind: tokenClass, class: cls})
		case '{':
			flush()
			alts, err := p.alternation()
			if err != nil {
				return Segment{}, err
			}
			toks = append(toks, token{kind: tokenAlternation, alternatives: alts})
		case ']':
			return Segment{}, p.fail(p.pos, "unmatched ']'")
		case '}':
			return Segment{}, p.fail(p.pos, "unmatched '}'")
		case '#', ',':
			return Segment{}, p.fail(p.pos, "reserved character "+quoteRune(r))
		default:
			if r == utf8.RuneError && size == 1 {
				return Segment{}, p.fail(p.pos, "invalid UTF-8")
			}
			if unicode.IsSpace(r) || unicode.IsControl(r) {
				return Segment{}, p.fail(p.pos, "whitespace or control character")
			}
			lit.WriteRune(r)
			p.pos += size
		}
	}
	flush()

	seg := Segment{raw: p.src[start:p.pos], tokens: toks}
	seg.literal = len(toks) == 0 || (len(toks) == 1 && toks[0].kind == tokenLiteral)
	if seg.literal {
		seg.tokens = nil
	}
	return seg, nil
}

// class parses a bracket expression starting at '['.
func (p *parser) class() (charClass, error) {
	open := p.pos
	p.pos++ // skip '['

	var cls charClass
	if p.pos < len(p.src) && p.src[p.pos] == '!' {
		cls.negated = true
		p.pos++
	}

	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		switch r {
		case ']':
			if len(cls.ranges) == 0 {
				return charClass{}, p.fail(p.pos, "empty character class")
			}
			p.pos += size
			return cls, nil
		case '/':
			return charClass{}, p.fail(p.pos, "'/' inside character class")
		case '[':
			return charClass{}, p.fail(p.pos, "nested '[' inside character class")
		}
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return charClass{}, p.fail(p.pos, "whitespace or control character")
		}
		at := p.pos
		p.pos += size

		// A '-' is a range operator only between two characters.
		if p.pos+1 < len(p.src) && p.src[p.pos] == '-' && p.src[p.pos+1] != ']' {
			hi, hiSize := utf8.DecodeRuneInString(p.src[p.pos+1:])
			if hi == '/' || hi == '[' {
				return charClass{}, p.fail(p.pos+1, "invalid range end "+quoteRune(hi))
			}
			if hi < r {
				return charClass{}, p.fail(at, "invalid range "+quoteRune(r)+"-"+quoteRune(hi))
			}
			cls.ranges = append(cls.ranges, runeRange{lo: r, hi: hi})
			p.pos += 1 + hiSize
			continue
		}
		cls.ranges = append(cls.ranges, runeRange{lo: r, hi: r})
	}
	return charClass{}, p.fail(open, "unterminated character class")
}

// alternation parses a brace expression starting at '{'.
func (p *parser) alternation() ([]string, error) {
	open := p.pos
	p.pos++ // skip '{'

	var alts []string
	var cur strings.Builder
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		switch r {
		case '}':
			alts = append(alts, cur.String())
			p.pos += size
			return alts, nil
		case ',':
			alts = append(alts, cur.String())
			cur.Reset()
			p.pos += size
			continue
		case '/':
			return nil, p.fail(p.pos, "'/' inside alternation")
		case '{', '[', ']', '*', '?', '#':
			return nil, p.fail(p.pos, quoteRune(r)+" inside alternation")
		}
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return nil, p.fail(p.pos, "whitespace or control character")
		}
		cur.WriteRune(r)
		p.pos += size
	}
	return nil, p.fail(open, "unterminated alternation")
}
