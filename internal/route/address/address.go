package address

import (
	"strings"
	"unicode"
	"unique"
)

// Address is a concrete hierarchical event name such as "/synth/1/freq".
// Addresses are compared by value.
type Address string

// Separator separates address segments and starts every address.
const Separator = "/"

// reservedChars may not appear in a concrete address.
const reservedChars = "#*,?[]{}"

// metaChars mark an address as a pattern.
const metaChars = "*?[]{}"

// IsPattern reports whether s contains pattern metacharacters. Such an
// address is matched against registered patterns instead of by them.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, metaChars)
}

// Intern returns the canonical copy of s as an Address.
// Interned addresses share backing memory, which helps when the same event
// names are produced over and over. Interning never changes equality.
func Intern(s string) Address {
	return Address(unique.Make(s).Value())
}

// Parse validates s as a concrete address and returns it interned.
func Parse(s string) (Address, error) {
	if err := Validate(s); err != nil {
		return "", err
	}
	return Intern(s), nil
}

// ParseTarget parses a send target: a concrete address, or a pattern
// address when s contains metacharacters. Pattern targets are compiled to
// check their syntax.
func ParseTarget(s string) (Address, error) {
	if !IsPattern(s) {
		return Parse(s)
	}
	if _, err := Compile(s); err != nil {
		return "", err
	}
	return Address(s), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Validate reports whether s is a well-formed concrete address.
// A concrete address starts with "/" and contains no whitespace, control
// characters or pattern metacharacters.
func Validate(s string) error {
	if s == "" {
		return &AddressError{Address: s, Offset: 0, Reason: "empty address"}
	}
	if s[0] != '/' {
		return &AddressError{Address: s, Offset: 0, Reason: "address must start with '/'"}
	}
	for i, r := range s {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			return &AddressError{Address: s, Offset: i, Reason: "whitespace or control character"}
		case strings.ContainsRune(reservedChars, r):
			return &AddressError{Address: s, Offset: i, Reason: "reserved character " + quoteRune(r)}
		}
	}
	return nil
}

// String returns the address as a string.
func (a Address) String() string {
	return string(a)
}

// IsValid returns true if the address is a well-formed concrete address.
func (a Address) IsValid() bool {
	return Validate(string(a)) == nil
}

// Segments returns the address split by the separator, without the leading
// empty element. "/a/b" yields ["a" "b"] and "/" yields [""].
func (a Address) Segments() []string {
	return Split(string(a))
}

// SegmentCount returns the number of segments in the address.
func (a Address) SegmentCount() int {
	if a == "" {
		return 0
	}
	return strings.Count(string(a), Separator)
}

// Parent returns the address without its last segment.
// Returns an empty address if there is no parent.
//
// Example: "/synth/1/freq" -> "/synth/1"
func (a Address) Parent() Address {
	s := string(a)
	idx := strings.LastIndex(s, Separator)
	if idx <= 0 {
		return ""
	}
	return Address(s[:idx])
}

// Child returns a child address by appending a segment.
//
// Example: "/synth".Child("1") -> "/synth/1"
func (a Address) Child(segment string) Address {
	return Address(string(a) + Separator + segment)
}

// Base returns the last segment of the address.
//
// Example: "/synth/1/freq" -> "freq"
func (a Address) Base() string {
	s := string(a)
	idx := strings.LastIndex(s, Separator)
	if idx < 0 {
		return s
	}
	return s[idx+1:]
}

// HasPrefix returns true if the address starts with the given prefix on a
// segment boundary.
func (a Address) HasPrefix(prefix Address) bool {
	if prefix == "" {
		return true
	}
	s := string(a)
	p := string(prefix)
	if !strings.HasPrefix(s, p) {
		return false
	}
	if len(s) == len(p) {
		return true
	}
	return s[len(p)] == '/'
}

// Join joins segments into an address.
func Join(segments ...string) Address {
	return Address(Separator + strings.Join(segments, Separator))
}

// Split splits an address or pattern string into segments, dropping the
// leading separator. It returns nil for strings that do not start with "/".
func Split(s string) []string {
	if s == "" || s[0] != '/' {
		return nil
	}
	return strings.Split(s[1:], Separator)
}

func quoteRune(r rune) string {
	return "'" + string(r) + "'"
}
