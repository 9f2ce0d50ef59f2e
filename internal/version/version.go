// Package version turns free-form version strings into numeric-aware comparison keys.
//
// A version is split into maximal runs of digits and maximal runs of other characters.
// The separators '.', '-' and '_' only delimit runs and are dropped. Digit runs compare
// numerically with arbitrary length, other runs compare as text, and a digit run sorts
// above a text run at the same position. A key that is a prefix of another sorts first,
// so the empty key is the lowest of all.
package version

import (
	"strconv"
	"strings"
)

type token struct {
	numeric bool
	value   string // digits without leading zeros when numeric
}

// Key is an ordered comparison key. The zero value is the empty key.
type Key struct {
	tokens []token
}

func isSeparator(r rune) bool {
	return r == '.' || r == '-' || r == '_'
}

// Parse never fails: every input produces some key.
func Parse(version string) Key {
	var (
		tokens  []token
		current strings.Builder
		numeric bool
	)

	flush := func() {
		if current.Len() == 0 {
			return
		}

		value := current.String()
		if numeric {
			value = strings.TrimLeft(value, "0")
		}

		tokens = append(tokens, token{numeric: numeric, value: value})
		current.Reset()
	}

	for _, r := range version {
		switch {
		case isSeparator(r):
			flush()
		case r >= '0' && r <= '9':
			if current.Len() > 0 && !numeric {
				flush()
			}
			numeric = true
			current.WriteRune(r)
		default:
			if current.Len() > 0 && numeric {
				flush()
			}
			numeric = false
			current.WriteRune(r)
		}
	}
	flush()

	return Key{tokens: tokens}
}

func compareToken(a, b token) int {
	switch {
	case a.numeric && b.numeric:
		if len(a.value) != len(b.value) {
			if len(a.value) < len(b.value) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.value, b.value)
	case a.numeric:
		return 1
	case b.numeric:
		return -1
	default:
		return strings.Compare(a.value, b.value)
	}
}

// Compare returns -1, 0 or 1.
func (k Key) Compare(other Key) int {
	n := min(len(k.tokens), len(other.tokens))

	for i := 0; i < n; i++ {
		if c := compareToken(k.tokens[i], other.tokens[i]); c != 0 {
			return c
		}
	}

	switch {
	case len(k.tokens) < len(other.tokens):
		return -1
	case len(k.tokens) > len(other.tokens):
		return 1
	}

	return 0
}

func (k Key) Less(other Key) bool {
	return k.Compare(other) < 0
}

func (k Key) IsEmpty() bool {
	return len(k.tokens) == 0
}

func (k Key) String() string {
	parts := make([]string, 0, len(k.tokens))
	for _, t := range k.tokens {
		if t.numeric && t.value == "" {
			parts = append(parts, "0")

			continue
		}
		parts = append(parts, t.value)
	}

	return strings.Join(parts, ".")
}

// Compare parses both strings and compares the keys.
func Compare(a, b string) int {
	return Parse(a).Compare(Parse(b))
}

// HostVersion is the major.minor pair reported by the host application.
type HostVersion struct {
	Major int
	Minor int
}

// ParseHost reads "major.minor[...]" from a host version string such as "2.5.0.1".
func ParseHost(s string) (HostVersion, bool) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return HostVersion{}, false
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return HostVersion{}, false
	}

	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return HostVersion{}, false
	}

	return HostVersion{Major: major, Minor: minor}, true
}
