// Package version parses dotted integer versions and classifies a detected
// version against a reference minimum.
package version

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/chevah/pythia/internal/failure"
)

var dottedRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)

// Version is an immutable sequence of non-negative integers.
type Version struct {
	parts  []int
	fields []string
	raw    string
}

// Parse parses a string made only of digits and dots. Anything else is a
// malformed version, which callers must treat as fatal.
func Parse(s string) (Version, error) {
	if !dottedRe.MatchString(s) {
		return Version{}, &failure.Error{
			Code:     failure.MalformedVersion,
			Msg:      "version should only have numbers and periods",
			Detected: strconv.Quote(s),
		}
	}
	fields := strings.Split(s, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Version{}, failure.Wrap(failure.MalformedVersion, err, "version component %q", f)
		}
		parts[i] = n
	}
	return Version{parts: parts, fields: fields, raw: s}, nil
}

// MustParse is Parse for compile-time constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Len returns the number of components.
func (v Version) Len() int { return len(v.parts) }

// Part returns component i, or 0 past the end.
func (v Version) Part(i int) int {
	if i < 0 || i >= len(v.parts) {
		return 0
	}
	return v.parts[i]
}

// Field returns component i as written, leading zeros kept, or "" past the
// end.
func (v Version) Field(i int) string {
	if i < 0 || i >= len(v.fields) {
		return ""
	}
	return v.fields[i]
}

func (v Version) String() string { return v.raw }

// Compare orders v against o over all components, padding the shorter one
// with zeros. It returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	n := max(len(v.parts), len(o.parts))
	for i := 0; i < n; i++ {
		a, b := v.Part(i), o.Part(i)
		switch {
		case a > b:
			return 1
		case a < b:
			return -1
		}
	}
	return 0
}
