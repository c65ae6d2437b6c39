package version

import "strings"

// Classification is the outcome of comparing a detected version with a
// reference.
type Classification int

const (
	Older Classification = iota - 1
	Equal
	Newer
)

func (c Classification) String() string {
	switch c {
	case Older:
		return "older"
	case Equal:
		return "equal"
	case Newer:
		return "newer"
	default:
		return "invalid"
	}
}

// Result holds a comparison outcome and the raw components that took part in
// it, concatenated without separators ("18.04" against "16.04" gives "1804").
// Truncated is a naming token for platform tags, not a number.
type Result struct {
	Classification Classification
	Truncated      string
}

// Compare classifies raw against reference looking only at the first
// len(reference) components. Components of raw past that length are ignored;
// components missing from raw count as zero and add nothing to Truncated.
// A malformed raw or reference string is a fatal error.
func Compare(raw, reference string) (Result, error) {
	r, err := Parse(raw)
	if err != nil {
		return Result{}, err
	}
	ref, err := Parse(reference)
	if err != nil {
		return Result{}, err
	}
	return CompareVersions(r, ref), nil
}

// CompareVersions is Compare on already parsed values.
func CompareVersions(raw, reference Version) Result {
	var (
		b     strings.Builder
		class = Equal
	)
	for i := 0; i < reference.Len(); i++ {
		b.WriteString(raw.Field(i))
		if class != Equal {
			continue
		}
		switch a, m := raw.Part(i), reference.Part(i); {
		case a > m:
			class = Newer
		case a < m:
			class = Older
		}
	}
	return Result{Classification: class, Truncated: b.String()}
}

// AtLeast reports whether raw meets the reference minimum.
func AtLeast(raw, reference string) (bool, error) {
	res, err := Compare(raw, reference)
	if err != nil {
		return false, err
	}
	return res.Classification != Older, nil
}
