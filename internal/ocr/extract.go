package ocr

import "regexp"

// numberPattern matches a run of digits with an optional single embedded
// decimal point.
var numberPattern = regexp.MustCompile(`\d+\.?\d*`)

// ExtractReading picks the candidate meter value out of recognized free
// text. When several numeric tokens appear it returns the longest one,
// assuming the meter's readout produces the longest digit string in the
// frame versus incidental numbers like serials or units; ties go to the
// first occurrence. The token is returned verbatim as a string so leading
// zeros survive until the user confirms the value.
//
// The result is a pre-filled suggestion, never authoritative: callers must
// let the user override it.
func ExtractReading(text string) (string, error) {
	tokens := numberPattern.FindAllString(text, -1)
	if len(tokens) == 0 {
		return "", ErrNoNumericContent
	}

	longest := tokens[0]
	for _, t := range tokens[1:] {
		if len(t) > len(longest) {
			longest = t
		}
	}
	return longest, nil
}
