package channel

import (
	"fmt"
	"strings"
)

const (
	// singlePartLimit is the classic single-SMS length.
	singlePartLimit = 160
	// richLimit is the provider ceiling for one MMS-equivalent message.
	richLimit = 1600
	// chunkLimit is the maximum content length of one multipart chunk,
	// leaving headroom for the " (i/n)" suffix.
	chunkLimit = 150
	// minBreakRatio is how far into a chunk a word boundary must sit to be
	// preferred over a hard cut.
	minBreakRatio = 0.7
)

// useRichFormat reports whether body should go out as a single
// MMS-equivalent message: formatting needs (line breaks) or length beyond a
// single SMS, while still within the provider's rich message ceiling.
func useRichFormat(body string) bool {
	hasLineBreaks := strings.Contains(body, "\n")
	isLong := len(body) > singlePartLimit
	return (hasLineBreaks || isLong) && len(body) <= richLimit
}

// chunkBody splits body into parts of at most limit characters. The split
// prefers the last space at or before the limit, but only when that break
// point is no earlier than minBreakRatio of the limit; otherwise it hard
// cuts. The space is kept at the end of the part so concatenating all parts
// reproduces the body exactly.
func chunkBody(body string, limit int) []string {
	if len(body) <= limit {
		return []string{body}
	}

	minBreak := int(minBreakRatio * float64(limit))
	var parts []string
	rest := body
	for len(rest) > limit {
		cut := limit
		if idx := strings.LastIndexByte(rest[:limit], ' '); idx >= minBreak {
			cut = idx + 1
		}
		parts = append(parts, rest[:cut])
		rest = rest[cut:]
	}
	if len(rest) > 0 {
		parts = append(parts, rest)
	}
	return parts
}

// partSuffix returns the " (i/n)" marker appended to multipart chunks, or
// the empty string for single-part sends.
func partSuffix(i, n int) string {
	if n <= 1 {
		return ""
	}
	return fmt.Sprintf(" (%d/%d)", i, n)
}
