// Package reconcile fuses generated model output with retrieved reference
// data and embedding similarity into final, consistency-checked deltas and
// flags for one dialogue turn.
package reconcile

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	responseRe = regexp.MustCompile(`(?s)<RESPONSE>(.*?)</RESPONSE>`)
	deltaRe    = regexp.MustCompile(`<DELTA\s+([^/>]*)/?>`)
	flagRe     = regexp.MustCompile(`<FLAG\s+([^/>]*)/?>`)
	attrRe     = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*=\s*"([^"]*)"`)
)

// Extracted holds the tag-level parse of one generated text.
type Extracted struct {
	// Response is the candidate utterance. When the <RESPONSE> tag is
	// absent the whole trimmed text is used and ResponseFound is false.
	Response      string
	ResponseFound bool

	// Deltas holds numeric-parseable <DELTA> attributes; non-numeric
	// attribute values are preserved in DeltaStrings.
	Deltas       map[string]float64
	DeltaStrings map[string]string

	// Flags holds the numeric <FLAG> attribute scores.
	Flags map[string]float64
}

// ExtractTags parses the <RESPONSE>, <DELTA> and <FLAG> tags out of raw
// generated text. Absent tags yield empty sets, never an error.
func ExtractTags(raw string) Extracted {
	out := Extracted{
		Deltas:       map[string]float64{},
		DeltaStrings: map[string]string{},
		Flags:        map[string]float64{},
	}

	if m := responseRe.FindStringSubmatch(raw); m != nil {
		out.Response = strings.TrimSpace(m[1])
		out.ResponseFound = true
	} else {
		out.Response = strings.TrimSpace(stripTags(raw))
	}

	if m := deltaRe.FindStringSubmatch(raw); m != nil {
		for key, val := range parseAttrs(m[1]) {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				out.Deltas[key] = f
			} else {
				out.DeltaStrings[key] = val
			}
		}
	}

	if m := flagRe.FindStringSubmatch(raw); m != nil {
		for key, val := range parseAttrs(m[1]) {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				out.Flags[key] = f
			}
		}
	}

	return out
}

func parseAttrs(s string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		attrs[m[1]] = m[2]
	}
	return attrs
}

var anyTagRe = regexp.MustCompile(`</?[A-Z]+[^>]*>`)

// stripTags removes stray tag markup so a tagless response does not leak
// <DELTA>/<FLAG> fragments into the player-visible text.
func stripTags(raw string) string {
	return anyTagRe.ReplaceAllString(raw, "")
}
