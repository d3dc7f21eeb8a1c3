package extraction

import (
	"strings"
)

// Extraction is the result of running a rule set over normalized text
type Extraction struct {
	Matches map[Field]FieldMatch
	// Ambiguous lists fields whose winning rule found conflicting values
	Ambiguous []Field
}

// Extractor applies an ordered rule set to normalized text
type Extractor struct {
	rules RuleSet
}

// NewExtractor creates an Extractor for the given rules
func NewExtractor(rules RuleSet) *Extractor {
	return &Extractor{rules: rules}
}

type candidate struct {
	match    FieldMatch
	distance int
}

// Extract finds at most one match per field
func (e *Extractor) Extract(text string) Extraction {
	out := Extraction{Matches: make(map[Field]FieldMatch)}

	for _, field := range AllFields {
		for _, rule := range e.rules.ForField(field) {
			cands := rule.candidates(text)
			if len(cands) == 0 {
				continue
			}
			if rule.Unique && !agree(cands) {
				out.Ambiguous = append(out.Ambiguous, field)
				break
			}
			out.Matches[field] = closest(cands).match
			break
		}
	}
	return out
}

// candidates returns every value the rule recognizes, one per label occurrence
func (r Rule) candidates(text string) []candidate {
	if r.Label == nil {
		var cands []candidate
		for _, loc := range r.Value.FindAllStringSubmatchIndex(text, -1) {
			start, end := valueSpan(loc)
			cands = append(cands, candidate{match: r.match(text, start, end)})
		}
		return cands
	}

	var cands []candidate
	for _, label := range r.Label.FindAllStringIndex(text, -1) {
		if r.excluded(text, label[0]) {
			continue
		}
		from := label[1]
		to := windowEnd(text, from, r.Window)
		loc := r.Value.FindStringSubmatchIndex(text[from:to])
		if loc == nil {
			continue
		}
		start, end := valueSpan(loc)
		cands = append(cands, candidate{
			match:    r.match(text, from+start, from+end),
			distance: start,
		})
	}
	return cands
}

func (r Rule) match(text string, start, end int) FieldMatch {
	return FieldMatch{
		Field:  r.Field,
		Raw:    strings.TrimSpace(text[start:end]),
		Offset: start,
		RuleID: r.ID,
	}
}

// excluded checks the text before a label, on the same line, against the exclude pattern
func (r Rule) excluded(text string, labelStart int) bool {
	if r.Exclude == nil {
		return false
	}
	before := text[:labelStart]
	if nl := strings.LastIndexByte(before, '\n'); nl >= 0 {
		before = before[nl+1:]
	}
	return r.Exclude.MatchString(before)
}

// valueSpan picks the first capture group when the pattern has one
func valueSpan(loc []int) (int, int) {
	if len(loc) >= 4 && loc[2] >= 0 {
		return loc[2], loc[3]
	}
	return loc[0], loc[1]
}

func windowEnd(text string, from, window int) int {
	if window <= 0 {
		window = defaultWindow
	}
	end := from + window
	if end >= len(text) {
		return len(text)
	}
	if nl := strings.IndexByte(text[end:], '\n'); nl >= 0 {
		return end + nl
	}
	return len(text)
}

// closest picks the candidate nearest its label, earliest on ties
func closest(cands []candidate) candidate {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.distance < best.distance || (c.distance == best.distance && c.match.Offset < best.match.Offset) {
			best = c
		}
	}
	return best
}

func agree(cands []candidate) bool {
	first := canonicalValue(cands[0].match.Raw)
	for _, c := range cands[1:] {
		if canonicalValue(c.match.Raw) != first {
			return false
		}
	}
	return true
}

func canonicalValue(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}
