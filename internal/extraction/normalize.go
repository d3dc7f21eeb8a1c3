package extraction

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// minFragmentRun is the shortest run of single characters treated as a fragmented word
const minFragmentRun = 3

var (
	invisibles = strings.NewReplacer(
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\ufeff", "",
		"\u00ad", "",
	)
	dashes = strings.NewReplacer(
		"\u2010", "-",
		"\u2011", "-",
		"\u2012", "-",
		"\u2013", "-",
		"\u2014", "-",
		"\u2015", "-",
		"\u2212", "-",
	)
	lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

	leaderRun   = regexp.MustCompile(`[.•·∙]{2,}`)
	currencyGap = regexp.MustCompile(`([€$£])\s+(\d)`)

	dottedRun = regexp.MustCompile(`[\p{L}\p{N}](?:[.·•∙][\p{L}\p{N}])+[.·•∙]?`)
)

// Normalize repairs raw extracted text into the canonical form rules match against.
// Lines are kept, trimmed and whitespace-collapsed; blank lines are dropped.
// It never fails: if normalization blows up the trimmed raw text is returned.
func Normalize(raw string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Normalization failed, falling back to raw text", "panic", r)
			text = strings.TrimSpace(strings.ToValidUTF8(raw, ""))
		}
	}()

	// Invisibles go before NFKC so a stripped joiner cannot leave an uncomposed mark behind
	raw = strings.ToValidUTF8(raw, "")
	raw = invisibles.Replace(raw)
	raw = norm.NFKC.String(raw)
	raw = lineBreaks.Replace(raw)

	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = normalizeLine(line); line != "" {
			out = append(out, line)
		}
	}
	// Joining runs can bring a base letter next to a mark again
	return norm.NFKC.String(strings.Join(out, "\n"))
}

func normalizeLine(line string) string {
	line = dashes.Replace(line)
	line = leaderRun.ReplaceAllString(line, " ")
	line = currencyGap.ReplaceAllString(line, "$1$2")
	line = strings.Join(strings.Fields(line), " ")

	// Joining one kind of run can expose another, so repeat until stable
	for i := 0; i < 4; i++ {
		next := joinSpaced(joinDotted(line))
		if next == line {
			break
		}
		line = next
	}
	return line
}

// joinDotted removes the separators from every isolated run like "I.n.v.o.i.c.e."
func joinDotted(line string) string {
	locs := dottedRun.FindAllStringIndex(line, -1)
	if locs == nil {
		return line
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if !isolated(line, start, end) || countAlnum(line[start:end]) < minFragmentRun {
			continue
		}
		b.WriteString(line[last:start])
		for _, r := range line[start:end] {
			if isAlnum(r) {
				b.WriteRune(r)
			}
		}
		last = end
	}
	if last == 0 {
		return line
	}
	b.WriteString(line[last:])
	return b.String()
}

// joinSpaced merges runs of single-letter or single-digit words like "I n v o i c e"
func joinSpaced(line string) string {
	words := strings.Split(line, " ")
	out := make([]string, 0, len(words))
	for i := 0; i < len(words); {
		kind := singleKind(words[i])
		if kind == 0 {
			out = append(out, words[i])
			i++
			continue
		}
		j := i
		for j < len(words) && singleKind(words[j]) == kind {
			j++
		}
		if j-i >= minFragmentRun {
			out = append(out, strings.Join(words[i:j], ""))
		} else {
			out = append(out, words[i:j]...)
		}
		i = j
	}
	return strings.Join(out, " ")
}

// singleKind returns 'L' for a one-letter word, 'N' for a one-digit word and 0 otherwise
func singleKind(word string) rune {
	r, size := utf8.DecodeRuneInString(word)
	if size == 0 || size != len(word) {
		return 0
	}
	switch {
	case unicode.IsLetter(r):
		return 'L'
	case unicode.IsDigit(r):
		return 'N'
	}
	return 0
}

// isolated reports whether the span is not glued to a neighbouring letter or digit
func isolated(line string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(line[:start]); isAlnum(r) {
			return false
		}
	}
	if end < len(line) {
		if r, _ := utf8.DecodeRuneInString(line[end:]); isAlnum(r) {
			return false
		}
	}
	return true
}

func countAlnum(s string) int {
	n := 0
	for _, r := range s {
		if isAlnum(r) {
			n++
		}
	}
	return n
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// hasText reports whether the text contains at least one letter or digit
func hasText(text string) bool {
	return strings.IndexFunc(text, isAlnum) >= 0
}
