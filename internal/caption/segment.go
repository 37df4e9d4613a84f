package caption

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// Segment splits one page's recognized text into caption strings.
//
// Text is split on paragraph breaks (two or more newlines) and after a
// sentence terminator ('.', '!' or '?') followed by whitespace. Results are
// trimmed and empty strings are dropped.
func Segment(text string) []string {
	text = strings.ReplaceAll(text, "\r", "")

	ret := make([]string, 0)
	for _, para := range paragraphBreak.Split(text, -1) {
		ret = appendSentences(ret, para)
	}
	return ret
}

func appendSentences(ret []string, para string) []string {
	start := 0
	for i := 0; i < len(para); {
		r, size := utf8.DecodeRuneInString(para[i:])
		i += size
		if !isTerminal(r) {
			continue
		}

		end := i
		for end < len(para) {
			next, nextSize := utf8.DecodeRuneInString(para[end:])
			if !unicode.IsSpace(next) {
				break
			}
			end += nextSize
		}
		if end == i {
			continue
		}

		ret = appendTrimmed(ret, para[start:i])
		start = end
		i = end
	}
	return appendTrimmed(ret, para[start:])
}

func appendTrimmed(ret []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ret
	}
	return append(ret, s)
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
