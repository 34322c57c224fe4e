package chunker

import (
	"crypto/md5"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const ideographicStop = '。'

// ChunkID builds the stable identifier of a chunk from its document, its
// position and a digest of its content.
func ChunkID(document string, index int, text string) string {
	sum := md5.Sum([]byte(text))
	return fmt.Sprintf("%s_chunk_%03d_%x", document, index, sum[:4])
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// SplitSentences cuts text after every ideographic full stop and after an
// ASCII full stop followed by whitespace or the end of the text, so decimals
// stay intact. Segments keep their terminator; segments with no text
// besides the terminator are dropped.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0

	for i, r := range runes {
		cut := r == ideographicStop ||
			r == '.' && (i+1 == len(runes) || unicode.IsSpace(runes[i+1]))
		if !cut {
			continue
		}
		if seg := strings.TrimSpace(string(runes[start : i+1])); !blankSentence(seg) {
			out = append(out, seg)
		}
		start = i + 1
	}

	if seg := strings.TrimSpace(string(runes[start:])); !blankSentence(seg) {
		out = append(out, seg)
	}
	return out
}

func blankSentence(s string) bool {
	return strings.TrimSpace(strings.TrimRight(s, ".。")) == ""
}

// joinSentences glues b after a, restoring the space that followed an
// ASCII full stop.
func joinSentences(a, b string) string {
	if strings.HasSuffix(a, ".") {
		return a + " " + b
	}
	return a + b
}

// hardSplit cuts segments longer than limit into limit-sized pieces on rune
// boundaries.
func hardSplit(segments []string, limit int) []string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		runes := []rune(s)
		for len(runes) > limit {
			if piece := strings.TrimSpace(string(runes[:limit])); piece != "" {
				out = append(out, piece)
			}
			runes = runes[limit:]
		}
		if piece := strings.TrimSpace(string(runes)); piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

// coalesce runs greedy left-to-right merge passes until a pass merges
// nothing. Each unconsumed segment is merged with the nearest later
// unconsumed segment that accept allows; the result takes the place of
// the first one.
func coalesce(segments []string, accept func(a, b, combined int) bool) []string {
	for {
		merged := false
		consumed := make([]bool, len(segments))
		out := make([]string, 0, len(segments))

		for i := range segments {
			if consumed[i] {
				continue
			}
			consumed[i] = true
			cur := segments[i]

			for j := i + 1; j < len(segments); j++ {
				if consumed[j] {
					continue
				}
				candidate := joinSentences(cur, segments[j])
				if accept(runeLen(cur), runeLen(segments[j]), runeLen(candidate)) {
					cur = candidate
					consumed[j] = true
					merged = true
					break
				}
			}
			out = append(out, cur)
		}

		segments = out
		if !merged {
			return segments
		}
	}
}

// SplitLines returns the non-blank lines of text.
func SplitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
