package translator

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	maxTermWords      = 3
	maxTermRunes      = 20
	maxRelevantTerms  = 5
	termPairSeparator = "→"
	termListSeparator = "; "
)

// Terms maps short source phrases to the translation chosen for them so
// later items keep the same wording. It grows monotonically during a job.
type Terms map[string]string

// Learn records source→translated when both are short enough to be a term.
func (t Terms) Learn(source, translated string) {
	source = strings.TrimSpace(source)
	translated = strings.TrimSpace(translated)
	if source == "" || translated == "" {
		return
	}
	if len(strings.Fields(source)) > maxTermWords || utf8.RuneCountInString(translated) > maxTermRunes {
		return
	}
	t[source] = translated
}

// Relevant lists the known terms that occur in text, case-insensitively,
// as "source→target" pairs joined by "; ". At most five are returned, in
// key order.
func (t Terms) Relevant(text string) string {
	if len(t) == 0 {
		return ""
	}
	lower := strings.ToLower(text)

	keys := make([]string, 0, len(t))
	for k := range t {
		if strings.Contains(lower, strings.ToLower(k)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > maxRelevantTerms {
		keys = keys[:maxRelevantTerms]
	}

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + termPairSeparator + t[k]
	}
	return strings.Join(pairs, termListSeparator)
}
