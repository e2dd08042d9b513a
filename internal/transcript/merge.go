// Package transcript builds readable conversation transcripts from raw
// user and assistant turn fragments.
package transcript

import (
	"strings"
)

const (
	userPrefix      = "User: "
	assistantPrefix = "AI: "
)

// SplitTurns splits a fragment into individual turns, one per non-blank line.
func SplitTurns(text string) []string {
	if text == "" {
		return nil
	}
	var turns []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			turns = append(turns, trimmed)
		}
	}
	return turns
}

// Merge interleaves user and assistant turns by index into a single
// transcript: user turn i, then assistant turn i, skipping a side once its
// turns are exhausted. Interleaving is positional, not chronological; when
// both sides carry skewed turn counts the output degrades to index order.
func Merge(userText, aiText string) string {
	userTurns := SplitTurns(userText)
	aiTurns := SplitTurns(aiText)
	if len(userTurns) == 0 && len(aiTurns) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(len(userText) + len(aiText) + (len(userTurns)+len(aiTurns))*len(userPrefix))

	n := len(userTurns)
	if len(aiTurns) > n {
		n = len(aiTurns)
	}
	for i := 0; i < n; i++ {
		if i < len(userTurns) {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(userPrefix)
			b.WriteString(userTurns[i])
		}
		if i < len(aiTurns) {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(assistantPrefix)
			b.WriteString(aiTurns[i])
		}
	}
	return b.String()
}
