package index

import (
	"strings"
	"unicode"
)

const defaultChunkSize = 1000

// SegmentTranscript splits a transcript into retrieval chunks. Paragraphs
// are packed together up to target characters; a paragraph longer than the
// target is split on sentence boundaries so each embedding stays focused.
// Chunk order follows document order.
func SegmentTranscript(text string, target int) []string {
	if target <= 0 {
		target = defaultChunkSize
	}

	chunks := make([]string, 0)
	current := make([]string, 0)
	currentLen := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = current[:0]
			currentLen = 0
		}
	}

	for _, paragraph := range splitParagraphs(text) {
		pieces := []string{paragraph}
		if len(paragraph) > target {
			pieces = splitSentences(paragraph, target)
		}

		for _, piece := range pieces {
			if currentLen+len(piece) > target && currentLen > 0 {
				flush()
			}
			current = append(current, piece)
			currentLen += len(piece)
		}
	}
	flush()

	return chunks
}

func splitParagraphs(text string) []string {
	clean := strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(clean, "\n\n")
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// splitSentences cuts an oversized paragraph into pieces no longer than
// target, preferring sentence-ending punctuation and falling back to a hard
// cut at the last space when a single sentence exceeds the target.
func splitSentences(paragraph string, target int) []string {
	sentences := make([]string, 0)
	start := 0
	runes := []rune(paragraph)
	for i := 0; i < len(runes); i++ {
		if isSentenceEnd(runes, i) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}

	pieces := make([]string, 0, len(sentences))
	var sb strings.Builder
	for _, sentence := range sentences {
		if sb.Len() > 0 && sb.Len()+1+len(sentence) > target {
			pieces = append(pieces, sb.String())
			sb.Reset()
		}
		if len(sentence) > target {
			pieces = append(pieces, hardSplit(sentence, target)...)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(sentence)
	}
	if sb.Len() > 0 {
		pieces = append(pieces, sb.String())
	}

	return pieces
}

func isSentenceEnd(runes []rune, i int) bool {
	switch runes[i] {
	case '.', '!', '?':
	default:
		return false
	}
	// Require following whitespace (or end of text) so decimals and
	// abbreviations mid-token do not split.
	return i+1 >= len(runes) || unicode.IsSpace(runes[i+1])
}

func hardSplit(sentence string, target int) []string {
	pieces := make([]string, 0)
	for len(sentence) > target {
		cut := strings.LastIndex(sentence[:target], " ")
		if cut <= 0 {
			cut = target
		}
		pieces = append(pieces, strings.TrimSpace(sentence[:cut]))
		sentence = strings.TrimSpace(sentence[cut:])
	}
	if sentence != "" {
		pieces = append(pieces, sentence)
	}
	return pieces
}
