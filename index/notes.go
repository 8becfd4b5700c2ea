package index

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// NotesFormat enumerates the lecture-notes payload formats accepted next to
// audio uploads.
type NotesFormat string

const (
	NotesUnknown  NotesFormat = ""
	NotesText     NotesFormat = "text"
	NotesMarkdown NotesFormat = "markdown"
	NotesPDF      NotesFormat = "pdf"
)

// DetectNotesFormat infers a notes format from a MIME type or file name.
func DetectNotesFormat(mimeType, name string) NotesFormat {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	switch base {
	case "application/pdf":
		return NotesPDF
	case "text/markdown":
		return NotesMarkdown
	case "text/plain":
		return NotesText
	}

	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return NotesPDF
	case strings.HasSuffix(lower, ".md"), strings.HasSuffix(lower, ".markdown"):
		return NotesMarkdown
	case strings.HasSuffix(lower, ".txt"):
		return NotesText
	default:
		return NotesUnknown
	}
}

// extractNotesText turns a notes payload into plain transcript-like text.
func extractNotesText(data []byte, format NotesFormat) (string, error) {
	switch format {
	case NotesPDF:
		return extractPDFText(data)
	case NotesText, NotesMarkdown:
		return normalizePlainText(string(data)), nil
	default:
		return "", fmt.Errorf("unsupported notes format %q", format)
	}
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	return normalizePlainText(buf.String()), nil
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
