package chunkindex

import (
	"strings"

	"github.com/notescout/notescout/internal/vault"
)

// DefaultMaxChunkChars bounds one chunk of note text, the unit of
// embedding and persisted storage.
const DefaultMaxChunkChars = 2000

// Chunk pairs a persisted record skeleton with the chunk text used for
// embedding. Text itself is never persisted.
type Chunk struct {
	Record ChunkRecord
	Text   string
}

// ChunkNote splits a note into embedding-sized chunks. Markdown heading
// boundaries are preferred split points; oversized sections fall back to
// paragraph boundaries and finally to a hard character split.
func ChunkNote(doc vault.NoteDocument, maxChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}

	var texts []string
	for _, section := range splitSections(doc.Content) {
		if len(section) <= maxChars {
			texts = append(texts, section)
			continue
		}
		texts = append(texts, splitLong(section, maxChars)...)
	}

	chunks := make([]Chunk, 0, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Record: ChunkRecord{
				ID:    ChunkID(doc.Path, text),
				Path:  doc.Path,
				Title: doc.Title,
				MTime: Millis(doc.MTime),
				CTime: Millis(doc.CTime),
			},
			Text: text,
		})
	}
	return chunks
}

// splitSections cuts content at markdown headings, keeping each heading
// with its section body.
func splitSections(content string) []string {
	lines := strings.Split(content, "\n")
	var sections []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		section := strings.TrimSpace(strings.Join(current, "\n"))
		if section != "" {
			sections = append(sections, section)
		}
		current = current[:0]
	}

	for _, line := range lines {
		if isHeading(line) {
			flush()
		}
		current = append(current, line)
	}
	flush()
	return sections
}

func isHeading(line string) bool {
	trimmed := strings.TrimLeft(line, "#")
	return strings.HasPrefix(line, "#") && len(line) > len(trimmed) && strings.HasPrefix(trimmed, " ")
}

// splitLong breaks an oversized section at paragraph boundaries,
// hard-splitting any single paragraph larger than the budget.
func splitLong(section string, maxChars int) []string {
	paragraphs := strings.Split(section, "\n\n")
	var parts []string
	var b strings.Builder

	flush := func() {
		if b.Len() > 0 {
			parts = append(parts, b.String())
			b.Reset()
		}
	}

	for _, p := range paragraphs {
		if len(p) > maxChars {
			flush()
			for start := 0; start < len(p); start += maxChars {
				end := start + maxChars
				if end > len(p) {
					end = len(p)
				}
				parts = append(parts, p[start:end])
			}
			continue
		}
		if b.Len() > 0 && b.Len()+len(p)+2 > maxChars {
			flush()
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
	}
	flush()
	return parts
}
