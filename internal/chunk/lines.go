package chunk

import (
	"strings"
)

// chunkLines is the fallback for unknown or unparseable languages:
// fixed windows of WindowLines lines with OverlapLines overlap.
// Markdown files prefer heading boundaries when the document has any.
func chunkLines(path string, content []byte, language string) []*Chunk {
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if strings.HasSuffix(strings.ToLower(path), ".md") {
		if chunks := chunkMarkdown(path, text); len(chunks) > 0 {
			return chunks
		}
	}

	lines := strings.Split(text, "\n")
	var chunks []*Chunk

	for i := 0; i < len(lines); {
		end := i + WindowLines
		if end > len(lines) {
			end = len(lines)
		}

		ck := &Chunk{
			Path:      path,
			StartLine: i + 1,
			EndLine:   end,
			Kind:      KindBlock,
			Content:   strings.Join(lines[i:end], "\n"),
			Language:  language,
		}
		chunks = append(chunks, finish(ck))

		if end >= len(lines) {
			break
		}
		i = end - OverlapLines
	}

	return chunks
}

// chunkMarkdown splits a markdown document at heading boundaries.
// The chunk name is the heading text. Sections longer than the window
// cap are split further by the plain window rule.
func chunkMarkdown(path, text string) []*Chunk {
	lines := strings.Split(text, "\n")

	type section struct {
		name  string
		start int // 0-based line index
		end   int // exclusive
	}

	var sections []section
	current := section{start: 0}
	seenHeading := false

	for i, line := range lines {
		if !isHeading(line) {
			continue
		}
		seenHeading = true
		if i > current.start || current.name != "" {
			current.end = i
			if current.end > current.start {
				sections = append(sections, current)
			}
		}
		current = section{name: headingText(line), start: i}
	}
	current.end = len(lines)
	if current.end > current.start {
		sections = append(sections, current)
	}

	if !seenHeading {
		return nil
	}

	var chunks []*Chunk
	for _, s := range sections {
		for i := s.start; i < s.end; {
			end := i + WindowLines
			if end > s.end {
				end = s.end
			}
			ck := &Chunk{
				Path:      path,
				StartLine: i + 1,
				EndLine:   end,
				Kind:      KindBlock,
				Name:      s.name,
				Content:   strings.Join(lines[i:end], "\n"),
				Language:  "markdown",
			}
			chunks = append(chunks, finish(ck))
			if end >= s.end {
				break
			}
			i = end - OverlapLines
		}
	}
	return chunks
}

func isHeading(line string) bool {
	trimmed := strings.TrimLeft(line, "#")
	return strings.HasPrefix(line, "#") && len(line) > len(trimmed) && strings.HasPrefix(trimmed, " ")
}

func headingText(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "#"))
}
