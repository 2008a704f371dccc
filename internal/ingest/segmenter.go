package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/phenbot/study-engine/internal/domain"
)

// DefaultChunkSize is the target chunk length in characters.
const DefaultChunkSize = 1000

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// Segment splits text into sentence-aligned chunks of roughly targetSize characters.
// A sentence longer than targetSize becomes a chunk of its own. Lengths count runes.
func Segment(text string, targetSize int) []domain.Chunk {
	if targetSize <= 0 {
		targetSize = DefaultChunkSize
	}

	var (
		chunks []domain.Chunk
		buf    strings.Builder
	)

	flush := func() {
		current := buf.String()
		chunks = append(chunks, domain.Chunk{
			ID:     fmt.Sprintf("chunk-%d", len(chunks)),
			Text:   strings.TrimSpace(current),
			Length: utf8.RuneCountInString(current),
		})
		buf.Reset()
	}

	for _, sentence := range sentenceBoundary.Split(text, -1) {
		if strings.TrimSpace(sentence) == "" {
			continue
		}

		bufLen := utf8.RuneCountInString(buf.String())
		if bufLen+utf8.RuneCountInString(sentence) > targetSize && bufLen > 0 {
			flush()
			// The sentence that overflowed opens the next chunk without a terminator.
			buf.WriteString(sentence)
			continue
		}

		buf.WriteString(sentence)
		buf.WriteString(". ")
	}

	if strings.TrimSpace(buf.String()) != "" {
		flush()
	}

	return chunks
}
