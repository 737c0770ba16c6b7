package corpus

import (
	"fmt"
	"strings"

	"verse-rag/internal/models"
)

// EmbeddingID derives the vector store id for a verse. It is reproducible from
// verse identity alone, which is what makes re-indexing idempotent.
func EmbeddingID(v models.VerseRecord) string {
	return fmt.Sprintf("%s:%d:%d", v.Book, v.Chapter, v.Verse)
}

// BuildUnits produces one ContextUnit per verse. Each unit's window covers up to
// windowSize verses on either side of the center, clipped at book boundaries.
// Windows may cross chapters but never books. Pure and deterministic.
func BuildUnits(verses []models.VerseRecord, windowSize int) []models.ContextUnit {
	if windowSize < 0 {
		windowSize = 0
	}

	units := make([]models.ContextUnit, 0, len(verses))
	for start := 0; start < len(verses); {
		end := start
		for end < len(verses) && verses[end].Book == verses[start].Book {
			end++
		}
		book := verses[start:end]

		for i, v := range book {
			lo := i - windowSize
			if lo < 0 {
				lo = 0
			}
			hi := i + windowSize
			if hi > len(book)-1 {
				hi = len(book) - 1
			}

			texts := make([]string, 0, hi-lo+1)
			for _, w := range book[lo : hi+1] {
				texts = append(texts, w.Text)
			}

			units = append(units, models.ContextUnit{
				Center:      v,
				WindowText:  strings.Join(texts, " "),
				EmbeddingID: EmbeddingID(v),
			})
		}
		start = end
	}
	return units
}
