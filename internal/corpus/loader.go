// Package corpus loads the verse corpus and builds the context-augmented units
// that get embedded.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"verse-rag/internal/models"
)

// flexInt accepts both JSON numbers and numeric strings; corpus exports in the
// wild use either for chapter and verse numbers.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not a verse number: %s", data)
	}
	*f = flexInt(n)
	return nil
}

type rawVerse struct {
	Source  string  `json:"source"`
	Book    string  `json:"book"`
	Chapter flexInt `json:"chapter"`
	Verse   flexInt `json:"verse"`
	Content string  `json:"content"`
}

// Load reads a JSON verse corpus and returns records ordered by book (in order
// of first appearance), then chapter, then verse. The windower relies on this
// ordering and does not re-sort.
func Load(path string) ([]models.VerseRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw []rawVerse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing corpus %s: %w", path, err)
	}

	bookOrder := make(map[string]int)
	verses := make([]models.VerseRecord, 0, len(raw))
	for i, rv := range raw {
		if rv.Book == "" || rv.Chapter < 1 || rv.Verse < 1 {
			return nil, fmt.Errorf("invalid verse record at index %d: %s %d:%d", i, rv.Book, rv.Chapter, rv.Verse)
		}
		if _, ok := bookOrder[rv.Book]; !ok {
			bookOrder[rv.Book] = len(bookOrder)
		}
		verses = append(verses, models.VerseRecord{
			Book:    rv.Book,
			Chapter: int(rv.Chapter),
			Verse:   int(rv.Verse),
			Text:    rv.Content,
		})
	}

	sort.SliceStable(verses, func(i, j int) bool {
		a, b := verses[i], verses[j]
		if a.Book != b.Book {
			return bookOrder[a.Book] < bookOrder[b.Book]
		}
		if a.Chapter != b.Chapter {
			return a.Chapter < b.Chapter
		}
		return a.Verse < b.Verse
	})

	log.Info().Int("verses", len(verses)).Int("books", len(bookOrder)).Str("path", path).Msg("Loaded corpus")
	return verses, nil
}
