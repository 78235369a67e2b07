// Package subtitle собирает субтитры из слов с таймингами.
package subtitle

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// DefaultWordsPerLine - слов в одном субтитре по умолчанию.
const DefaultWordsPerLine = 7

// Word - распознанное слово с таймингом в секундах.
type Word struct {
	Word  string
	Start float64
	End   float64
}

// Cue - один субтитр.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Builder нумерует субтитры последовательно от 0 через все результаты.
type Builder struct {
	WordsPerLine int
	cues         []Cue
}

// NewBuilder создаёт Builder. wordsPerLine <= 0 заменяется значением по умолчанию.
func NewBuilder(wordsPerLine int) *Builder {
	if wordsPerLine <= 0 {
		wordsPerLine = DefaultWordsPerLine
	}
	return &Builder{WordsPerLine: wordsPerLine}
}

// Add разбивает список слов одного результата на субтитры.
func (b *Builder) Add(words []Word) {
	for j := 0; j < len(words); j += b.WordsPerLine {
		end := min(j+b.WordsPerLine, len(words))
		line := words[j:end]

		text := make([]string, len(line))
		for i, w := range line {
			text[i] = w.Word
		}

		b.cues = append(b.cues, Cue{
			Index: len(b.cues),
			Start: seconds(line[0].Start),
			End:   seconds(line[len(line)-1].End),
			Text:  strings.Join(text, " "),
		})
	}
}

// Cues возвращает собранные субтитры.
func (b *Builder) Cues() []Cue {
	return b.cues
}

// WriteSRT записывает субтитры в формате SubRip.
// Номера в файле начинаются с 1, как принято в SRT.
func WriteSRT(w io.Writer, cues []Cue) error {
	for _, c := range cues {
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			c.Index+1, FormatTimestamp(c.Start), FormatTimestamp(c.End), c.Text); err != nil {
			return err
		}
	}
	return nil
}

// Compose возвращает субтитры в формате SubRip строкой.
func Compose(cues []Cue) string {
	var b strings.Builder
	_ = WriteSRT(&b, cues)
	return b.String()
}

// FormatTimestamp форматирует время как HH:MM:SS,mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Millisecond)
}
