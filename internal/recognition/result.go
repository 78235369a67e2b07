package recognition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"voskstream/internal/subtitle"
)

// ErrMalformedOutput - движок вернул JSON вне ожидаемой схемы.
var ErrMalformedOutput = errors.New("некорректный ответ движка")

// Kind тип результата Feed.
type Kind int

const (
	// Pending - граница фразы не достигнута, промежуточного текста нет.
	Pending Kind = iota
	// Partial - промежуточный, нестабильный текст.
	Partial
	// Final - завершённая фраза.
	Final
)

func (k Kind) String() string {
	switch k {
	case Partial:
		return "partial"
	case Final:
		return "final"
	default:
		return "pending"
	}
}

// Word - слово с таймингом (секунды) и уверенностью.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Conf  float64 `json:"conf"`
}

// Alternative - вариант распознавания при SetMaxAlternatives > 0.
type Alternative struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Result     []Word  `json:"result,omitempty"`
}

// Result результат распознавания.
type Result struct {
	Kind          Kind
	Text          string
	Words         []Word
	Alternatives  []Alternative
	Speaker       []float64
	SpeakerFrames int
	// Raw - ответ движка как есть (в режиме NLSML это XML).
	Raw string
}

// SubtitleWords переводит слова результата в слова субтитров.
func (r Result) SubtitleWords() []subtitle.Word {
	out := make([]subtitle.Word, len(r.Words))
	for i, w := range r.Words {
		out[i] = subtitle.Word{Word: w.Word, Start: w.Start, End: w.End}
	}
	return out
}

type finalJSON struct {
	Text         *string       `json:"text"`
	Result       []Word        `json:"result"`
	Alternatives []Alternative `json:"alternatives"`
	Spk          []float64     `json:"spk"`
	SpkFrames    int           `json:"spk_frames"`
}

type partialJSON struct {
	Partial       *string `json:"partial"`
	PartialResult []Word  `json:"partial_result"`
}

// ParseFinal разбирает ответ Result/FinalResult.
func ParseFinal(raw string) (Result, error) {
	var v finalJSON
	if err := decodeStrict(raw, &v); err != nil {
		return Result{}, err
	}

	res := Result{Kind: Final, Raw: raw, Speaker: v.Spk, SpeakerFrames: v.SpkFrames}
	switch {
	case v.Alternatives != nil:
		res.Alternatives = v.Alternatives
		if len(v.Alternatives) > 0 {
			res.Text = v.Alternatives[0].Text
			res.Words = v.Alternatives[0].Result
		}
	case v.Text != nil:
		res.Text = *v.Text
		res.Words = v.Result
	default:
		return Result{}, fmt.Errorf("%w: нет поля text: %s", ErrMalformedOutput, raw)
	}
	return res, nil
}

// ParsePartial разбирает ответ PartialResult.
// Пустой промежуточный текст даёт Pending.
func ParsePartial(raw string) (Result, error) {
	var v partialJSON
	if err := decodeStrict(raw, &v); err != nil {
		return Result{}, err
	}
	if v.Partial == nil {
		return Result{}, fmt.Errorf("%w: нет поля partial: %s", ErrMalformedOutput, raw)
	}

	kind := Partial
	if *v.Partial == "" {
		kind = Pending
	}
	return Result{Kind: kind, Text: *v.Partial, Words: v.PartialResult, Raw: raw}, nil
}

func decodeStrict(raw string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: лишние данные после JSON", ErrMalformedOutput)
	}
	return nil
}
