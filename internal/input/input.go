// Package input печатает распознанный текст в активное окно.
package input

import "strings"

// Typer вводит текст в текущее активное поле.
type Typer interface {
	Type(text string) error
}

// New создаёт Typer для текущей платформы.
func New() (Typer, error) {
	return newTyper()
}

// Phrase готовит фразу к вводу: фразы разделяются пробелом.
func Phrase(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return text + " "
}
