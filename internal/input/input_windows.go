//go:build windows

package input

import (
	"fmt"
	"syscall"
	"unicode/utf16"
	"unsafe"
)

var procSendInput = syscall.NewLazyDLL("user32.dll").NewProc("SendInput")

const (
	inputKeyboard    = 1
	keyEventFKeyUp   = 0x0002
	keyEventFUnicode = 0x0004
)

type keyboardInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

// sendInput повторяет раскладку INPUT: union дополнен до размера MOUSEINPUT.
type sendInput struct {
	inputType uint32
	ki        keyboardInput
	padding   uint64
}

type unicodeTyper struct{}

func newTyper() (Typer, error) {
	return unicodeTyper{}, nil
}

func (unicodeTyper) Type(text string) error {
	units := utf16.Encode([]rune(text))
	if len(units) == 0 {
		return nil
	}

	events := make([]sendInput, 0, len(units)*2)
	for _, u := range units {
		events = append(events,
			sendInput{inputType: inputKeyboard, ki: keyboardInput{wScan: u, dwFlags: keyEventFUnicode}},
			sendInput{inputType: inputKeyboard, ki: keyboardInput{wScan: u, dwFlags: keyEventFUnicode | keyEventFKeyUp}},
		)
	}

	sent, _, err := procSendInput.Call(
		uintptr(len(events)),
		uintptr(unsafe.Pointer(&events[0])),
		unsafe.Sizeof(events[0]),
	)
	if int(sent) != len(events) {
		return fmt.Errorf("SendInput: отправлено %d из %d: %v", sent, len(events), err)
	}
	return nil
}
