//go:build darwin

package input

/*
#cgo LDFLAGS: -framework ApplicationServices
#include <ApplicationServices/ApplicationServices.h>

static void postUnicode(UniChar c) {
    CGEventRef down = CGEventCreateKeyboardEvent(NULL, 0, true);
    CGEventRef up = CGEventCreateKeyboardEvent(NULL, 0, false);
    CGEventKeyboardSetUnicodeString(down, 1, &c);
    CGEventKeyboardSetUnicodeString(up, 1, &c);
    CGEventPost(kCGHIDEventTap, down);
    CGEventPost(kCGHIDEventTap, up);
    CFRelease(down);
    CFRelease(up);
}
*/
import "C"

import "unicode/utf16"

type eventTyper struct{}

func newTyper() (Typer, error) {
	return eventTyper{}, nil
}

// Type отправляет по событию клавиатуры на каждую UTF-16 единицу.
// Требует разрешения Accessibility.
func (eventTyper) Type(text string) error {
	for _, c := range utf16.Encode([]rune(text)) {
		C.postUnicode(C.UniChar(c))
	}
	return nil
}
