//go:build linux

package hotkey

import "golang.design/x/hotkey"

// На X11 Alt - Mod1, Super - Mod4.
var modifierMap = map[string]hotkey.Modifier{
	"ctrl":  hotkey.ModCtrl,
	"shift": hotkey.ModShift,
	"alt":   hotkey.Mod1,
	"super": hotkey.Mod4,
}
