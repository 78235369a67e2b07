//go:build linux

package input

import (
	"fmt"
	"os"
	"os/exec"
)

// commandTyper вызывает внешнюю утилиту: wtype под Wayland, xdotool под X11.
type commandTyper struct {
	tool string
	args []string
}

func newTyper() (Typer, error) {
	t := &commandTyper{tool: "xdotool", args: []string{"type", "--clearmodifiers", "--"}}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		t = &commandTyper{tool: "wtype", args: []string{"--"}}
	}
	path, err := exec.LookPath(t.tool)
	if err != nil {
		return nil, fmt.Errorf("для ввода текста нужен %s: %w", t.tool, err)
	}
	t.tool = path
	return t, nil
}

func (t *commandTyper) Type(text string) error {
	if text == "" {
		return nil
	}
	args := append(append([]string(nil), t.args...), text)
	if out, err := exec.Command(t.tool, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", t.tool, err, out)
	}
	return nil
}
