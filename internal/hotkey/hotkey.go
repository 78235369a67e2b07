// Package hotkey регистрирует глобальную горячую клавишу запуска и остановки.
package hotkey

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.design/x/hotkey"
	"golang.design/x/hotkey/mainthread"

	"voskstream/internal/config"
)

// debounceInterval защищает от повторов при удержании клавиши.
const debounceInterval = 300 * time.Millisecond

// Handler вызывает onToggle при нажатии сочетания.
type Handler struct {
	mu       sync.Mutex
	hk       *hotkey.Hotkey
	current  config.Hotkey
	stopCh   chan struct{}
	onToggle func()
	log      logrus.FieldLogger
}

// New создаёт обработчик горячей клавиши.
func New(onToggle func(), log logrus.FieldLogger) *Handler {
	return &Handler{onToggle: onToggle, log: log}
}

// Register регистрирует сочетание, заменяя предыдущее.
func (h *Handler) Register(hk config.Hotkey) error {
	mods, key, err := parse(hk)
	if err != nil {
		return err
	}

	h.unregister()

	h.mu.Lock()
	defer h.mu.Unlock()

	reg := hotkey.New(mods, key)
	if err := reg.Register(); err != nil {
		return fmt.Errorf("регистрация %s: %w", hk, err)
	}

	h.hk = reg
	h.current = hk
	h.stopCh = make(chan struct{})
	go h.listen(reg, h.stopCh)

	h.log.WithField("hotkey", string(hk)).Info("Горячая клавиша зарегистрирована")
	return nil
}

func (h *Handler) listen(hk *hotkey.Hotkey, stopCh chan struct{}) {
	var last time.Time
	for {
		select {
		case <-stopCh:
			return
		case _, ok := <-hk.Keydown():
			if !ok {
				return
			}
			now := time.Now()
			if now.Sub(last) < debounceInterval {
				continue
			}
			last = now
			if h.onToggle != nil {
				h.onToggle()
			}
		}
	}
}

// unregister снимает текущую регистрацию. Unregister может зависнуть
// на некоторых X11 серверах, поэтому ждём не дольше 500ms.
func (h *Handler) unregister() {
	h.mu.Lock()
	old := h.hk
	if h.stopCh != nil {
		close(h.stopCh)
		h.stopCh = nil
	}
	h.hk = nil
	h.mu.Unlock()

	if old == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		if err := old.Unregister(); err != nil {
			h.log.WithError(err).Warn("Ошибка отмены горячей клавиши")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		h.log.Warn("Таймаут отмены горячей клавиши")
	}
}

// Unregister отменяет регистрацию горячей клавиши.
func (h *Handler) Unregister() {
	h.unregister()
}

// Current возвращает зарегистрированное сочетание.
func (h *Handler) Current() config.Hotkey {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// RunOnMainThread запускает функцию в главном потоке (требование для macOS).
func RunOnMainThread(fn func()) {
	mainthread.Init(fn)
}

func parse(hk config.Hotkey) ([]hotkey.Modifier, hotkey.Key, error) {
	names, keyName, err := hk.Split()
	if err != nil {
		return nil, 0, err
	}

	mods := make([]hotkey.Modifier, 0, len(names))
	for _, n := range names {
		mods = append(mods, modifierMap[n])
	}

	key, ok := keyMap[keyName]
	if !ok {
		return nil, 0, fmt.Errorf("горячая клавиша %s: неизвестная клавиша %q", hk, keyName)
	}
	return mods, key, nil
}

// modifierMap определён в modifiers_{linux,darwin,windows}.go

var keyMap = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"return": hotkey.KeyReturn,
	"tab":    hotkey.KeyTab,
	"escape": hotkey.KeyEscape,
	"a":      hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}
