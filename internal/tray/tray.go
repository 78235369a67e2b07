// Package tray предоставляет системный трей с меню.
package tray

import (
	"unicode/utf8"

	"github.com/getlantern/systray"

	"voskstream/embedded"
	"voskstream/internal/capture"
	"voskstream/internal/i18n"
)

// Callbacks содержит обработчики событий меню.
type Callbacks struct {
	OnStart               func()
	OnStop                func()
	OnNotificationsToggle func() bool
	OnTypeTextToggle      func() bool
	OnHotkeyClick         func()
	OnLanguage            func(i18n.Language)
	OnQuit                func()
}

// Tray управляет иконкой в системном трее.
type Tray struct {
	callbacks     Callbacks
	notifications bool
	typeText      bool

	status    *systray.MenuItem
	lastText  *systray.MenuItem
	startBtn  *systray.MenuItem
	stopBtn   *systray.MenuItem
	notifyOn  *systray.MenuItem
	typeOn    *systray.MenuItem
	hotkeyBtn *systray.MenuItem
	langMenu  *systray.MenuItem
	langItems map[i18n.Language]*systray.MenuItem
	quitBtn   *systray.MenuItem

	state capture.State
}

// New создаёт Tray. notifications и typeText - начальное состояние флажков.
func New(callbacks Callbacks, notifications, typeText bool) *Tray {
	return &Tray{callbacks: callbacks, notifications: notifications, typeText: typeText}
}

// Run запускает системный трей. Блокирует до Quit.
func (t *Tray) Run(onReady func()) {
	systray.Run(func() {
		t.onReady()
		if onReady != nil {
			onReady()
		}
	}, func() {})
}

func (t *Tray) onReady() {
	systray.SetIcon(embedded.IconIdle)
	systray.SetTitle(i18n.T("app_name"))
	systray.SetTooltip(i18n.T("app_tooltip"))

	t.status = systray.AddMenuItem(i18n.T("tray_idle"), "")
	t.status.Disable()
	t.lastText = systray.AddMenuItem("", "")
	t.lastText.Disable()
	t.lastText.Hide()

	systray.AddSeparator()

	t.startBtn = systray.AddMenuItem(i18n.T("tray_start"), i18n.T("tray_start_hint"))
	t.stopBtn = systray.AddMenuItem(i18n.T("tray_stop"), i18n.T("tray_stop_hint"))
	t.stopBtn.Disable()

	systray.AddSeparator()

	t.notifyOn = systray.AddMenuItemCheckbox(i18n.T("tray_notifications"), i18n.T("tray_notifications_hint"), t.notifications)
	t.typeOn = systray.AddMenuItemCheckbox(i18n.T("tray_type"), i18n.T("tray_type_hint"), t.typeText)
	t.hotkeyBtn = systray.AddMenuItem(i18n.T("tray_hotkey"), i18n.T("tray_hotkey_hint"))

	t.langMenu = systray.AddMenuItem(i18n.T("tray_language"), "")
	t.langItems = make(map[i18n.Language]*systray.MenuItem)
	for _, lang := range i18n.AvailableLanguages() {
		item := t.langMenu.AddSubMenuItemCheckbox(i18n.LanguageName(lang), "", lang == i18n.GetLanguage())
		t.langItems[lang] = item
		go t.handleLanguage(lang, item)
	}

	systray.AddSeparator()
	t.quitBtn = systray.AddMenuItem(i18n.T("tray_quit"), i18n.T("tray_quit_hint"))

	go t.handleMenuEvents()
}

func (t *Tray) handleMenuEvents() {
	for {
		select {
		case <-t.startBtn.ClickedCh:
			if t.callbacks.OnStart != nil {
				t.callbacks.OnStart()
			}

		case <-t.stopBtn.ClickedCh:
			if t.callbacks.OnStop != nil {
				t.callbacks.OnStop()
			}

		case <-t.notifyOn.ClickedCh:
			if t.callbacks.OnNotificationsToggle != nil {
				if t.callbacks.OnNotificationsToggle() {
					t.notifyOn.Check()
				} else {
					t.notifyOn.Uncheck()
				}
			}

		case <-t.typeOn.ClickedCh:
			if t.callbacks.OnTypeTextToggle != nil {
				if t.callbacks.OnTypeTextToggle() {
					t.typeOn.Check()
				} else {
					t.typeOn.Uncheck()
				}
			}

		case <-t.hotkeyBtn.ClickedCh:
			if t.callbacks.OnHotkeyClick != nil {
				t.callbacks.OnHotkeyClick()
			}

		case <-t.quitBtn.ClickedCh:
			if t.callbacks.OnQuit != nil {
				t.callbacks.OnQuit()
			}
			systray.Quit()
			return
		}
	}
}

func (t *Tray) handleLanguage(lang i18n.Language, item *systray.MenuItem) {
	for range item.ClickedCh {
		for l, it := range t.langItems {
			if l == lang {
				it.Check()
			} else {
				it.Uncheck()
			}
		}
		if t.callbacks.OnLanguage != nil {
			t.callbacks.OnLanguage(lang)
		}
		t.RefreshUI()
	}
}

// SetState обновляет иконку и доступность пунктов по состоянию захвата.
func (t *Tray) SetState(state capture.State) {
	t.state = state
	if t.status == nil {
		return
	}

	switch state {
	case capture.Running:
		systray.SetIcon(embedded.IconListening)
		t.startBtn.Disable()
		t.stopBtn.Enable()
	case capture.Stopping:
		systray.SetIcon(embedded.IconStopping)
		t.startBtn.Disable()
		t.stopBtn.Disable()
	default:
		systray.SetIcon(embedded.IconIdle)
		t.startBtn.Enable()
		t.stopBtn.Disable()
	}

	title := stateTitle(state)
	t.status.SetTitle(title)
	systray.SetTooltip(i18n.T("app_name") + " - " + title)
}

// SetLastText показывает последнюю распознанную фразу в меню.
func (t *Tray) SetLastText(text string) {
	if t.lastText == nil || text == "" {
		return
	}
	if utf8.RuneCountInString(text) > 60 {
		text = "…" + string([]rune(text)[utf8.RuneCountInString(text)-60:])
	}
	t.lastText.SetTitle(text)
	t.lastText.Show()
}

// Quit закрывает системный трей.
func (t *Tray) Quit() {
	systray.Quit()
}

// RefreshUI обновляет тексты меню на текущем языке.
func (t *Tray) RefreshUI() {
	systray.SetTitle(i18n.T("app_name"))
	systray.SetTooltip(i18n.T("app_tooltip"))

	if t.status == nil {
		return
	}
	t.status.SetTitle(stateTitle(t.state))
	t.startBtn.SetTitle(i18n.T("tray_start"))
	t.startBtn.SetTooltip(i18n.T("tray_start_hint"))
	t.stopBtn.SetTitle(i18n.T("tray_stop"))
	t.stopBtn.SetTooltip(i18n.T("tray_stop_hint"))
	t.notifyOn.SetTitle(i18n.T("tray_notifications"))
	t.notifyOn.SetTooltip(i18n.T("tray_notifications_hint"))
	t.typeOn.SetTitle(i18n.T("tray_type"))
	t.typeOn.SetTooltip(i18n.T("tray_type_hint"))
	t.hotkeyBtn.SetTitle(i18n.T("tray_hotkey"))
	t.hotkeyBtn.SetTooltip(i18n.T("tray_hotkey_hint"))
	t.langMenu.SetTitle(i18n.T("tray_language"))
	t.quitBtn.SetTitle(i18n.T("tray_quit"))
	t.quitBtn.SetTooltip(i18n.T("tray_quit_hint"))
}

func stateTitle(state capture.State) string {
	switch state {
	case capture.Running:
		return i18n.T("tray_listening")
	case capture.Stopping:
		return i18n.T("tray_stopping")
	default:
		return i18n.T("tray_idle")
	}
}
