// Package notify показывает системные уведомления.
package notify

import (
	"sync/atomic"
	"unicode/utf8"

	"github.com/gen2brain/beeep"
	"github.com/sirupsen/logrus"

	"voskstream/internal/i18n"
)

const maxLen = 100

// Notifier отправляет системные уведомления.
type Notifier struct {
	enabled atomic.Bool
	log     logrus.FieldLogger
	send    func(title, message, icon string) error
}

// New создаёт Notifier.
func New(enabled bool, log logrus.FieldLogger) *Notifier {
	n := &Notifier{log: log, send: func(title, message, icon string) error {
		return beeep.Notify(title, message, icon)
	}}
	n.enabled.Store(enabled)
	return n
}

// SetEnabled включает/выключает уведомления.
func (n *Notifier) SetEnabled(enabled bool) {
	n.enabled.Store(enabled)
}

// Text показывает распознанную фразу.
func (n *Notifier) Text(text string) {
	n.notify(i18n.T("notify_text"), truncate(text))
}

// Ready сообщает о запуске приложения.
func (n *Notifier) Ready() {
	n.notify("", i18n.T("notify_ready"))
}

// Error показывает ошибку. Ошибки показываются и при выключенных уведомлениях.
func (n *Notifier) Error(msg string) {
	n.deliver(i18n.T("notify_error"), truncate(msg))
}

func (n *Notifier) notify(title, message string) {
	if !n.enabled.Load() {
		return
	}
	n.deliver(title, message)
}

func (n *Notifier) deliver(title, message string) {
	app := i18n.T("app_name")
	if title != "" {
		title = app + ": " + title
	} else {
		title = app
	}
	if err := n.send(title, message, ""); err != nil {
		n.log.WithError(err).Debug("Уведомление не отправлено")
	}
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
