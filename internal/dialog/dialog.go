// Package dialog показывает GUI диалоги через zenity.
package dialog

import (
	"fmt"

	"github.com/ncruces/zenity"
	"github.com/sirupsen/logrus"

	"voskstream/internal/config"
	"voskstream/internal/i18n"
	"voskstream/internal/models"
)

// EditHotkey запрашивает новое сочетание клавиш.
// Возвращает ошибку, если пользователь отменил ввод или сочетание некорректно.
func EditHotkey(current config.Hotkey) (config.Hotkey, error) {
	text, err := zenity.Entry(
		i18n.T("dialog_hotkey_prompt"),
		zenity.Title(i18n.T("dialog_hotkey")),
		zenity.EntryText(string(current)),
	)
	if err != nil {
		return current, err
	}

	hk := config.Hotkey(text)
	if _, _, err := hk.Split(); err != nil {
		return current, err
	}
	return hk, nil
}

// ShowInfo показывает информационное сообщение.
func ShowInfo(title, message string) {
	zenity.Info(message, zenity.Title(title))
}

// ShowError показывает сообщение об ошибке.
func ShowError(title, message string) {
	zenity.Error(message, zenity.Title(title), zenity.ErrorIcon)
}

// TrackDownloads показывает окно прогресса на время каждой загрузки модели.
// Работает до закрытия канала.
func TrackDownloads(progress <-chan models.Progress, log logrus.FieldLogger) {
	var dlg zenity.ProgressDialog
	var current string

	closeDialog := func() {
		if dlg != nil {
			dlg.Close()
			dlg = nil
		}
		current = ""
	}
	defer closeDialog()

	for p := range progress {
		if p.Done {
			if p.Error == nil && dlg != nil {
				dlg.Complete()
			}
			closeDialog()
			continue
		}

		if dlg == nil || current != p.Model {
			closeDialog()
			d, err := zenity.Progress(
				zenity.Title(i18n.T("dialog_download")),
				zenity.MaxValue(100),
				zenity.NoCancel(),
			)
			if err != nil {
				log.WithError(err).Debug("Окно прогресса недоступно")
				continue
			}
			dlg = d
			current = p.Model
			dlg.Text(fmt.Sprintf(i18n.T("dialog_download_text"), p.Model))
		}

		if p.Total > 0 {
			dlg.Value(int(p.Downloaded * 100 / p.Total))
		}
	}
}
