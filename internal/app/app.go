// Package app связывает контроллер распознавания с треем, горячей клавишей
// и уведомлениями.
package app

import (
	"context"

	"github.com/sirupsen/logrus"

	"voskstream/internal/capture"
	"voskstream/internal/config"
	"voskstream/internal/dialog"
	"voskstream/internal/hotkey"
	"voskstream/internal/i18n"
	"voskstream/internal/input"
	"voskstream/internal/models"
	"voskstream/internal/notify"
	"voskstream/internal/tray"
)

// App - приложение в системном трее.
type App struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	ctrl     *capture.Controller
	notifier *notify.Notifier
	typer    input.Typer
	tray     *tray.Tray
	hotkey   *hotkey.Handler
	progress chan models.Progress

	ctx    context.Context
	cancel context.CancelFunc
}

// New создаёт приложение.
func New(cfg *config.Config, log logrus.FieldLogger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	d := cfg.Snapshot()
	i18n.SetLanguage(i18n.Language(d.UI.Language))

	a := &App{
		cfg:      cfg,
		log:      log,
		notifier: notify.New(d.UI.Notifications, log),
		progress: make(chan models.Progress, 16),
		ctx:      ctx,
		cancel:   cancel,
	}

	if typer, err := input.New(); err != nil {
		log.WithError(err).Warn("Ввод текста в окна недоступен")
	} else {
		a.typer = typer
	}

	a.ctrl = NewController(cfg, NewEngine(d, log), a.progress, capture.Config{
		OnFinalText: a.onFinalText,
		OnError:     a.onError,
		OnState:     a.onState,
	}, log)

	a.tray = tray.New(tray.Callbacks{
		OnStart: func() { go a.start() },
		OnStop:  func() { go a.stop() },
		OnNotificationsToggle: func() bool {
			enabled, err := cfg.ToggleNotifications()
			if err != nil {
				log.WithError(err).Warn("Настройки не сохранены")
			}
			return enabled
		},
		OnTypeTextToggle: func() bool {
			enabled, err := cfg.ToggleTypeText()
			if err != nil {
				log.WithError(err).Warn("Настройки не сохранены")
			}
			return enabled
		},
		OnHotkeyClick: a.editHotkey,
		OnLanguage: func(lang i18n.Language) {
			if err := cfg.SetUILanguage(string(lang)); err != nil {
				log.WithError(err).Warn("Настройки не сохранены")
			}
		},
		OnQuit: a.Close,
	}, d.UI.Notifications, d.UI.TypeText)

	a.hotkey = hotkey.New(a.toggle, log)
	cfg.OnChange(a.applyConfig)
	return a
}

// Run запускает трей. Блокирует до выхода.
func (a *App) Run() {
	go dialog.TrackDownloads(a.progress, a.log)

	if err := a.cfg.Watch(a.ctx, a.log); err != nil {
		a.log.WithError(err).Warn("Перезагрузка конфигурации недоступна")
	}

	a.tray.Run(func() {
		a.tray.SetState(a.ctrl.State())
		if err := a.hotkey.Register(a.cfg.Hotkey()); err != nil {
			a.log.WithError(err).Error("Горячая клавиша не зарегистрирована")
			a.notifier.Error(i18n.T("error_hotkey_register"))
		}
		a.notifier.Ready()
		a.log.WithField("hotkey", string(a.cfg.Hotkey())).Info("Приложение запущено")
	})
}

// Close останавливает распознавание и освобождает ресурсы.
func (a *App) Close() {
	a.hotkey.Unregister()
	if err := a.ctrl.Close(); err != nil {
		a.log.WithError(err).Warn("Ошибка при остановке")
	}
	a.cancel()
}

func (a *App) start() {
	if err := a.ctrl.Start(a.ctx); err != nil {
		a.log.WithError(err).Error("Не удалось начать распознавание")
		dialog.ShowError(i18n.T("app_name"), errorMessage(err)+"\n\n"+err.Error())
	}
}

func (a *App) stop() {
	if err := a.ctrl.Stop(); err != nil {
		a.log.WithError(err).Warn("Ошибка при остановке")
	}
}

func (a *App) toggle() {
	if err := a.ctrl.Toggle(a.ctx); err != nil {
		a.log.WithError(err).Error("Ошибка переключения распознавания")
		dialog.ShowError(i18n.T("app_name"), errorMessage(err)+"\n\n"+err.Error())
	}
}

func (a *App) onFinalText(text string) {
	a.log.WithField("text", text).Info("Распознано")
	a.tray.SetLastText(text)
	a.notifier.Text(text)

	if a.typer != nil && a.cfg.TypeTextEnabled() {
		if err := a.typer.Type(input.Phrase(text)); err != nil {
			a.log.WithError(err).Error("Ошибка ввода текста")
			a.notifier.Error(i18n.T("error_input"))
		}
	}
}

func (a *App) onError(err error) {
	a.log.WithError(err).Error("Ошибка распознавания")
	a.notifier.Error(errorMessage(err))
}

func (a *App) onState(s capture.State) {
	a.tray.SetState(s)
}

func (a *App) editHotkey() {
	hk, err := dialog.EditHotkey(a.cfg.Hotkey())
	if err != nil {
		a.log.WithError(err).Debug("Горячая клавиша не изменена")
		return
	}
	if err := a.cfg.SetHotkey(hk); err != nil {
		a.log.WithError(err).Warn("Настройки не сохранены")
	}
}

// applyConfig применяет настройки оболочки после изменения.
// Настройки модели и распознавателя вступают в силу со следующего запуска.
func (a *App) applyConfig(d config.Data) {
	a.notifier.SetEnabled(d.UI.Notifications)

	if lang := i18n.Language(d.UI.Language); lang != i18n.GetLanguage() {
		i18n.SetLanguage(lang)
		a.tray.RefreshUI()
	}

	if d.UI.Hotkey != a.hotkey.Current() {
		if err := a.hotkey.Register(d.UI.Hotkey); err != nil {
			a.log.WithError(err).Error("Горячая клавиша не зарегистрирована")
			a.notifier.Error(i18n.T("error_hotkey_register"))
		}
	}
}
