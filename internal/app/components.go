package app

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"voskstream/internal/audio"
	"voskstream/internal/capture"
	"voskstream/internal/config"
	"voskstream/internal/engine"
	"voskstream/internal/engine/vosk"
	"voskstream/internal/i18n"
	"voskstream/internal/models"
	"voskstream/internal/recognition"
)

// NewEngine создаёт движок на libvosk. Логи libvosk включаются только на debug.
func NewEngine(d config.Data, log logrus.FieldLogger) *engine.Engine {
	level := -1
	if d.LogLevel == "debug" || d.LogLevel == "trace" {
		level = 0
	}
	return engine.New(vosk.New(level), log)
}

// NewStore создаёт хранилище моделей. progress может быть nil.
func NewStore(d config.Data, progress chan<- models.Progress, log logrus.FieldLogger) *models.Store {
	sc := d.StoreConfig()
	sc.Progress = progress
	return models.NewStore(sc, log)
}

// NewOpener открывает сессию по текущим настройкам: изменения конфигурации
// применяются со следующего запуска.
func NewOpener(cfg *config.Config, eng *engine.Engine, progress chan<- models.Progress, log logrus.FieldLogger) capture.Opener {
	return capture.OpenerFunc(func(ctx context.Context) (*recognition.Session, error) {
		d := cfg.Snapshot()
		o := &capture.ModelOpener{
			Store:        NewStore(d, progress, log),
			Engine:       eng,
			Model:        d.Descriptor(),
			SpeakerModel: d.Model.SpeakerPath,
			Options:      d.SessionOptions(),
			Log:          log,
		}
		return o.OpenSession(ctx)
	})
}

// NewController собирает цикл захвата с микрофона.
func NewController(cfg *config.Config, eng *engine.Engine, progress chan<- models.Progress, cb capture.Config, log logrus.FieldLogger) *capture.Controller {
	d := cfg.Snapshot()
	cb.Source = audio.NewDevice(func() int { return cfg.Snapshot().Audio.FramesPerBuffer }, log)
	cb.Opener = NewOpener(cfg, eng, progress, log)
	cb.MaxConsecutiveErrors = d.Recognition.MaxConsecutiveErrors
	return capture.NewController(cb, log)
}

// errorMessage переводит ошибку запуска в сообщение для пользователя.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrModelNotFound):
		return i18n.T("error_model_not_found")
	case errors.Is(err, models.ErrDownloadFailed):
		return i18n.T("error_download")
	case errors.Is(err, capture.ErrDevice):
		return i18n.T("error_device")
	default:
		return i18n.T("error_start")
	}
}
