package capture

import (
	"context"

	"github.com/sirupsen/logrus"

	"voskstream/internal/engine"
	"voskstream/internal/models"
	"voskstream/internal/recognition"
)

// ModelOpener открывает сессию на модели из хранилища.
// Каждый запуск загружает модель заново и освобождает её на Stop.
type ModelOpener struct {
	Store        *models.Store
	Engine       *engine.Engine
	Model        models.Descriptor
	SpeakerModel string
	Options      recognition.Options
	Log          logrus.FieldLogger
}

func (o *ModelOpener) OpenSession(ctx context.Context) (*recognition.Session, error) {
	path, err := o.Store.Resolve(ctx, o.Model)
	if err != nil {
		return nil, err
	}
	return recognition.Open(o.Engine, path, o.SpeakerModel, o.Options, o.Log)
}
