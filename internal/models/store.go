package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultCatalogURL - каталог моделей Vosk.
	DefaultCatalogURL = "https://alphacephei.com/vosk/models/model-list.json"
	// DefaultDownloadURL - базовый адрес архивов моделей.
	DefaultDownloadURL = "https://alphacephei.com/vosk/models"
	// DefaultArchiveSuffix - расширение архива модели.
	DefaultArchiveSuffix = ".zip"
	// DefaultNamePrefix - префикс имён директорий моделей.
	DefaultNamePrefix = "vosk-model"
)

var (
	// ErrModelNotFound - модель не найдена ни локально, ни в каталоге.
	ErrModelNotFound = errors.New("модель не найдена")
	// ErrDownloadFailed - ошибка сети или архива при получении модели.
	ErrDownloadFailed = errors.New("ошибка скачивания модели")
)

// Descriptor определяет модель: путём, именем или языком.
type Descriptor struct {
	Path string
	Name string
	Lang string
}

func (d Descriptor) String() string {
	switch {
	case d.Path != "":
		return "path=" + d.Path
	case d.Name != "":
		return "name=" + d.Name
	default:
		return "lang=" + d.Lang
	}
}

// Config настройки хранилища моделей.
type Config struct {
	// Dirs - локальные директории в порядке приоритета.
	Dirs []string
	// DownloadDir - куда распаковывать скачанные модели (по умолчанию Dirs[0]).
	DownloadDir   string
	CatalogURL    string
	DownloadURL   string
	ArchiveSuffix string
	NamePrefix    string
	// HTTPClient для каталога и загрузки (можно nil).
	HTTPClient *http.Client
	// Progress получает обновления о прогрессе загрузки (можно nil).
	Progress chan<- Progress
}

// Store разрешает дескриптор в директорию модели.
type Store struct {
	cfg    Config
	client *http.Client
	log    logrus.FieldLogger
}

// NewStore создаёт хранилище моделей.
func NewStore(cfg Config, log logrus.FieldLogger) *Store {
	if cfg.CatalogURL == "" {
		cfg.CatalogURL = DefaultCatalogURL
	}
	if cfg.DownloadURL == "" {
		cfg.DownloadURL = DefaultDownloadURL
	}
	if cfg.ArchiveSuffix == "" {
		cfg.ArchiveSuffix = DefaultArchiveSuffix
	}
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = DefaultNamePrefix
	}
	if cfg.DownloadDir == "" && len(cfg.Dirs) > 0 {
		cfg.DownloadDir = cfg.Dirs[0]
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}

	return &Store{cfg: cfg, client: client, log: log}
}

// Resolve возвращает путь к директории модели, при необходимости скачивая её.
// Явный путь возвращается без проверки: её выполнит загрузка модели.
func (s *Store) Resolve(ctx context.Context, d Descriptor) (string, error) {
	if d.Path != "" {
		return d.Path, nil
	}
	if d.Name == "" && d.Lang == "" {
		return "", fmt.Errorf("%w: пустой дескриптор", ErrModelNotFound)
	}

	log := s.log.WithField("descriptor", d.String())

	path, ok, err := s.findLocal(d)
	if err != nil {
		return "", err
	}
	if ok {
		log.WithField("model", path).Debug("Модель найдена локально")
		return path, nil
	}

	log.Info("Локальная модель не найдена, запрашиваю каталог")
	entries, err := s.fetchCatalog(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	var entry CatalogEntry
	if d.Name != "" {
		entry, ok = findByName(entries, d.Name)
	} else {
		entry, ok = findByLang(entries, d.Lang)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, d)
	}

	if s.cfg.DownloadDir == "" {
		return "", fmt.Errorf("%w: не задана директория для загрузки", ErrDownloadFailed)
	}
	return s.download(ctx, entry)
}

// findLocal ищет модель в локальных директориях.
// os.ReadDir возвращает имена по возрастанию, поэтому внутри директории
// побеждает лексикографически первое имя.
func (s *Store) findLocal(d Descriptor) (string, bool, error) {
	var pattern *regexp.Regexp
	if d.Name == "" {
		pattern = s.langPattern(d.Lang)
	}

	for _, dir := range s.cfg.Dirs {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("чтение %s: %w", dir, err)
		}

		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if d.Name != "" && e.Name() == d.Name {
				return filepath.Join(dir, e.Name()), true, nil
			}
			if pattern != nil && pattern.MatchString(e.Name()) {
				return filepath.Join(dir, e.Name()), true, nil
			}
		}
	}
	return "", false, nil
}

func (s *Store) langPattern(lang string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(s.cfg.NamePrefix) + "(-small)?-" + regexp.QuoteMeta(lang))
}

// Local возвращает модели, найденные в локальных директориях.
func (s *Store) Local() ([]string, error) {
	var paths []string
	for _, dir := range s.cfg.Dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}
	return paths, nil
}

// List возвращает записи удалённого каталога.
func (s *Store) List(ctx context.Context) ([]CatalogEntry, error) {
	entries, err := s.fetchCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return entries, nil
}
