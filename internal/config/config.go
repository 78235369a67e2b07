// Package config предоставляет конфигурацию приложения с сохранением в YAML файл.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"voskstream/internal/models"
	"voskstream/internal/recognition"
)

// FileName - имя файла конфигурации рядом с бинарником.
const FileName = "config.yaml"

// ModelConfig - какую модель использовать и где её искать.
type ModelConfig struct {
	Path          string   `yaml:"path,omitempty"`
	Name          string   `yaml:"name,omitempty"`
	Lang          string   `yaml:"lang"`
	SpeakerPath   string   `yaml:"speaker_path,omitempty"`
	Dirs          []string `yaml:"dirs"`
	DownloadDir   string   `yaml:"download_dir,omitempty"`
	CatalogURL    string   `yaml:"catalog_url"`
	DownloadURL   string   `yaml:"download_url"`
	ArchiveSuffix string   `yaml:"archive_suffix"`
	NamePrefix    string   `yaml:"name_prefix"`
}

// RecognitionConfig - флаги распознавателя.
type RecognitionConfig struct {
	Words                bool   `yaml:"words"`
	PartialWords         bool   `yaml:"partial_words"`
	MaxAlternatives      int    `yaml:"max_alternatives"`
	Grammar              string `yaml:"grammar,omitempty"`
	WordsPerLine         int    `yaml:"words_per_line"`
	MaxConsecutiveErrors int    `yaml:"max_consecutive_errors"`
}

// AudioConfig - параметры захвата.
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

// UIConfig - настройки оболочки.
type UIConfig struct {
	Language      string `yaml:"language"`
	Notifications bool   `yaml:"notifications"`
	TypeText      bool   `yaml:"type_text"`
	Hotkey        Hotkey `yaml:"hotkey"`
}

// Data - содержимое файла конфигурации.
type Data struct {
	Model       ModelConfig       `yaml:"model"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Audio       AudioConfig       `yaml:"audio"`
	UI          UIConfig          `yaml:"ui"`
	LogLevel    string            `yaml:"log_level"`
}

// Default возвращает настройки по умолчанию.
func Default() Data {
	return Data{
		Model: ModelConfig{
			Lang:          "en-us",
			Dirs:          defaultDirs(),
			CatalogURL:    models.DefaultCatalogURL,
			DownloadURL:   models.DefaultDownloadURL,
			ArchiveSuffix: models.DefaultArchiveSuffix,
			NamePrefix:    models.DefaultNamePrefix,
		},
		Recognition: RecognitionConfig{
			WordsPerLine:         7,
			MaxConsecutiveErrors: 10,
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			FramesPerBuffer: 1024,
		},
		UI: UIConfig{
			Language:      "ru",
			Notifications: true,
			Hotkey:        "ctrl+shift+space",
		},
		LogLevel: "info",
	}
}

// defaultDirs - models рядом с бинарником и общий кэш пользователя.
func defaultDirs() []string {
	var dirs []string
	if dir := execDir(); dir != "" {
		dirs = append(dirs, filepath.Join(dir, "models"))
	}
	if cache, err := os.UserCacheDir(); err == nil {
		dirs = append(dirs, filepath.Join(cache, "vosk"))
	}
	return dirs
}

func execDir() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return ""
	}
	return filepath.Dir(execPath)
}

// DefaultPath возвращает путь к файлу конфигурации рядом с бинарником.
func DefaultPath() string {
	if dir := execDir(); dir != "" {
		return filepath.Join(dir, FileName)
	}
	return ""
}

// Parse читает YAML поверх настроек по умолчанию и применяет переменные окружения.
func Parse(raw []byte) (Data, error) {
	d := Default()
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("разбор конфигурации: %w", err)
	}
	applyEnvOverrides(&d)
	if err := d.validate(); err != nil {
		return d, err
	}
	return d, nil
}

func applyEnvOverrides(d *Data) {
	overrideString(&d.Model.Path, "VOSKSTREAM_MODEL_PATH")
	overrideString(&d.Model.Name, "VOSKSTREAM_MODEL_NAME")
	overrideString(&d.Model.Lang, "VOSKSTREAM_MODEL_LANG")
	overrideString(&d.Model.DownloadDir, "VOSKSTREAM_DOWNLOAD_DIR")
	overrideInt(&d.Audio.SampleRate, "VOSKSTREAM_SAMPLE_RATE")
	overrideString(&d.LogLevel, "LOG_LEVEL")
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (d Data) validate() error {
	var errs []error
	if d.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate должен быть > 0: %d", d.Audio.SampleRate))
	}
	if d.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer должен быть > 0: %d", d.Audio.FramesPerBuffer))
	}
	if d.Recognition.MaxAlternatives < 0 {
		errs = append(errs, fmt.Errorf("recognition.max_alternatives не может быть < 0"))
	}
	if d.Recognition.Grammar != "" && d.Model.SpeakerPath != "" {
		errs = append(errs, errors.New("recognition.grammar и model.speaker_path взаимоисключающие"))
	}
	if d.Model.Path == "" && d.Model.Name == "" && d.Model.Lang == "" {
		errs = append(errs, errors.New("нужно задать model.path, model.name или model.lang"))
	}
	if _, _, err := d.UI.Hotkey.Split(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Descriptor возвращает запрос модели для хранилища.
func (d Data) Descriptor() models.Descriptor {
	return models.Descriptor{Path: d.Model.Path, Name: d.Model.Name, Lang: d.Model.Lang}
}

// StoreConfig возвращает настройки хранилища моделей.
func (d Data) StoreConfig() models.Config {
	return models.Config{
		Dirs:          append([]string(nil), d.Model.Dirs...),
		DownloadDir:   d.Model.DownloadDir,
		CatalogURL:    d.Model.CatalogURL,
		DownloadURL:   d.Model.DownloadURL,
		ArchiveSuffix: d.Model.ArchiveSuffix,
		NamePrefix:    d.Model.NamePrefix,
	}
}

// SessionOptions возвращает флаги распознавателя.
func (d Data) SessionOptions() recognition.Options {
	return recognition.Options{
		SampleRate:      float64(d.Audio.SampleRate),
		MaxAlternatives: d.Recognition.MaxAlternatives,
		Words:           d.Recognition.Words,
		PartialWords:    d.Recognition.PartialWords,
		Grammar:         d.Recognition.Grammar,
	}
}

// Config хранит настройки приложения. Сеттеры сохраняют файл.
type Config struct {
	mu        sync.RWMutex
	data      Data
	path      string
	listeners []func(Data)
}

// Load загружает конфигурацию из path. Пустой path - файл рядом с бинарником.
// Отсутствующий файл не ошибка: используются настройки по умолчанию.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	c := &Config{path: path}

	d, err := c.read()
	if err != nil {
		return nil, err
	}
	c.data = d
	return c, nil
}

func (c *Config) read() (Data, error) {
	if c.path == "" {
		return Parse(nil)
	}
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return Parse(nil)
	}
	if err != nil {
		return Data{}, fmt.Errorf("чтение конфигурации: %w", err)
	}
	return Parse(raw)
}

// save сохраняет конфигурацию в файл. Вызывается под блокировкой.
func (c *Config) save() error {
	if c.path == "" {
		return nil
	}
	raw, err := yaml.Marshal(c.data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path, raw, 0o644)
}

// Path возвращает путь к файлу конфигурации.
func (c *Config) Path() string {
	return c.path
}

// Snapshot возвращает копию текущих настроек.
func (c *Config) Snapshot() Data {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := c.data
	d.Model.Dirs = append([]string(nil), c.data.Model.Dirs...)
	return d
}

// OnChange добавляет обработчик изменения настроек (сеттеры и перезагрузка файла).
func (c *Config) OnChange(fn func(Data)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Config) update(fn func(d *Data)) error {
	c.mu.Lock()
	fn(&c.data)
	err := c.save()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	c.notify(listeners)
	return err
}

func (c *Config) notify(listeners []func(Data)) {
	snap := c.Snapshot()
	for _, fn := range listeners {
		fn(snap)
	}
}

// Override меняет настройки только в памяти, без сохранения в файл.
// Используется для флагов командной строки.
func (c *Config) Override(fn func(d *Data)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.data)
}

// NotificationsEnabled возвращает true если уведомления включены.
func (c *Config) NotificationsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.UI.Notifications
}

// ToggleNotifications переключает состояние уведомлений.
func (c *Config) ToggleNotifications() (bool, error) {
	var enabled bool
	err := c.update(func(d *Data) {
		d.UI.Notifications = !d.UI.Notifications
		enabled = d.UI.Notifications
	})
	return enabled, err
}

// TypeTextEnabled возвращает true если фразы печатаются в активное окно.
func (c *Config) TypeTextEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.UI.TypeText
}

// ToggleTypeText переключает ввод фраз в активное окно.
func (c *Config) ToggleTypeText() (bool, error) {
	var enabled bool
	err := c.update(func(d *Data) {
		d.UI.TypeText = !d.UI.TypeText
		enabled = d.UI.TypeText
	})
	return enabled, err
}

// UILanguage возвращает язык интерфейса.
func (c *Config) UILanguage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.UI.Language
}

// SetUILanguage устанавливает язык интерфейса.
func (c *Config) SetUILanguage(lang string) error {
	return c.update(func(d *Data) { d.UI.Language = lang })
}

// Hotkey возвращает горячую клавишу.
func (c *Config) Hotkey() Hotkey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.UI.Hotkey
}

// SetHotkey устанавливает горячую клавишу.
func (c *Config) SetHotkey(hk Hotkey) error {
	if _, _, err := hk.Split(); err != nil {
		return err
	}
	return c.update(func(d *Data) { d.UI.Hotkey = hk })
}

// SetModel выбирает модель по языку или имени. Явный путь сбрасывается.
func (c *Config) SetModel(name, lang string) error {
	return c.update(func(d *Data) {
		d.Model.Path = ""
		d.Model.Name = name
		if lang != "" {
			d.Model.Lang = lang
		}
	})
}

// Hotkey - сочетание клавиш вида "ctrl+shift+space".
type Hotkey string

// Modifiers известные модификаторы.
var Modifiers = []string{"ctrl", "shift", "alt", "super"}

// Split разбирает сочетание на модификаторы и клавишу.
func (h Hotkey) Split() (mods []string, key string, err error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(string(h))), "+")
	key = strings.TrimSpace(parts[len(parts)-1])
	if key == "" {
		return nil, "", fmt.Errorf("горячая клавиша %q: не задана клавиша", h)
	}

	for _, p := range parts[:len(parts)-1] {
		p = strings.TrimSpace(p)
		if !slices.Contains(Modifiers, p) {
			return nil, "", fmt.Errorf("горячая клавиша %q: неизвестный модификатор %q", h, p)
		}
		mods = append(mods, p)
	}
	return mods, key, nil
}
