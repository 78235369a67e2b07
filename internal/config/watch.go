package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch перечитывает файл при изменении на диске до отмены ctx.
// Ошибочный файл не применяется: остаются прежние настройки.
func (c *Config) Watch(ctx context.Context, log logrus.FieldLogger) error {
	if c.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	// Следим за директорией: редакторы заменяют файл целиком
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("наблюдение за %s: %w", c.path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(c.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				// Даём записи завершиться
				time.Sleep(50 * time.Millisecond)
				c.reload(log)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Ошибка наблюдения за конфигурацией")
			}
		}
	}()
	return nil
}

// reload применяет файл, если он отличается от текущих настроек.
func (c *Config) reload(log logrus.FieldLogger) bool {
	d, err := c.read()
	if err != nil {
		log.WithError(err).Warn("Конфигурация не перезагружена")
		return false
	}

	c.mu.Lock()
	if reflect.DeepEqual(d, c.data) {
		c.mu.Unlock()
		return false
	}
	c.data = d
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	log.WithField("path", c.path).Info("Конфигурация перезагружена")
	c.notify(listeners)
	return true
}
