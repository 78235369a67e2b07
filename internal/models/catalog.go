// Package models находит, скачивает и кэширует модели распознавания.
package models

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Тип "small" - компактные модели, которые выбираются при поиске по языку.
const typeSmall = "small"

// CatalogEntry - запись удалённого каталога моделей.
type CatalogEntry struct {
	Name     string `json:"name"`
	Lang     string `json:"lang"`
	Type     string `json:"type"`
	Obsolete string `json:"obsolete"` // "true" или "false"
	MD5      string `json:"md5,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Version  string `json:"version,omitempty"`
}

// IsObsolete сообщает, помечена ли модель устаревшей.
func (e CatalogEntry) IsObsolete() bool {
	return e.Obsolete != "false"
}

func (s *Store) fetchCatalog(ctx context.Context) ([]CatalogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.CatalogURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос каталога: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("каталог: HTTP ошибка: %s", resp.Status)
	}

	var entries []CatalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("разбор каталога: %w", err)
	}
	return entries, nil
}

// findByName ищет модель по точному имени.
func findByName(entries []CatalogEntry, name string) (CatalogEntry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

// findByLang ищет актуальную компактную модель для языка.
func findByLang(entries []CatalogEntry, lang string) (CatalogEntry, bool) {
	for _, e := range entries {
		if e.Lang == lang && e.Type == typeSmall && e.Obsolete == "false" {
			return e, true
		}
	}
	return CatalogEntry{}, false
}
