package models

import (
	"archive/zip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// Progress информация о прогрессе загрузки.
type Progress struct {
	Model      string
	Downloaded int64
	Total      int64
	Done       bool
	Error      error
}

// download скачивает архив модели, распаковывает его во временную директорию
// внутри DownloadDir и переносит модель на место. При ошибке в DownloadDir
// ничего не остаётся.
func (s *Store) download(ctx context.Context, entry CatalogEntry) (string, error) {
	destDir := s.cfg.DownloadDir
	modelDir := filepath.Join(destDir, entry.Name)
	archive := modelDir + s.cfg.ArchiveSuffix
	url := strings.TrimRight(s.cfg.DownloadURL, "/") + "/" + entry.Name + s.cfg.ArchiveSuffix

	log := s.log.WithField("model", entry.Name)

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", s.fail(entry, fmt.Errorf("создание %s: %w", destDir, err))
	}

	log.WithField("url", url).Info("Скачиваю модель")
	if err := s.fetchArchive(ctx, url, archive, entry); err != nil {
		os.Remove(archive)
		return "", s.fail(entry, err)
	}

	staging, err := os.MkdirTemp(destDir, ".unpack-")
	if err != nil {
		os.Remove(archive)
		return "", s.fail(entry, err)
	}
	defer os.RemoveAll(staging)

	err = unzip(archive, staging)
	if rerr := os.Remove(archive); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		log.WithError(rerr).Warn("Не удалось удалить архив")
	}
	if err != nil {
		return "", s.fail(entry, fmt.Errorf("ошибка распаковки: %w", err))
	}

	unpacked := filepath.Join(staging, entry.Name)
	if stat, err := os.Stat(unpacked); err != nil || !stat.IsDir() {
		return "", s.fail(entry, fmt.Errorf("архив не содержит директорию %s", entry.Name))
	}
	if err := os.Rename(unpacked, modelDir); err != nil {
		return "", s.fail(entry, fmt.Errorf("установка модели: %w", err))
	}

	log.WithField("path", modelDir).Info("Модель установлена")
	return modelDir, nil
}

func (s *Store) fail(entry CatalogEntry, err error) error {
	s.report(Progress{Model: entry.Name, Done: true, Error: err})
	return fmt.Errorf("%w: %s: %v", ErrDownloadFailed, entry.Name, err)
}

func (s *Store) report(p Progress) {
	if s.cfg.Progress == nil {
		return
	}
	if p.Done {
		s.cfg.Progress <- p
		return
	}
	select {
	case s.cfg.Progress <- p:
	default:
	}
}

func (s *Store) fetchArchive(ctx context.Context, url, dest string, entry CatalogEntry) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка скачивания: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP ошибка: %s", resp.Status)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = entry.Size
	}

	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer file.Close()

	var sum hash.Hash
	var w io.Writer = file
	if entry.MD5 != "" {
		sum = md5.New()
		w = io.MultiWriter(file, sum)
	}

	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			downloaded += int64(n)
			s.report(Progress{Model: entry.Name, Downloaded: downloaded, Total: total})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	if total > 0 && downloaded != total {
		return fmt.Errorf("неполная загрузка: %s из %s",
			humanize.Bytes(uint64(downloaded)), humanize.Bytes(uint64(total)))
	}
	if sum != nil {
		if got := hex.EncodeToString(sum.Sum(nil)); !strings.EqualFold(got, entry.MD5) {
			return fmt.Errorf("контрольная сумма не совпадает: %s != %s", got, entry.MD5)
		}
	}
	if err := file.Close(); err != nil {
		return err
	}

	s.log.WithField("model", entry.Name).Infof("Скачано %s", humanize.Bytes(uint64(downloaded)))
	s.report(Progress{Model: entry.Name, Downloaded: downloaded, Total: downloaded, Done: true})
	return nil
}

func unzip(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	root := filepath.Clean(destDir) + string(os.PathSeparator)

	for _, f := range r.File {
		fpath := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(fpath, root) {
			return fmt.Errorf("недопустимый путь в архиве: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
			return err
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return err
		}

		_, err = io.Copy(outFile, rc)
		outFile.Close()
		rc.Close()

		if err != nil {
			return err
		}
	}

	return nil
}
