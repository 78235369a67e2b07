package models

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"voskstream/internal/logger"
)

// fakeRemote - каталог и архивы моделей на httptest сервере.
type fakeRemote struct {
	server   *httptest.Server
	catalog  []CatalogEntry
	archives map[string][]byte
	calls    atomic.Int32
}

func newFakeRemote(t *testing.T, catalog []CatalogEntry) *fakeRemote {
	t.Helper()
	r := &fakeRemote{catalog: catalog, archives: map[string][]byte{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/model-list.json", func(w http.ResponseWriter, req *http.Request) {
		r.calls.Add(1)
		json.NewEncoder(w).Encode(r.catalog)
	})
	mux.HandleFunc("/models/", func(w http.ResponseWriter, req *http.Request) {
		r.calls.Add(1)
		data, ok := r.archives[filepath.Base(req.URL.Path)]
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Write(data)
	})
	r.server = httptest.NewServer(mux)
	t.Cleanup(r.server.Close)
	return r
}

func (r *fakeRemote) config(dirs ...string) Config {
	return Config{
		Dirs:        dirs,
		CatalogURL:  r.server.URL + "/model-list.json",
		DownloadURL: r.server.URL + "/models",
	}
}

// zipModel собирает архив с директорией модели.
func zipModel(t *testing.T, name string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.Create(name + "/"); err != nil {
		t.Fatal(err)
	}
	f, err := zw.Create(name + "/conf/model.conf")
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("--min-active=200\n"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func mkdirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.MkdirAll(filepath.Join(root, n), 0755); err != nil {
			t.Fatal(err)
		}
	}
}

func TestResolveExplicitPath(t *testing.T) {
	s := NewStore(Config{}, logger.Discard())

	got, err := s.Resolve(context.Background(), Descriptor{Path: "/does/not/exist"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "/does/not/exist" {
		t.Errorf("expected path unchanged, got %q", got)
	}
}

func TestResolveLangLocalNoNetwork(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir, "vosk-model-small-en-us-0.15")
	remote := newFakeRemote(t, nil)

	s := NewStore(remote.config(dir), logger.Discard())
	got, err := s.Resolve(context.Background(), Descriptor{Lang: "en"})
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "vosk-model-small-en-us-0.15"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if n := remote.calls.Load(); n != 0 {
		t.Errorf("expected zero network calls, got %d", n)
	}
}

func TestResolveLocalBeatsRemote(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir, "vosk-model-ru-0.42")
	remote := newFakeRemote(t, []CatalogEntry{
		{Name: "vosk-model-small-ru-0.22", Lang: "ru", Type: "small", Obsolete: "false"},
	})

	s := NewStore(remote.config(dir), logger.Discard())
	got, err := s.Resolve(context.Background(), Descriptor{Lang: "ru"})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "vosk-model-ru-0.42" {
		t.Errorf("expected local model, got %q", got)
	}
	if n := remote.calls.Load(); n != 0 {
		t.Errorf("expected zero network calls, got %d", n)
	}
}

func TestResolvePriorityOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	mkdirs(t, first, "vosk-model-small-de-0.15", "vosk-model-de-0.21")
	mkdirs(t, second, "vosk-model-de-0.1")

	s := NewStore(Config{Dirs: []string{filepath.Join(first, "missing"), second, first}}, logger.Discard())
	got, err := s.Resolve(context.Background(), Descriptor{Lang: "de"})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(second, "vosk-model-de-0.1") {
		t.Errorf("expected match from the first existing directory, got %q", got)
	}

	s = NewStore(Config{Dirs: []string{first}}, logger.Discard())
	got, _ = s.Resolve(context.Background(), Descriptor{Lang: "de"})
	if filepath.Base(got) != "vosk-model-de-0.21" {
		t.Errorf("expected lexicographically first match, got %q", got)
	}
}

func TestResolveByNameLocal(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir, "vosk-model-en-us-0.22", "vosk-model-en-us-0.22-lgraph")

	s := NewStore(Config{Dirs: []string{dir}}, logger.Discard())
	got, err := s.Resolve(context.Background(), Descriptor{Name: "vosk-model-en-us-0.22-lgraph"})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "vosk-model-en-us-0.22-lgraph" {
		t.Errorf("expected exact name match, got %q", got)
	}
}

func TestResolveDownloadsByLang(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	archive := zipModel(t, "vosk-model-small-fr-0.22")
	sum := md5.Sum(archive)

	remote := newFakeRemote(t, []CatalogEntry{
		{Name: "vosk-model-fr-0.6-linto", Lang: "fr", Type: "big", Obsolete: "false"},
		{Name: "vosk-model-small-fr-pguyot-0.3", Lang: "fr", Type: "small", Obsolete: "true"},
		{Name: "vosk-model-small-fr-0.22", Lang: "fr", Type: "small", Obsolete: "false", MD5: hex.EncodeToString(sum[:])},
	})
	remote.archives["vosk-model-small-fr-0.22.zip"] = archive

	progress := make(chan Progress, 64)
	cfg := remote.config(dir)
	cfg.Progress = progress

	s := NewStore(cfg, logger.Discard())
	got, err := s.Resolve(context.Background(), Descriptor{Lang: "fr"})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "vosk-model-small-fr-0.22") {
		t.Errorf("unexpected path %q", got)
	}
	if _, err := os.Stat(filepath.Join(got, "conf", "model.conf")); err != nil {
		t.Errorf("model not unpacked: %v", err)
	}
	if _, err := os.Stat(got + ".zip"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("archive must be deleted, stat err=%v", err)
	}

	var done bool
	for len(progress) > 0 {
		p := <-progress
		if p.Error != nil {
			t.Errorf("unexpected progress error: %v", p.Error)
		}
		done = done || p.Done
	}
	if !done {
		t.Error("expected a Done progress update")
	}

	// Второй вызов находит модель локально
	before := remote.calls.Load()
	if _, err := s.Resolve(context.Background(), Descriptor{Lang: "fr"}); err != nil {
		t.Fatal(err)
	}
	if remote.calls.Load() != before {
		t.Error("cached model must not hit the network")
	}
}

func TestResolveNotFound(t *testing.T) {
	remote := newFakeRemote(t, []CatalogEntry{
		{Name: "vosk-model-small-en-us-0.15", Lang: "en-us", Type: "small", Obsolete: "false"},
	})
	s := NewStore(remote.config(t.TempDir()), logger.Discard())

	if _, err := s.Resolve(context.Background(), Descriptor{Lang: "xx"}); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("lang: expected ErrModelNotFound, got %v", err)
	}
	if _, err := s.Resolve(context.Background(), Descriptor{Name: "nope"}); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("name: expected ErrModelNotFound, got %v", err)
	}
	if _, err := s.Resolve(context.Background(), Descriptor{}); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("empty: expected ErrModelNotFound, got %v", err)
	}
}

func TestResolveDownloadFailures(t *testing.T) {
	entry := CatalogEntry{Name: "vosk-model-small-it-0.22", Lang: "it", Type: "small", Obsolete: "false"}

	tests := []struct {
		name    string
		archive []byte
		md5     string
	}{
		{name: "missing archive"},
		{name: "corrupt archive", archive: []byte("not a zip")},
		{name: "checksum mismatch", archive: zipModel(t, entry.Name), md5: "00000000000000000000000000000000"},
		{name: "wrong contents", archive: zipModel(t, "something-else")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			e := entry
			e.MD5 = tt.md5
			remote := newFakeRemote(t, []CatalogEntry{e})
			if tt.archive != nil {
				remote.archives[entry.Name+".zip"] = tt.archive
			}

			s := NewStore(remote.config(dir), logger.Discard())
			_, err := s.Resolve(context.Background(), Descriptor{Name: entry.Name})
			if !errors.Is(err, ErrDownloadFailed) {
				t.Fatalf("expected ErrDownloadFailed, got %v", err)
			}
			if _, err := os.Stat(filepath.Join(dir, entry.Name+".zip")); !errors.Is(err, os.ErrNotExist) {
				t.Error("archive must be removed after failure")
			}
			if _, err := os.Stat(filepath.Join(dir, entry.Name)); !errors.Is(err, os.ErrNotExist) {
				t.Error("partial model must be removed after failure")
			}
			if left, _ := os.ReadDir(dir); len(left) != 0 {
				t.Errorf("download dir must stay empty, found %d entries (first %q)", len(left), left[0].Name())
			}
		})
	}
}

func TestResolveCatalogUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewStore(Config{Dirs: []string{t.TempDir()}, CatalogURL: server.URL}, logger.Discard())
	if _, err := s.Resolve(context.Background(), Descriptor{Lang: "en"}); !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("expected ErrDownloadFailed, got %v", err)
	}
}

func TestUnzipRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, _ := zw.Create("../evil.txt")
	f.Write([]byte("x"))
	zw.Close()

	dir := t.TempDir()
	src := filepath.Join(dir, "a.zip")
	if err := os.WriteFile(src, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(dir, "out")
	if err := unzip(src, dest); err == nil {
		t.Fatal("expected traversal error")
	}
	if _, err := os.Stat(filepath.Join(dir, "evil.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Error("file escaped destination")
	}
}

func TestLocalAndList(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir, "vosk-model-small-en-us-0.15")
	os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0644)

	remote := newFakeRemote(t, []CatalogEntry{{Name: "a", Lang: "en", Type: "small", Obsolete: "true"}})
	s := NewStore(remote.config(dir), logger.Discard())

	local, err := s.Local()
	if err != nil {
		t.Fatal(err)
	}
	if len(local) != 1 {
		t.Errorf("expected one local model, got %v", local)
	}

	entries, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].IsObsolete() {
		t.Errorf("unexpected catalog %+v", entries)
	}
}
