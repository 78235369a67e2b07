// Voskstream - офлайн потоковое распознавание речи на Vosk.
//
// Подкоманды:
//
//	voskstream [tray]       трей с запуском по горячей клавише
//	voskstream listen       печатает распознанные фразы до Ctrl+C
//	voskstream srt -in f.wav [-out f.srt] [-words N]
//	voskstream models [-remote]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"voskstream/internal/app"
	"voskstream/internal/capture"
	"voskstream/internal/config"
	"voskstream/internal/hotkey"
	"voskstream/internal/logger"
	"voskstream/internal/pcm"
	"voskstream/internal/recognition"
	"voskstream/internal/subtitle"
)

// Version устанавливается при сборке через -ldflags.
var Version = "dev"

// common - флаги, общие для всех подкоманд.
type common struct {
	configPath string
	modelPath  string
	modelName  string
	lang       string
	logLevel   string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "путь к config.yaml (по умолчанию рядом с бинарником)")
	fs.StringVar(&c.modelPath, "model", "", "директория модели")
	fs.StringVar(&c.modelName, "name", "", "имя модели из каталога")
	fs.StringVar(&c.lang, "lang", "", "язык модели, например en-us")
	fs.StringVar(&c.logLevel, "log-level", "", "уровень логов (debug, info, warn, error)")
}

// load читает конфигурацию и накладывает флаги поверх неё.
func (c *common) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.Override(func(d *config.Data) {
		if c.modelPath != "" {
			d.Model.Path = c.modelPath
		}
		if c.modelName != "" {
			d.Model.Path, d.Model.Name = "", c.modelName
		}
		if c.lang != "" {
			d.Model.Path, d.Model.Name, d.Model.Lang = "", "", c.lang
		}
		if c.logLevel != "" {
			d.LogLevel = c.logLevel
		}
	})
	log := logger.New(cfg.Snapshot().LogLevel)
	return cfg, log, nil
}

func main() {
	cmd := "tray"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "tray":
		err = runTray(args)
	case "listen":
		err = runListen(args)
	case "srt":
		err = runSRT(args)
	case "models":
		err = runModels(args)
	default:
		err = fmt.Errorf("неизвестная команда %q (tray, listen, srt, models)", cmd)
	}

	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "voskstream: %v\n", err)
		os.Exit(1)
	}
}

func runTray(args []string) error {
	var c common
	fs := flag.NewFlagSet("tray", flag.ContinueOnError)
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := c.load()
	if err != nil {
		return err
	}
	log.WithField("version", Version).Info("Voskstream запускается")

	// Трей и горячие клавиши требуют главного потока на macOS
	hotkey.RunOnMainThread(func() {
		app.New(cfg, log).Run()
	})
	return nil
}

func runListen(args []string) error {
	var c common
	partial := false
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	c.register(fs)
	fs.BoolVar(&partial, "partial", false, "печатать промежуточные результаты в stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := c.load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := make(chan error, 1)
	cb := capture.Config{
		OnFinalText: func(text string) { fmt.Println(text) },
		OnError: func(err error) {
			log.WithError(err).Error("Ошибка распознавания")
			if errors.Is(err, capture.ErrDevice) {
				select {
				case failed <- err:
				default:
				}
			}
		},
	}
	if partial {
		cb.OnPartial = func(text string) { fmt.Fprintf(os.Stderr, "\r%s", text) }
	}

	ctrl := app.NewController(cfg, app.NewEngine(cfg.Snapshot(), log), nil, cb, log)
	if err := ctrl.Start(ctx); err != nil {
		ctrl.Close()
		return err
	}
	log.Info("Слушаю, Ctrl+C для выхода")

	select {
	case <-ctx.Done():
		return ctrl.Close()
	case err := <-failed:
		ctrl.Close()
		return err
	}
}

func runSRT(args []string) error {
	var c common
	var in, out string
	var words int
	fs := flag.NewFlagSet("srt", flag.ContinueOnError)
	c.register(fs)
	fs.StringVar(&in, "in", "", "входной WAV файл (PCM 16 бит)")
	fs.StringVar(&out, "out", "", "выходной SRT файл (по умолчанию stdout)")
	fs.IntVar(&words, "words", 0, "слов в одном субтитре (по умолчанию из конфигурации)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if in == "" {
		return errors.New("нужно указать -in")
	}

	cfg, log, err := c.load()
	if err != nil {
		return err
	}
	d := cfg.Snapshot()
	if words <= 0 {
		words = d.Recognition.WordsPerLine
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wav, err := pcm.OpenWAV(in)
	if err != nil {
		return err
	}
	defer wav.Close()

	path, err := app.NewStore(d, nil, log).Resolve(ctx, d.Descriptor())
	if err != nil {
		return err
	}

	opts := d.SessionOptions()
	opts.SampleRate = float64(wav.SampleRate())
	opts.Words = true
	opts.MaxAlternatives = 0

	session, err := recognition.Open(app.NewEngine(d, log), path, "", opts, log)
	if err != nil {
		return err
	}
	cues, err := session.GenerateSubtitles(ctx, wav, words)
	if _, serr := session.Stop(); serr != nil {
		log.WithError(serr).Warn("Ошибка освобождения сессии")
	}
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := subtitle.WriteSRT(w, cues); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"cues": len(cues), "out": out}).Info("Субтитры записаны")
	return nil
}

func runModels(args []string) error {
	var c common
	remote := false
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	c.register(fs)
	fs.BoolVar(&remote, "remote", false, "показать модели из каталога")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := c.load()
	if err != nil {
		return err
	}
	store := app.NewStore(cfg.Snapshot(), nil, log)

	if !remote {
		paths, err := store.Local()
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	}

	entries, err := store.List(context.Background())
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsObsolete() {
			continue
		}
		fmt.Printf("%-45s %-8s %-6s %s\n", e.Name, e.Lang, e.Type, humanize.Bytes(uint64(e.Size)))
	}
	return nil
}
