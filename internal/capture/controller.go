// Package capture связывает источник звука с сессией распознавания.
//
// Start и Stop проходят через канал команд и выполняются одной
// управляющей горутиной, поэтому двойной Start не создаёт второй воркер,
// а Stop дожидается завершения текущего кадра.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"voskstream/internal/recognition"
)

var (
	// ErrDevice - ошибка аудиоустройства.
	ErrDevice = errors.New("ошибка аудиоустройства")
	// ErrClosed - контроллер уже закрыт.
	ErrClosed = errors.New("контроллер закрыт")
)

// DefaultMaxConsecutiveErrors - после скольких ошибок подряд сообщать в OnError.
const DefaultMaxConsecutiveErrors = 10

// State состояние контроллера.
type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Source - источник кадров PCM16 mono.
// Open получает частоту распознавателя текущей сессии.
// ReadFrame блокируется не дольше одного кадра.
type Source interface {
	Open(sampleRate int) error
	ReadFrame() ([]byte, error)
	Close() error
}

// Opener создаёт настроенную сессию: находит модель, загружает её
// и создаёт распознаватель.
type Opener interface {
	OpenSession(ctx context.Context) (*recognition.Session, error)
}

// OpenerFunc адаптер функции к Opener.
type OpenerFunc func(ctx context.Context) (*recognition.Session, error)

func (f OpenerFunc) OpenSession(ctx context.Context) (*recognition.Session, error) {
	return f(ctx)
}

// Config настройки контроллера. OnFinalText, OnPartial и OnError
// вызываются из воркера или после его завершения, не одновременно.
type Config struct {
	Source Source
	Opener Opener

	OnFinalText func(text string)
	OnPartial   func(text string)
	OnError     func(err error)
	OnState     func(state State)

	MaxConsecutiveErrors int
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdFailed
)

type command struct {
	kind  cmdKind
	ctx   context.Context
	gen   uint64
	err   error
	reply chan error
}

type run struct {
	gen     uint64
	session *recognition.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Controller управляет циклом захвата.
type Controller struct {
	cfg   Config
	log   logrus.FieldLogger
	state atomic.Int32

	cmds      chan command
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Принадлежат управляющей горутине.
	run *run
	gen uint64
}

// NewController запускает управляющую горутину. Освободить через Close.
func NewController(cfg Config, log logrus.FieldLogger) *Controller {
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	c := &Controller{
		cfg:  cfg,
		log:  log,
		cmds: make(chan command),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go c.loop()
	return c
}

// State возвращает текущее состояние.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start запускает распознавание. Если уже запущено - ничего не делает.
// Ошибка загрузки модели или открытия устройства оставляет контроллер в Idle.
func (c *Controller) Start(ctx context.Context) error {
	return c.call(command{kind: cmdStart, ctx: ctx})
}

// Stop останавливает распознавание и ждёт завершения воркера.
// Последняя фраза передаётся в OnFinalText.
func (c *Controller) Stop() error {
	return c.call(command{kind: cmdStop})
}

// Toggle переключает запуск и остановку.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.State() == Running {
		return c.Stop()
	}
	return c.Start(ctx)
}

// Close останавливает распознавание и управляющую горутину.
func (c *Controller) Close() error {
	err := c.Stop()
	if errors.Is(err, ErrClosed) {
		err = nil
	}
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.done
	return err
}

func (c *Controller) call(cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-c.quit:
		return ErrClosed
	}
	return <-cmd.reply
}

func (c *Controller) loop() {
	defer close(c.done)

	for {
		select {
		case cmd := <-c.cmds:
			var err error
			switch cmd.kind {
			case cmdStart:
				err = c.start(cmd.ctx)
			case cmdStop:
				err = c.stop()
			case cmdFailed:
				c.failed(cmd.gen, cmd.err)
			}
			if cmd.reply != nil {
				cmd.reply <- err
			}
		case <-c.quit:
			if c.run != nil {
				if err := c.teardown(); err != nil {
					c.log.WithError(err).Warn("Ошибка при остановке")
				}
			}
			return
		}
	}
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	c.log.WithField("state", s).Debug("Состояние захвата")
	if c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

func (c *Controller) start(ctx context.Context) error {
	if c.run != nil {
		c.log.Info("Распознавание уже запущено")
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	session, err := c.cfg.Opener.OpenSession(ctx)
	if err != nil {
		return err
	}

	if err := c.cfg.Source.Open(int(session.SampleRate())); err != nil {
		if _, serr := session.Stop(); serr != nil {
			c.log.WithError(serr).Warn("Ошибка освобождения сессии")
		}
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}

	c.gen++
	workCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		gen:     c.gen,
		session: session,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.run = r
	c.setState(Running)

	go c.work(workCtx, r)

	c.log.WithField("session", session.ID()).Info("Распознавание запущено")
	return nil
}

func (c *Controller) stop() error {
	if c.run == nil {
		c.log.Info("Распознавание не запущено")
		return nil
	}
	return c.teardown()
}

// failed обрабатывает отказ устройства из воркера поколения gen.
func (c *Controller) failed(gen uint64, err error) {
	if c.run == nil || c.run.gen != gen {
		return
	}
	c.log.WithError(err).Error("Отказ аудиоустройства, остановка")
	if terr := c.teardown(); terr != nil {
		c.log.WithError(terr).Warn("Ошибка при остановке")
	}
	c.emitError(fmt.Errorf("%w: %v", ErrDevice, err))
}

func (c *Controller) teardown() error {
	r := c.run
	c.setState(Stopping)

	r.cancel()
	<-r.done

	var errs []error
	if err := c.cfg.Source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrDevice, err))
	}

	res, err := r.session.Stop()
	if err != nil {
		errs = append(errs, err)
	}
	if res.Text != "" {
		c.emitFinal(res.Text)
	}

	c.run = nil
	c.setState(Idle)
	c.log.WithField("session", r.session.ID()).Info("Распознавание остановлено")
	return errors.Join(errs...)
}

func (c *Controller) work(ctx context.Context, r *run) {
	defer close(r.done)

	log := c.log.WithField("session", r.session.ID())
	var failures int

	for {
		if ctx.Err() != nil {
			return
		}

		frame, err := c.cfg.Source.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			go c.notifyFailed(r.gen, err)
			return
		}

		res, err := r.session.Feed(frame)
		if err != nil {
			failures++
			log.WithError(err).Debug("Кадр пропущен")
			if failures%c.cfg.MaxConsecutiveErrors == 0 {
				c.emitError(fmt.Errorf("%d ошибок подряд: %w", failures, err))
			}
			continue
		}
		failures = 0

		switch res.Kind {
		case recognition.Final:
			if res.Text != "" {
				log.WithField("text", res.Text).Debug("Фраза распознана")
				c.emitFinal(res.Text)
			}
		case recognition.Partial:
			if c.cfg.OnPartial != nil {
				c.cfg.OnPartial(res.Text)
			}
		}
	}
}

func (c *Controller) notifyFailed(gen uint64, err error) {
	select {
	case c.cmds <- command{kind: cmdFailed, gen: gen, err: err}:
	case <-c.quit:
	}
}

func (c *Controller) emitFinal(text string) {
	if c.cfg.OnFinalText != nil {
		c.cfg.OnFinalText(text)
	}
}

func (c *Controller) emitError(err error) {
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}
