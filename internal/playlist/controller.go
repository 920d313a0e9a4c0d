package playlist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/decoder"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/media"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/reader"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/renderer"
	"github.com/GoldenFealla/GaplessPlayerGo/internal/stage"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var ErrNothingPlayed = errors.New("nothing could be played")

type Options struct {
	Opener media.Opener
	Output *renderer.Output
	// Audio may be nil, decoded audio is then discarded.
	Audio renderer.AudioSink

	Session  media.Options
	Reader   reader.Config
	Decoder  decoder.Config
	Renderer renderer.Config

	Logger logrus.FieldLogger
}

type runner interface {
	Start()
	Stop()
	ID() uint64
	Subscribe(stage.Observer)
	Unsubscribe(stage.Observer)
}

type slot struct {
	runner
	index int
}

// Controller plays a list of files back to back. Stages of file i run in
// role i%2, so the next file is read and decoded while the current one is
// still on screen.
type Controller struct {
	opts Options
	log  logrus.FieldLogger

	events chan stage.Event
	quit   chan struct{}
	once   sync.Once

	mutex      sync.Mutex
	files      []string
	slots      [stage.NumKinds][2]*slot
	started    [stage.NumKinds]int
	done       [stage.NumKinds]int
	sessions   map[int]*media.Session
	firstFrame map[int]bool
	rendering  *media.Session
	presented  int
	firstErr   error
	finished   bool
}

func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	opts.Session.Logger = opts.Logger

	return &Controller{
		opts:       opts,
		log:        opts.Logger.WithField("component", "playlist"),
		events:     make(chan stage.Event, 64),
		quit:       make(chan struct{}),
		sessions:   map[int]*media.Session{},
		firstFrame: map[int]bool{},
	}
}

// Notify queues e for Run. It never blocks the posting stage.
func (c *Controller) Notify(e stage.Event) {
	select {
	case c.events <- e:
	default:
		go func() {
			select {
			case c.events <- e:
			case <-c.quit:
			}
		}()
	}
}

// Run plays files and returns once the last one was rendered or ctx is done.
func (c *Controller) Run(ctx context.Context, files []string) error {
	defer c.once.Do(func() { close(c.quit) })

	c.mutex.Lock()
	c.files = files
	if len(files) == 0 {
		c.finished = true
		c.mutex.Unlock()
		c.log.Info("playlist: nothing to play")
		return nil
	}
	c.log.WithField("files", len(files)).Info("playlist: starting")
	c.advance()
	c.mutex.Unlock()

	for !c.IsFinished() {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case e := <-c.events:
			c.handle(e)
		}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.firstErr != nil && c.presented == 0 {
		return fmt.Errorf("playlist: %w: %w", ErrNothingPlayed, c.firstErr)
	}
	return nil
}

func (c *Controller) IsFinished() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.finished
}

// Completed returns how many files each stage kind has finished.
func (c *Controller) Completed() (read, decoded, rendered int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.done[stage.Reader], c.done[stage.Decoder], c.done[stage.Renderer]
}

// Seek moves the file on screen by incr seconds relative to the master clock.
func (c *Controller) Seek(incr float64) bool {
	c.mutex.Lock()
	s := c.rendering
	c.mutex.Unlock()

	if s == nil {
		return false
	}
	pos := s.MasterClock() + incr
	c.log.WithFields(logrus.Fields{"increment": incr, "position": pos}).Debug("playlist: seek requested")
	return s.RequestSeek(int64(pos*media.TimeBase), incr)
}

func (c *Controller) handle(e stage.Event) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	sl := c.slots[e.Kind][e.Role]
	if sl == nil || sl.ID() != e.ID {
		return
	}

	l := c.log.WithFields(logrus.Fields{"kind": e.Kind, "role": e.Role, "index": sl.index})
	switch e.Type {
	case stage.EventFirstFrame:
		l.Debug("playlist: first frame decoded")
		c.firstFrame[sl.index] = true
	case stage.EventFinished:
		l.Debug("playlist: stage finished")
		c.retire(e.Kind, e.Role)
		c.done[e.Kind]++
		if e.Kind == stage.Reader && c.done[stage.Reader] == len(c.files) {
			c.retire(stage.Reader, stage.Primary)
			c.retire(stage.Reader, stage.Secondary)
		}
	}

	c.advance()
}

func (c *Controller) retire(k stage.Kind, r stage.Role) {
	sl := c.slots[k][r]
	if sl == nil {
		return
	}
	c.slots[k][r] = nil
	sl.Unsubscribe(c)
	sl.Stop()

	if rd, ok := sl.runner.(*renderer.Renderer); ok {
		c.presented += rd.Presented()
		if c.rendering == rd.Session() {
			c.rendering = nil
		}
	}
	if s := c.sessions[sl.index]; k == stage.Reader && sl.index == 0 && s != nil {
		c.firstErr = s.Err()
	}
}

// advance starts every stage whose predecessor is done and releases sessions
// no stage uses any more. The mutex must be held.
func (c *Controller) advance() {
	n := len(c.files)

	if i := c.started[stage.Reader]; i < n && i == c.done[stage.Reader] && i < c.done[stage.Renderer]+2 {
		s := media.NewSession(c.opts.Opener, c.opts.Session)
		c.sessions[i] = s
		c.start(stage.Reader, i, reader.New(s, c.files[i], stage.RoleFor(i), c.opts.Reader))
	}

	if i := c.started[stage.Decoder]; i < c.started[stage.Reader] && i == c.done[stage.Decoder] {
		c.start(stage.Decoder, i, decoder.New(c.sessions[i], stage.RoleFor(i), c.opts.Decoder))
	}

	if i := c.started[stage.Renderer]; i < c.started[stage.Decoder] && i == c.done[stage.Renderer] &&
		(c.firstFrame[i] || c.done[stage.Decoder] > i) {
		s := c.sessions[i]
		c.rendering = s
		c.start(stage.Renderer, i, renderer.New(s, c.opts.Output, c.opts.Audio, stage.RoleFor(i), c.opts.Renderer))
	}

	released := lo.Min(c.done[:])
	for i, s := range c.sessions {
		if i < released {
			s.Close()
			delete(c.sessions, i)
			delete(c.firstFrame, i)
		}
	}

	if c.done[stage.Renderer] == n && !c.finished {
		c.finished = true
		c.log.Info("playlist: finished")
	}
}

func (c *Controller) start(k stage.Kind, i int, r runner) {
	role := stage.RoleFor(i)
	c.log.WithFields(logrus.Fields{"kind": k, "role": role, "index": i, "file": c.files[i]}).Debug("playlist: starting stage")

	c.slots[k][role] = &slot{runner: r, index: i}
	c.started[k]++
	r.Subscribe(c)
	r.Start()
}

func (c *Controller) shutdown() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for k := range c.slots {
		for r := range c.slots[k] {
			c.retire(stage.Kind(k), stage.Role(r))
		}
	}
	for i, s := range c.sessions {
		s.Close()
		delete(c.sessions, i)
	}
	c.rendering = nil
	c.log.Info("playlist: stopped")
}
