package layout

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval  = 50 * time.Millisecond
	DefaultThreshold = 20

	// DefaultWindow matches a 64-point analysis, i.e. 32 frequency bins.
	DefaultWindow = 32
)

type SamplerConfig struct {
	Interval  time.Duration
	Threshold float64
	Window    int
}

// ReportFunc is called from sampling goroutines when a speaking flag flips.
type ReportFunc func(id domain.UserID, src core.Metered, speaking bool)

type task struct {
	src    core.Metered
	cancel context.CancelFunc
	done   chan struct{}
}

// Sampler runs one cancellable sampling task per stream.
type Sampler struct {
	cfg    SamplerConfig
	report ReportFunc

	mu    sync.Mutex
	tasks map[domain.UserID]*task
}

func NewSampler(cfg SamplerConfig, report ReportFunc) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Sampler{
		cfg:    cfg,
		report: report,
		tasks:  make(map[domain.UserID]*task),
	}
}

// Start samples src for id, replacing any task already running for id.
func (s *Sampler) Start(ctx context.Context, id domain.UserID, src core.Metered) {
	logger := log.With().
		Str("module", "layout.sampler").
		Str("peer", string(id)).
		Logger()

	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{src: src, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if old, ok := s.tasks[id]; ok {
		logger.Debug().Msg("replacing sampling task")
		old.cancel()
	}
	s.tasks[id] = t
	s.mu.Unlock()

	go s.loop(taskCtx, id, t, &logger)
}

func (s *Sampler) loop(ctx context.Context, id domain.UserID, t *task, logger *zerolog.Logger) {
	defer close(t.done)
	defer s.forget(id, t)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	win := newRollingMean(s.cfg.Window)
	speaking := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		level, live := t.src.AudioLevel()
		if !live {
			logger.Debug().Msg("stream released, sampling stopped")
			if speaking && ctx.Err() == nil {
				s.report(id, t.src, false)
			}
			return
		}
		win.push(level)
		now := win.mean() > s.cfg.Threshold
		if now == speaking || ctx.Err() != nil {
			continue
		}
		speaking = now
		s.report(id, t.src, speaking)
	}
}

func (s *Sampler) forget(id domain.UserID, t *task) {
	s.mu.Lock()
	if s.tasks[id] == t {
		delete(s.tasks, id)
	}
	s.mu.Unlock()
}

// Stop cancels the task for id, if any.
func (s *Sampler) Stop(id domain.UserID) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	if ok {
		t.cancel()
	}
}

// StopAll cancels every task and waits for them to exit.
func (s *Sampler) StopAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[domain.UserID]*task)
	s.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// Source reports which stream id is currently sampled from.
func (s *Sampler) Source(id domain.UserID) (core.Metered, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.src, true
}

func (s *Sampler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// rollingMean is a fixed-size ring of the latest samples.
type rollingMean struct {
	buf  []float64
	head int
	n    int
	sum  float64
}

func newRollingMean(size int) *rollingMean {
	return &rollingMean{buf: make([]float64, size)}
}

func (r *rollingMean) push(v float64) {
	if r.n == len(r.buf) {
		r.sum -= r.buf[r.head]
	} else {
		r.n++
	}
	r.buf[r.head] = v
	r.sum += v
	r.head = (r.head + 1) % len(r.buf)
}

func (r *rollingMean) mean() float64 {
	if r.n == 0 {
		return 0
	}
	return r.sum / float64(r.n)
}
