package worker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"tradebridge/internal/config"
	"tradebridge/internal/metrics"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotReady       = errors.New("worker is not ready")
	ErrWrite          = errors.New("write to worker failed")
	ErrAlreadyStarted = errors.New("supervisor already started")
)

const maxLineSize = 4 << 20

type State string

const (
	StateStarting   State = "starting"
	StateReady      State = "ready"
	StateCrashed    State = "crashed"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
)

// MessageHandler receives every JSON object the worker prints on stdout.
type MessageHandler func(msg Inbound)

// ExitHandler runs after the worker exits. crashed is false for a clean exit
// or a supervisor stop.
type ExitHandler func(crashed bool)

// StatusHandler runs on every state transition.
type StatusHandler func(state State)

// Supervisor owns one external analysis worker, restarting it after crashes.
type Supervisor struct {
	cfg    config.WorkerConfig
	launch Launcher
	logger *logrus.Entry

	onMessage MessageHandler
	onExit    []ExitHandler
	onStatus  []StatusHandler

	mu            sync.RWMutex
	state         State
	proc          Process
	exited        chan struct{}
	generation    uint64
	lastHeartbeat time.Time
	started       bool
	stopping      bool
	ctx           context.Context
	cancel        context.CancelFunc

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewSupervisor prepares a supervisor. Handlers must be registered before Start.
func NewSupervisor(cfg config.WorkerConfig, launch Launcher, logger *logrus.Logger) *Supervisor {
	if launch == nil {
		launch = CommandLauncher(cfg.Command, cfg.Args, cfg.Dir)
	}
	return &Supervisor{
		cfg:    cfg,
		launch: launch,
		logger: logger.WithField("component", "worker"),
		state:  StateStopped,
	}
}

func (s *Supervisor) OnMessage(h MessageHandler) { s.onMessage = h }
func (s *Supervisor) OnExit(h ExitHandler)       { s.onExit = append(s.onExit, h) }
func (s *Supervisor) OnStatus(h StatusHandler)   { s.onStatus = append(s.onStatus, h) }

// Start spawns the worker. A failed spawn is treated as a crash and retried.
func (s *Supervisor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.spawn()

	if s.cfg.HeartbeatInterval > 0 {
		s.wg.Add(1)
		go s.heartbeatLoop()
	}
	return nil
}

func (s *Supervisor) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateReady
}

func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastHeartbeat returns the time of the last successful heartbeat write.
func (s *Supervisor) LastHeartbeat() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHeartbeat, !s.lastHeartbeat.IsZero()
}

// WriteLine encodes v as one JSON line on the worker's stdin.
func (s *Supervisor) WriteLine(v any) error {
	s.mu.RLock()
	if s.state != StateReady || s.proc == nil {
		s.mu.RUnlock()
		return ErrNotReady
	}
	stdin := s.proc.Stdin()
	s.mu.RUnlock()

	line, err := encodeLine(v)
	if err != nil {
		return fmt.Errorf("encode worker message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := stdin.Write(line); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// Stop closes the worker's stdin, waits up to StopTimeout for it to exit and
// kills it otherwise. No restart follows.
func (s *Supervisor) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.cancel()
	proc, exited := s.proc, s.exited
	s.mu.Unlock()

	var errs []error
	if proc != nil {
		if err := proc.Stdin().Close(); err != nil {
			errs = append(errs, fmt.Errorf("close worker stdin: %w", err))
		}
		timeout := s.cfg.StopTimeout
		if timeout <= 0 {
			timeout = time.Second
		}
		timer := time.NewTimer(timeout)
		select {
		case <-exited:
		case <-timer.C:
			s.logger.Warn("worker did not exit in time, killing it")
			if err := proc.Kill(); err != nil {
				errs = append(errs, fmt.Errorf("kill worker: %w", err))
			}
		case <-ctx.Done():
			_ = proc.Kill()
			errs = append(errs, ctx.Err())
		}
		timer.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	s.setState(StateStopped)
	return errors.Join(errs...)
}

func (s *Supervisor) spawn() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	proc, err := s.launch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.WithError(err).Error("failed to spawn worker")
		s.setState(StateCrashed)
		s.notifyExit(true)
		s.scheduleRestart()
		return
	}

	exited := make(chan struct{})
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.proc = proc
	s.exited = exited
	stopping := s.stopping
	s.mu.Unlock()

	// Stop may have run while launch was in flight and missed this process.
	if stopping {
		s.wg.Add(1)
		go s.monitor(gen, proc, exited)
		s.logger.WithField("generation", gen).Warn("worker spawned during stop, killing it")
		_ = proc.Stdin().Close()
		if err := proc.Kill(); err != nil {
			s.logger.WithError(err).Error("failed to kill worker")
		}
		return
	}

	s.setState(StateStarting)
	s.logger.WithField("generation", gen).Info("worker spawned")

	s.wg.Add(1)
	go s.monitor(gen, proc, exited)
}

func (s *Supervisor) monitor(gen uint64, proc Process, exited chan struct{}) {
	defer s.wg.Done()
	defer close(exited)

	var streams sync.WaitGroup
	streams.Add(2)
	go func() {
		defer streams.Done()
		s.readStdout(proc.Stdout())
	}()
	go func() {
		defer streams.Done()
		s.readStderr(proc.Stderr())
	}()
	streams.Wait()

	code, err := proc.Wait()
	s.handleExit(gen, code, err)
}

func (s *Supervisor) readStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if msg, ok := decodeLine(line); ok {
			if s.onMessage != nil {
				s.onMessage(msg)
			}
			continue
		}
		text := string(bytes.TrimSpace(line))
		if text == "" {
			continue
		}
		s.logger.WithField("stream", "stdout").Info(text)
		if s.cfg.ReadyMarker != "" && bytes.Contains(line, []byte(s.cfg.ReadyMarker)) {
			s.markReady()
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.WithError(err).Warn("worker stdout closed with error")
	}
}

func (s *Supervisor) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if text := string(bytes.TrimSpace(scanner.Bytes())); text != "" {
			s.logger.WithField("stream", "stderr").Warn(text)
		}
	}
}

func (s *Supervisor) markReady() {
	s.mu.Lock()
	if s.state != StateStarting {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.setState(StateReady)
	s.logger.Info("worker is ready")
}

func (s *Supervisor) handleExit(gen uint64, code int, waitErr error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.proc = nil
	stopping := s.stopping
	s.mu.Unlock()

	log := s.logger.WithFields(logrus.Fields{"generation": gen, "exit_code": code})
	if waitErr != nil {
		log = log.WithError(waitErr)
	}

	crashed := code != 0 && !stopping
	if crashed {
		log.Error("worker crashed")
		s.setState(StateCrashed)
	} else {
		log.Info("worker stopped")
		s.setState(StateStopped)
	}
	s.notifyExit(crashed)

	if crashed {
		s.scheduleRestart()
	}
}

func (s *Supervisor) scheduleRestart() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(s.cfg.RestartDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		metrics.WorkerRestarts.Inc()
		s.setState(StateRestarting)
		s.spawn()
	}()
}

func (s *Supervisor) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			if !s.IsReady() {
				continue
			}
			id := TypeHeartbeat + "-" + strconv.FormatInt(now.UnixMilli(), 10)
			if err := s.WriteLine(NewOutbound(id, TypeHeartbeat, nil)); err != nil {
				s.logger.WithError(err).Warn("heartbeat failed")
				continue
			}
			s.mu.Lock()
			s.lastHeartbeat = now
			s.mu.Unlock()
		}
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	if state == StateReady {
		metrics.WorkerReady.Set(1)
	} else {
		metrics.WorkerReady.Set(0)
	}
	for _, h := range s.onStatus {
		h(state)
	}
}

func (s *Supervisor) notifyExit(crashed bool) {
	for _, h := range s.onExit {
		h(crashed)
	}
}
