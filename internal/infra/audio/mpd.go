package audio

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fhs/gompd/v2/mpd"
	zlog "github.com/rs/zerolog/log"
)

// MPDSink drives an MPD daemon as the playback device. The file store
// must live under MPD's music directory so store paths can be handed
// to MPD as database URIs.
type MPDSink struct {
	mu         sync.Mutex
	addr       string
	musicDir   string
	client     *mpd.Client
	watcher    *mpd.Watcher
	duration   float64
	started    bool
	expectStop bool
	onFinished func(successfully bool)
}

// NewMPDSink creates a sink talking to the MPD daemon at addr
// (host:port). musicDir is MPD's configured music directory.
func NewMPDSink(addr, musicDir string) *MPDSink {
	return &MPDSink{addr: addr, musicDir: musicDir}
}

// Connect dials MPD and starts the player event watcher.
func (s *MPDSink) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(); err != nil {
		return err
	}

	w, err := mpd.NewWatcher("tcp", s.addr, "", "player")
	if err != nil {
		return errors.Wrap(err, "start MPD watcher")
	}
	s.watcher = w
	go s.watch(w)
	return nil
}

func (s *MPDSink) connectLocked() error {
	client, err := mpd.Dial("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "connect to MPD at %s", s.addr)
	}
	s.client = client
	return nil
}

// ensureConnectedLocked pings and reconnects a dead connection.
func (s *MPDSink) ensureConnectedLocked() error {
	if s.client == nil {
		return s.connectLocked()
	}
	if err := s.client.Ping(); err != nil {
		zlog.Warn().Err(err).Msg("audio: MPD connection lost, reconnecting")
		s.client.Close()
		s.client = nil
		return s.connectLocked()
	}
	return nil
}

// Close releases the MPD connection and watcher.
func (s *MPDSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		return err
	}
	return nil
}

// Open clears the MPD queue and loads the file. The path must be
// inside the music directory.
func (s *MPDSink) Open(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnectedLocked(); err != nil {
		return errors.Wrapf(ErrDecode, "open %s: %v", filepath.Base(path), err)
	}

	rel, err := filepath.Rel(s.musicDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.Wrapf(ErrDecode, "%s is outside the MPD music directory", path)
	}
	uri := filepath.ToSlash(rel)

	s.expectStop = true
	if err := s.client.Clear(); err != nil {
		return errors.Wrapf(ErrDecode, "clear queue: %v", err)
	}
	if err := s.client.Add(uri); err != nil {
		return errors.Wrapf(ErrDecode, "add %s: %v", uri, err)
	}

	s.duration = 0
	if infos, err := s.client.ListInfo(uri); err == nil && len(infos) > 0 {
		if d, err := strconv.ParseFloat(infos[0]["duration"], 64); err == nil {
			s.duration = d
		}
	}

	s.started = false
	s.expectStop = false
	return nil
}

func (s *MPDSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnectedLocked(); err != nil {
		return err
	}
	if !s.started {
		if err := s.client.Play(0); err != nil {
			return errors.Wrap(err, "play")
		}
		s.started = true
		return nil
	}
	return errors.Wrap(s.client.Pause(false), "resume")
}

func (s *MPDSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnectedLocked(); err != nil {
		return err
	}
	return errors.Wrap(s.client.Pause(true), "pause")
}

func (s *MPDSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnectedLocked(); err != nil {
		return err
	}
	s.expectStop = true
	s.started = false
	return errors.Wrap(s.client.Stop(), "stop")
}

func (s *MPDSink) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensureConnectedLocked() != nil {
		return 0
	}
	status, err := s.client.Status()
	if err != nil {
		return 0
	}
	elapsed, err := strconv.ParseFloat(status["elapsed"], 64)
	if err != nil {
		return 0
	}
	return elapsed
}

func (s *MPDSink) SetCurrentTime(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnectedLocked(); err != nil {
		return err
	}
	return errors.Wrap(s.client.SeekCur(time.Duration(seconds*float64(time.Second)), false), "seek")
}

func (s *MPDSink) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *MPDSink) SetOnFinished(fn func(successfully bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinished = fn
}

// watch translates MPD player events into finish callbacks. A
// transition to "stop" that the sink did not initiate means the track
// played to its end.
func (s *MPDSink) watch(w *mpd.Watcher) {
	for range w.Event {
		s.mu.Lock()
		if s.client == nil {
			s.mu.Unlock()
			continue
		}
		status, err := s.client.Status()
		if err != nil {
			s.mu.Unlock()
			continue
		}
		natural := status["state"] == "stop" && s.started && !s.expectStop
		if natural {
			s.started = false
		}
		fn := s.onFinished
		s.mu.Unlock()

		if natural && fn != nil {
			fn(true)
		}
	}
}
