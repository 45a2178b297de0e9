package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/TAugustL/lan-voice-chat/internal/audio"
	"github.com/TAugustL/lan-voice-chat/internal/codec"
	"github.com/TAugustL/lan-voice-chat/internal/device"
	"github.com/TAugustL/lan-voice-chat/internal/dsp"
	"github.com/TAugustL/lan-voice-chat/internal/metrics"
	"github.com/TAugustL/lan-voice-chat/internal/transport"
)

// State describes the session lifecycle.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateClosing
	StateClosed
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// ErrPeerDisconnected is returned from Run when the remote side closes the
// connection or the transport fails mid-session.
var ErrPeerDisconnected = errors.New("session: peer disconnected")

// Config contains session parameters
type Config struct {
	Window       time.Duration // batching granularity for transport frames
	NoiseGate    float32
	Gain         float32
	RecordingDir string // empty disables call recording
}

// Session bridges one capture stream, one playback stream, and one
// connected transport for the lifetime of a call. Audio callbacks run on
// the audio subsystem's threads; everything else runs on the goroutine
// that calls Run.
type Session struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	capture  device.Capture
	playback device.Playback
	conn     transport.Conn

	format      device.Format
	codec       *codec.Codec
	conditioner *dsp.Conditioner
	captureBuf  *audio.CaptureBuffer
	playbackBuf *audio.PlaybackBuffer

	captureRec  *audio.Recorder
	playbackRec *audio.Recorder

	state     atomic.Int32
	startTime time.Time

	// Statistics
	windows        atomic.Uint64
	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	bytesSent      atomic.Uint64
	bytesReceived  atomic.Uint64
	silenceWindows atomic.Uint64
	callbackErrors atomic.Uint64
}

// Stats represents session statistics for monitoring
type Stats struct {
	State          string               `json:"state"`
	Format         device.Format        `json:"format"`
	WindowSeconds  float64              `json:"window_seconds"`
	FrameBytes     int                  `json:"frame_bytes"`
	UptimeSeconds  float64              `json:"uptime_seconds"`
	Windows        uint64               `json:"windows"`
	FramesSent     uint64               `json:"frames_sent"`
	FramesReceived uint64               `json:"frames_received"`
	BytesSent      uint64               `json:"bytes_sent"`
	BytesReceived  uint64               `json:"bytes_received"`
	SilenceWindows uint64               `json:"silence_windows"`
	CallbackErrors uint64               `json:"callback_errors"`
	Capture        audio.CaptureStats   `json:"capture"`
	Playback       audio.PlaybackStats  `json:"playback"`
	Conditioner    dsp.ConditionerStats `json:"conditioner"`
}

// New creates a session over already-opened capabilities and a connected
// transport. The audio format is taken from the capture capability; the
// playback device and the remote peer must use the same one.
func New(capture device.Capture, playback device.Playback, conn transport.Conn,
	cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Session, error) {

	format := capture.Format()
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("capture format: %w", err)
	}

	c, err := codec.New(codec.Format{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame codec: %w", err)
	}

	conditioner, err := dsp.NewConditioner(cfg.NoiseGate, cfg.Gain)
	if err != nil {
		return nil, fmt.Errorf("failed to create conditioner: %w", err)
	}

	s := &Session{
		logger:      logger,
		metrics:     m,
		capture:     capture,
		playback:    playback,
		conn:        conn,
		format:      format,
		codec:       c,
		conditioner: conditioner,
		captureBuf:  audio.NewCaptureBuffer(c.FrameBytes() / codec.BytesPerSample),
		playbackBuf: audio.NewPlaybackBuffer(),
	}
	s.state.Store(int32(StateIdle))

	if cfg.RecordingDir != "" {
		s.openRecorders(cfg.RecordingDir)
	}

	return s, nil
}

// openRecorders sets up per-direction WAV recording. A recorder that cannot
// be created is logged and skipped; recording never prevents a call.
func (s *Session) openRecorders(dir string) {
	var err error
	s.captureRec, err = audio.NewRecorder(dir, "capture", s.format.SampleRate, s.format.Channels, s.logger)
	if err != nil {
		s.logger.Warn("Capture recording unavailable", slog.String("error", err.Error()))
	}
	s.playbackRec, err = audio.NewRecorder(dir, "playback", s.format.SampleRate, s.format.Channels, s.logger)
	if err != nil {
		s.logger.Warn("Playback recording unavailable", slog.String("error", err.Error()))
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run streams until the peer disconnects, the transport fails, or ctx is
// cancelled. It returns nil on cancellation and ErrPeerDisconnected (or a
// wrapped transport error) otherwise. Run may be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateStreaming)) {
		return fmt.Errorf("session already started (state %s)", s.State())
	}
	s.startTime = time.Now()

	captureStream, err := s.capture.Open(s.onCaptureSamples, s.onStreamError)
	if err != nil {
		s.conn.Close()
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("failed to open capture stream: %w", err)
	}
	playbackStream, err := s.playback.Open(s.format, s.onPlaybackFill, s.onStreamError)
	if err != nil {
		captureStream.Stop()
		s.conn.Close()
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("failed to open playback stream: %w", err)
	}

	if err := captureStream.Start(); err != nil {
		s.teardown(captureStream, playbackStream)
		return fmt.Errorf("failed to start capture stream: %w", err)
	}
	if err := playbackStream.Start(); err != nil {
		s.teardown(captureStream, playbackStream)
		return fmt.Errorf("failed to start playback stream: %w", err)
	}

	s.logger.Info("Session streaming",
		slog.Int("sample_rate", s.format.SampleRate),
		slog.Int("channels", s.format.Channels),
		slog.Int("frame_bytes", s.codec.FrameBytes()),
		slog.Duration("window", s.codec.Window()),
		slog.String("remote_addr", s.conn.RemoteAddr().String()),
	)

	err = s.streamLoop(ctx)
	s.teardown(captureStream, playbackStream)

	s.logger.Info("Session ended",
		slog.Duration("uptime", time.Since(s.startTime)),
		slog.Uint64("windows", s.windows.Load()),
		slog.Uint64("frames_sent", s.framesSent.Load()),
		slog.Uint64("frames_received", s.framesReceived.Load()),
	)
	return err
}

// streamLoop runs the windowed duplex exchange. The fixed sleep is the only
// coupling between the audio clock and the network: each direction carries
// roughly one window of latency on top of the wire.
func (s *Session) streamLoop(ctx context.Context) error {
	recvBuf := make([]byte, s.codec.FrameBytes())
	window := s.codec.Window()
	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		iterStart := time.Now()

		if err := s.receiveWindow(recvBuf); err != nil {
			return err
		}

		if s.metrics != nil {
			s.metrics.RecordWindow(time.Since(iterStart).Seconds())
		}
		s.windows.Add(1)

		// The window clock: audio callbacks accumulate and drain their
		// buffers while this loop sleeps.
		timer.Reset(window)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := s.sendWindow(); err != nil {
			return err
		}
	}
}

// receiveWindow drains up to one frame from the transport into the
// playback buffer. No data is not an error: the output callback simply
// plays silence for the window.
func (s *Session) receiveWindow(recvBuf []byte) error {
	n, err := s.conn.ReadNonblocking(recvBuf)
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrWouldBlock):
		if s.metrics != nil {
			s.metrics.EmptyReads.Inc()
		}
		return nil
	case errors.Is(err, transport.ErrClosed):
		s.logger.Info("Peer closed the connection")
		return ErrPeerDisconnected
	default:
		return fmt.Errorf("session receive: %w", err)
	}

	if n == 0 {
		if s.metrics != nil {
			s.metrics.EmptyReads.Inc()
		}
		return nil
	}

	block := s.codec.Decode(recvBuf[:n])
	s.playbackBuf.Store(block)
	if s.playbackRec != nil {
		s.playbackRec.Append(block)
	}

	s.framesReceived.Add(1)
	s.bytesReceived.Add(uint64(n))
	short := n < s.codec.FrameBytes()
	if s.metrics != nil {
		s.metrics.RecordFrameReceived(n, short)
	}
	if short {
		s.logger.Debug("Short frame received",
			slog.Int("bytes", n),
			slog.Int("frame_bytes", s.codec.FrameBytes()),
		)
	}
	return nil
}

// sendWindow conditions and transmits whatever the capture callback
// accumulated during the last window. A transient write failure is logged
// and the window dropped; only a gone connection ends the session.
func (s *Session) sendWindow() error {
	block := s.captureBuf.TakeAndClear()
	if len(block) == 0 {
		return nil
	}

	conditioned := s.conditioner.Condition(block)
	if conditioned == nil {
		s.silenceWindows.Add(1)
		if s.metrics != nil {
			s.metrics.SilenceWindows.Inc()
		}
		return nil
	}

	data := s.codec.Encode(conditioned)
	if err := s.conn.WriteAll(data); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			s.logger.Info("Connection lost while sending")
			return ErrPeerDisconnected
		}
		s.logger.Warn("Transport write failed, dropping window",
			slog.Int("bytes", len(data)),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.WriteFailures.Inc()
		}
		return nil
	}

	if s.captureRec != nil {
		s.captureRec.Append(conditioned)
	}
	s.framesSent.Add(1)
	s.bytesSent.Add(uint64(len(data)))
	if s.metrics != nil {
		s.metrics.RecordFrameSent(len(data))
	}
	return nil
}

// teardown stops both audio streams, closes the transport, and finalizes
// recordings. The last incomplete window is discarded, not flushed.
func (s *Session) teardown(captureStream, playbackStream device.Stream) {
	s.state.Store(int32(StateClosing))

	if err := captureStream.Stop(); err != nil {
		s.logger.Warn("Error stopping capture stream", slog.String("error", err.Error()))
	}
	if err := playbackStream.Stop(); err != nil {
		s.logger.Warn("Error stopping playback stream", slog.String("error", err.Error()))
	}

	if err := s.conn.Close(); err != nil {
		s.logger.Warn("Error closing transport", slog.String("error", err.Error()))
	}

	if s.captureRec != nil {
		if err := s.captureRec.Close(); err != nil {
			s.logger.Warn("Error closing capture recording", slog.String("error", err.Error()))
		}
	}
	if s.playbackRec != nil {
		if err := s.playbackRec.Close(); err != nil {
			s.logger.Warn("Error closing playback recording", slog.String("error", err.Error()))
		}
	}

	if s.metrics != nil {
		s.metrics.RecordSessionEnd(time.Since(s.startTime).Seconds())
	}
	s.state.Store(int32(StateClosed))
}

// onCaptureSamples runs on the audio subsystem's input thread. It must not
// block: a contended or full buffer drops this invocation's samples.
func (s *Session) onCaptureSamples(block []float32) {
	if s.State() != StateStreaming {
		return
	}
	if !s.captureBuf.TryAppend(block) && s.metrics != nil {
		s.metrics.CaptureDrops.Inc()
	}
}

// onPlaybackFill runs on the audio subsystem's output thread. It emits
// silence once the pending block is exhausted.
func (s *Session) onPlaybackFill(out []float32) {
	n := s.playbackBuf.Fill(out)
	if n == 0 && s.metrics != nil {
		s.metrics.PlaybackSilence.Inc()
	}
}

// onStreamError handles a device-reported glitch. Callback errors are
// diagnostic only; the affected callback continues with silence or drops.
func (s *Session) onStreamError(err error) {
	s.callbackErrors.Add(1)
	if s.metrics != nil {
		s.metrics.CallbackErrors.Inc()
	}
	s.logger.Warn("Audio stream error", slog.String("error", err.Error()))
}

// Stats returns current session statistics.
func (s *Session) Stats() Stats {
	uptime := 0.0
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Seconds()
	}
	return Stats{
		State:          s.State().String(),
		Format:         s.format,
		WindowSeconds:  s.codec.Window().Seconds(),
		FrameBytes:     s.codec.FrameBytes(),
		UptimeSeconds:  uptime,
		Windows:        s.windows.Load(),
		FramesSent:     s.framesSent.Load(),
		FramesReceived: s.framesReceived.Load(),
		BytesSent:      s.bytesSent.Load(),
		BytesReceived:  s.bytesReceived.Load(),
		SilenceWindows: s.silenceWindows.Load(),
		CallbackErrors: s.callbackErrors.Load(),
		Capture:        s.captureBuf.Stats(),
		Playback:       s.playbackBuf.Stats(),
		Conditioner:    s.conditioner.Stats(),
	}
}
