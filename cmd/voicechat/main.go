package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/TAugustL/lan-voice-chat/internal/api"
	"github.com/TAugustL/lan-voice-chat/internal/audio"
	"github.com/TAugustL/lan-voice-chat/internal/config"
	"github.com/TAugustL/lan-voice-chat/internal/device"
	"github.com/TAugustL/lan-voice-chat/internal/metrics"
	"github.com/TAugustL/lan-voice-chat/internal/session"
	"github.com/TAugustL/lan-voice-chat/internal/transport"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "lan-voice-chat"
	serviceVersion    = "1.0.0"
)

const banner = `
 _      _   _  _  __   __   _           ___ _         _
| |    /_\ | \| | \ \ / /__(_)__ ___   / __| |_  __ _| |_
| |__ / _ \| .  |  \ V / _ \ / _/ -_) | (__| ' \/ _. |  _|
|____/_/ \_\_|\_|   \_/\___/_\__\___|  \___|_||_\__,_|\__|
`

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listen := flag.Bool("listen", false, "Wait for an incoming call")
	connect := flag.String("connect", "", "Call a peer at the given host or host:port")
	port := flag.Int("port", 0, "Override the configured port")
	inputDevice := flag.String("input", "", "Capture device name (\"default\" for the system default)")
	outputDevice := flag.String("output", "", "Playback device name (\"default\" for the system default)")
	window := flag.Float64("window", 0, "Override the window duration in seconds")
	listDevices := flag.Bool("list-devices", false, "List available audio devices and exit")
	playFile := flag.String("play", "", "Play back a recorded WAV file and exit")
	flag.Parse()

	// Load configuration; a missing file at the default path is not an
	// error, the built-in defaults apply.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags override the file
	if *port != 0 {
		cfg.Network.Port = *port
	}
	if *inputDevice != "" {
		cfg.Audio.InputDevice = *inputDevice
	}
	if *outputDevice != "" {
		cfg.Audio.OutputDevice = *outputDevice
	}
	if *window != 0 {
		cfg.Audio.WindowDuration = *window
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	backend, err := device.NewBackend(logger)
	if err != nil {
		logger.Error("Failed to initialize audio backend", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer backend.Close()

	if *listDevices {
		printDevices(backend)
		return
	}

	if *playFile != "" {
		if err := playRecording(backend, cfg, logger, *playFile); err != nil {
			logger.Error("Playback failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	if *listen == (*connect != "") {
		fmt.Fprintln(os.Stderr, "Specify exactly one of -listen or -connect <host>")
		os.Exit(1)
	}

	fmt.Print(banner)

	logger.Info("Starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)
	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Network.Port),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("channels", cfg.Audio.Channels),
		slog.Float64("window_duration", cfg.Audio.WindowDuration),
		slog.String("input_device", cfg.Audio.InputDevice),
		slog.String("output_device", cfg.Audio.OutputDevice),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, backend, logger, *listen, *connect); err != nil {
		logger.Error("Call failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Stopped")
}

func run(cfg *config.Config, backend *device.Backend, logger *slog.Logger, listen bool, connect string) error {
	format := device.Format{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	}

	capture, err := backend.NewCapture(cfg.Audio.InputDevice, format)
	if err != nil {
		return fmt.Errorf("capture device: %w", err)
	}
	playback, err := backend.NewPlayback(cfg.Audio.OutputDevice)
	if err != nil {
		return fmt.Errorf("playback device: %w", err)
	}

	// Cancel on SIGINT/SIGTERM so the session tears down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := establishConnection(ctx, cfg, logger, listen, connect)
	if err != nil {
		return err
	}

	appMetrics := metrics.NewMetrics()

	recordingDir := ""
	if cfg.Recording.Enabled {
		recordingDir = cfg.Recording.Directory
	}

	sess, err := session.New(capture, playback, conn, session.Config{
		Window:       cfg.Audio.GetWindowDuration(),
		NoiseGate:    cfg.Conditioner.NoiseGate,
		Gain:         cfg.Conditioner.Gain,
		RecordingDir: recordingDir,
	}, logger, appMetrics)
	if err != nil {
		conn.Close()
		return err
	}

	var monitor *api.Server
	if cfg.Monitor.Enabled {
		monitor = api.NewServer(cfg.Monitor, logger, cfg, sess, appMetrics)
		if err := monitor.Start(); err != nil {
			logger.Error("Failed to start monitoring server", slog.String("error", err.Error()))
		}
	}

	runErr := sess.Run(ctx)

	if monitor != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := monitor.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping monitoring server", slog.String("error", err.Error()))
		}
	}

	stats := sess.Stats()
	logger.Info("Final call statistics",
		slog.Uint64("windows", stats.Windows),
		slog.Uint64("frames_sent", stats.FramesSent),
		slog.Uint64("frames_received", stats.FramesReceived),
		slog.Uint64("bytes_sent", stats.BytesSent),
		slog.Uint64("bytes_received", stats.BytesReceived),
		slog.Uint64("silence_windows", stats.SilenceWindows),
		slog.Uint64("capture_drops", stats.Capture.ContentionDrops+stats.Capture.OverflowDrops),
	)

	// A peer hangup is the normal way a call ends.
	if runErr != nil && !errors.Is(runErr, session.ErrPeerDisconnected) {
		return runErr
	}
	return nil
}

// establishConnection waits for a peer in listen mode or dials one in
// connect mode. A connect target without a port gets the configured one.
func establishConnection(ctx context.Context, cfg *config.Config, logger *slog.Logger, listen bool, connect string) (transport.Conn, error) {
	if listen {
		addr := net.JoinHostPort("", strconv.Itoa(cfg.Network.Port))
		logger.Info("Waiting for a peer",
			slog.String("local_ip", localIP()),
			slog.Int("port", cfg.Network.Port),
		)
		conn, err := transport.Listen(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("failed to accept peer: %w", err)
		}
		logger.Info("Peer connected", slog.String("remote_addr", conn.RemoteAddr().String()))
		return conn, nil
	}

	addr := connect
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(connect, strconv.Itoa(cfg.Network.Port))
	}
	logger.Info("Calling peer", slog.String("addr", addr))

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Network.GetDialTimeout())
	defer cancel()
	conn, err := transport.Dial(dialCtx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to reach peer at %s: %w", addr, err)
	}
	logger.Info("Connected", slog.String("remote_addr", conn.RemoteAddr().String()))
	return conn, nil
}

// playRecording plays a WAV file written by the call recorder through the
// configured output device.
func playRecording(backend *device.Backend, cfg *config.Config, logger *slog.Logger, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read recording %s: %w", path, err)
	}
	samples, sampleRate, channels, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("failed to decode recording %s: %w", path, err)
	}

	logger.Info("Playing recording",
		slog.String("path", path),
		slog.Int("sample_rate", sampleRate),
		slog.Int("channels", channels),
		slog.Int("samples", len(samples)),
	)

	playback, err := backend.NewPlayback(cfg.Audio.OutputDevice)
	if err != nil {
		return fmt.Errorf("playback device: %w", err)
	}

	buf := audio.NewPlaybackBuffer()
	buf.Store(samples)

	stream, err := playback.Open(device.Format{SampleRate: sampleRate, Channels: channels},
		func(out []float32) { buf.Fill(out) },
		func(err error) {
			logger.Warn("Audio stream error", slog.String("error", err.Error()))
		})
	if err != nil {
		return fmt.Errorf("failed to open playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start playback stream: %w", err)
	}
	defer stream.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Wait until the buffer drains, then half a second for the device to
	// flush what it already pulled.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for buf.Stats().SamplesPlayed < uint64(len(samples)) {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	time.Sleep(500 * time.Millisecond)
	return nil
}

// localIP returns the address a LAN peer should dial. The UDP socket is
// never used; it only makes the OS pick the outbound interface.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "unknown"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// loadConfig reads the configuration file, falling back to defaults when
// the default path does not exist. An explicit path must exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		return config.Default(), nil
	}
	return config.Load(path)
}

// printDevices lists the audio devices the backend can see.
func printDevices(backend *device.Backend) {
	captures, err := backend.ListCaptureDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list capture devices: %v\n", err)
	}
	playbacks, err := backend.ListPlaybackDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list playback devices: %v\n", err)
	}

	fmt.Println("Capture devices:")
	for _, name := range captures {
		fmt.Printf("  %s\n", name)
	}
	fmt.Println("Playback devices:")
	for _, name := range playbacks {
		fmt.Printf("  %s\n", name)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
