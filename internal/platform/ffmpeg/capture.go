package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"camswitch/internal/domain"
	"camswitch/internal/ports"
)

const (
	startupWindow = 250 * time.Millisecond
	stopTimeout   = 1200 * time.Millisecond
)

var deviceNumberPattern = regexp.MustCompile(`(\d+)$`)

// Config controls how ffmpeg captures from V4L2 devices.
type Config struct {
	Command     string
	InputFormat string
	DeviceGlob  string
	SysfsRoot   string
	Width       int
	Height      int
	FrameRate   int
}

// Platform captures cameras with an ffmpeg child process per stream. Device
// ids are device node paths. The stream's single track ends when ffmpeg exits.
type Platform struct {
	cfg    Config
	logger *slog.Logger
}

func NewPlatform(cfg Config, logger *slog.Logger) *Platform {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "v4l2"
	}
	if cfg.DeviceGlob == "" {
		cfg.DeviceGlob = "/dev/video*"
	}
	if cfg.SysfsRoot == "" {
		cfg.SysfsRoot = "/sys/class/video4linux"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Platform{cfg: cfg, logger: logger.With("component", "ffmpeg-platform")}
}

func (p *Platform) EnumerateDevices(ctx context.Context) ([]ports.RawDevice, error) {
	matches, err := filepath.Glob(p.cfg.DeviceGlob)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid device pattern %q: %v", domain.ErrEnumeration, p.cfg.DeviceGlob, err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return deviceNumber(matches[i]) < deviceNumber(matches[j])
	})

	devices := make([]ports.RawDevice, 0, len(matches))
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrEnumeration, err)
		}
		devices = append(devices, ports.RawDevice{
			ID:    path,
			Label: p.deviceLabel(path),
			Kind:  domain.DeviceKindVideoInput,
		})
	}
	return devices, nil
}

func (p *Platform) Acquire(ctx context.Context, deviceID string) (ports.CaptureStream, error) {
	if deviceID == "" {
		devices, err := p.EnumerateDevices(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("%w: no camera devices match %q", domain.ErrDeviceUnavailable, p.cfg.DeviceGlob)
		}
		deviceID = devices[0].ID
	}
	if _, err := os.Stat(deviceID); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDeviceUnavailable, deviceID, err)
	}

	cmd := exec.Command(p.cfg.Command, p.args(deviceID)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// Wait must not close the read end, so frames written just before ffmpeg
	// exits stay readable until Stop.
	stdout, stdoutWriter, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutWriter
	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stdoutWriter.Close()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	_ = stdoutWriter.Close()

	session := &ffmpegSession{
		id:      "ffmpeg:" + deviceID,
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		exited:  make(chan struct{}),
	}
	go func() {
		session.waitErr = cmd.Wait()
		close(session.exited)
	}()

	select {
	case <-session.exited:
		_ = stdout.Close()
		return nil, startupFailure(session.waitErr, stderr.String())
	case <-ctx.Done():
		_ = session.Stop()
		return nil, fmt.Errorf("%w: %v", domain.ErrCaptureDenied, ctx.Err())
	case <-time.After(startupWindow):
	}

	p.logger.Debug("ffmpeg capture started", "device", deviceID, "pid", cmd.Process.Pid)
	return session, nil
}

func (p *Platform) args(device string) []string {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", p.cfg.InputFormat,
	}
	if p.cfg.Width > 0 && p.cfg.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", p.cfg.Width, p.cfg.Height))
	}
	if p.cfg.FrameRate > 0 {
		args = append(args, "-framerate", strconv.Itoa(p.cfg.FrameRate))
	}
	return append(args, "-i", device, "-f", "mjpeg", "-")
}

func (p *Platform) deviceLabel(path string) string {
	base := filepath.Base(path)
	if raw, err := os.ReadFile(filepath.Join(p.cfg.SysfsRoot, base, "name")); err == nil {
		if name := strings.TrimSpace(string(raw)); name != "" {
			return name
		}
	}
	if n := deviceNumber(path); n >= 0 {
		return fmt.Sprintf("Video device %d", n)
	}
	return base
}

func deviceNumber(path string) int {
	match := deviceNumberPattern.FindString(path)
	if match == "" {
		return -1
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return -1
	}
	return n
}

func startupFailure(waitErr error, stderr string) error {
	detail := stringsTrimSpaceSafe(stderr)
	if detail == "" && waitErr != nil {
		detail = waitErr.Error()
	}
	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "operation not permitted"):
		return fmt.Errorf("%w: ffmpeg exited before capture started: %s", domain.ErrCaptureDenied, detail)
	case strings.Contains(lower, "no such file"), strings.Contains(lower, "no such device"), strings.Contains(lower, "device or resource busy"):
		return fmt.Errorf("%w: ffmpeg exited before capture started: %s", domain.ErrDeviceUnavailable, detail)
	default:
		return fmt.Errorf("%w: ffmpeg exited before capture started: %s", domain.ErrCaptureDenied, detail)
	}
}

// ffmpegSession is both the stream and its only track.
type ffmpegSession struct {
	id     string
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	exited  chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Tracks() []ports.CaptureTrack { return []ports.CaptureTrack{s} }

// Native returns the MJPEG byte stream. It stays readable after the track
// ends, until Stop.
func (s *ffmpegSession) Native() any { return io.Reader(s.stdout) }

func (s *ffmpegSession) ID() string { return s.id }

func (s *ffmpegSession) Ended() <-chan struct{} { return s.exited }

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case <-s.exited:
		case <-time.After(stopTimeout):
			if s.process != nil {
				_ = s.process.Kill()
			}
			<-s.exited
		}
		s.stopErr = normalizeStopErr(s.waitErr)

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
