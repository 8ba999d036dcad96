package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// AudioConfig controls the microphone PCM stream.
type AudioConfig struct {
	Command     string `yaml:"command"`
	InputFormat string `yaml:"input_format"`
	InputDevice string `yaml:"input_device"`
	SampleRate  int    `yaml:"sample_rate"`
	Channels    int    `yaml:"channels"`
}

func (c AudioConfig) withDefaults() AudioConfig {
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.InputDevice == "" {
		c.InputDevice = "default"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	return c
}

// micSession is a running microphone capture. Read returns raw s16le PCM.
type micSession interface {
	io.Reader
	Stop() error
}

// openMicrophone spawns ffmpeg streaming the input device to stdout as
// s16le PCM. The short startup probe catches immediate exits, like a missing
// binary or an unavailable device, before any audio is pumped.
func openMicrophone(ctx context.Context, cfg AudioConfig) (micSession, error) {
	cfg = cfg.withDefaults()

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cfg.Command, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		detail := bytes.TrimSpace(stderr.Bytes())
		if err != nil {
			return nil, fmt.Errorf("capture process exited before audio started: %w: %s", err, detail)
		}
		return nil, fmt.Errorf("capture process exited before audio started: %s", detail)
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegMic{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegMic struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (m *ffmpegMic) Read(p []byte) (int, error) {
	return m.stdout.Read(p)
}

// Stop interrupts the process, escalating to a kill if it lingers.
func (m *ffmpegMic) Stop() error {
	m.stopOnce.Do(func() {
		if m.process != nil {
			_ = m.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-m.waitErr:
			if ok {
				m.stopErr = ignoreExitStatus(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if m.process != nil {
				_ = m.process.Kill()
			}
			if err, ok := <-m.waitErr; ok {
				m.stopErr = ignoreExitStatus(err)
			}
		}

		if closeErr := m.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && m.stopErr == nil {
			m.stopErr = closeErr
		}

		if m.stopErr != nil && m.stderr.Len() > 0 {
			m.stopErr = fmt.Errorf("%w: %s", m.stopErr, bytes.TrimSpace(m.stderr.Bytes()))
		}
	})

	return m.stopErr
}

// A nonzero exit after an interrupt is the normal shutdown path.
func ignoreExitStatus(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
