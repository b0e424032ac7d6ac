package mux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"dashdl/internal/logger"
)

// Muxer invokes the external ffmpeg binary to stream-copy an audio and
// a video file into one container. ffmpeg is a black box here: its
// non-zero exit status is fatal for the whole run and its diagnostics
// are surfaced verbatim.
type Muxer struct {
	logger logger.Logger

	// Path overrides the ffmpeg binary looked up on PATH.
	Path string
	// Quiet passes -loglevel warning to ffmpeg.
	Quiet bool
}

// New creates a muxer using ffmpeg from PATH.
func New(log logger.Logger) *Muxer {
	return &Muxer{logger: log, Path: "ffmpeg"}
}

// Check verifies the ffmpeg binary is reachable before any download
// work is spent.
func (m *Muxer) Check() error {
	if _, err := exec.LookPath(m.Path); err != nil {
		return fmt.Errorf("ffmpeg not found, add it to PATH or configure its location: %w", err)
	}
	return nil
}

// Mux combines the two input files into outputPath without re-encoding.
func (m *Muxer) Mux(ctx context.Context, audioPath, videoPath, outputPath string) error {
	args := m.Args(audioPath, videoPath, outputPath)
	m.logger.Debugf("running %s %s", m.Path, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, m.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg mux failed: %w: %s", err, stderr.String())
	}
	if stderr.Len() > 0 {
		m.logger.Warnf("ffmpeg stderr: %s", stderr.String())
	}
	return nil
}

// Args returns the ffmpeg argument list for a stream-copy mux.
func (m *Muxer) Args(audioPath, videoPath, outputPath string) []string {
	args := []string{"-i", audioPath, "-i", videoPath, "-y", "-c", "copy"}
	if m.Quiet {
		args = append(args, "-loglevel", "warning")
	}
	return append(args, outputPath)
}
