// Package transcode converts inbound audio to MP3 with an ffmpeg
// subprocess before upload. Voice notes arrive as opus in an ogg
// container, which most webhook consumers cannot play.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type FFmpeg struct {
	bin string
}

func NewFFmpeg(bin string) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{bin: bin}
}

// Transcode writes the MP3 next to src and returns its path. src is left
// in place; the caller decides when to discard it.
func (f *FFmpeg) Transcode(ctx context.Context, src string) (string, error) {
	dst := stripExt(src) + ".mp3"
	if dst == src {
		dst = src + ".mp3"
	}

	cmd := exec.CommandContext(ctx, f.bin,
		"-y",
		"-i", src,
		"-codec:a", "libmp3lame",
		"-q:a", "4",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}
	return dst, nil
}

func stripExt(p string) string {
	if i := strings.LastIndex(p, "."); i > strings.LastIndexAny(p, "/\\") {
		return p[:i]
	}
	return p
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
