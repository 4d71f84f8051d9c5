package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmendiola/wagate/internal/adapters/wa"
	"github.com/dmendiola/wagate/internal/domain"
)

type fakeUploader struct {
	url     string
	err     error
	gotPath string
	gotMime string
}

func (u *fakeUploader) Upload(ctx context.Context, path, mimetype string) (string, error) {
	u.gotPath = path
	u.gotMime = mimetype
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

// fakeTranscoder swaps the extension for .mp3 and writes a fixed payload,
// like the real ffmpeg wrapper does on disk.
type fakeTranscoder struct {
	called bool
}

func (tr *fakeTranscoder) Transcode(ctx context.Context, src string) (string, error) {
	tr.called = true
	dst := strings.TrimSuffix(src, filepath.Ext(src)) + ".mp3"
	if err := os.WriteFile(dst, []byte("mp3-bytes"), 0o600); err != nil {
		return "", err
	}
	return dst, nil
}

func imageEvent() *domain.MessageEvent {
	return &domain.MessageEvent{
		ID:       "m1",
		Kind:     domain.KindImage,
		Mimetype: "image/jpeg",
		Filename: "photo 1.jpg",
		Caption:  "look at this",
		HasMedia: true,
	}
}

func TestProcessUploadsImage(t *testing.T) {
	tmp := t.TempDir()
	client := wa.NewMockClient()
	client.StashMedia("m1", []byte("jpeg-bytes"))
	up := &fakeUploader{url: "https://files.example.com/photo1.jpg"}

	p := NewPipeline(up, nil, tmp)
	body, err := p.Process(context.Background(), client, imageEvent())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if body.URL != up.url {
		t.Fatalf("body URL = %q, want %q", body.URL, up.url)
	}
	if body.Mimetype != "image/jpeg" {
		t.Fatalf("body mimetype = %q", body.Mimetype)
	}
	if body.Size != int64(len("jpeg-bytes")) {
		t.Fatalf("body size = %d", body.Size)
	}
	if body.Caption != "look at this" {
		t.Fatalf("caption not carried through: %q", body.Caption)
	}
	if filepath.Base(up.gotPath) != "photo1.jpg" {
		t.Fatalf("uploaded filename not sanitized: %q", up.gotPath)
	}
	assertDirEmpty(t, tmp)
}

func TestProcessTranscodesAudio(t *testing.T) {
	tmp := t.TempDir()
	client := wa.NewMockClient()
	client.StashMedia("m1", []byte("ogg-bytes"))
	up := &fakeUploader{url: "https://files.example.com/voice.mp3"}
	tr := &fakeTranscoder{}

	ev := imageEvent()
	ev.Kind = domain.KindAudio
	ev.Mimetype = "audio/ogg; codecs=opus"
	ev.Filename = "voice.ogg"

	p := NewPipeline(up, tr, tmp)
	body, err := p.Process(context.Background(), client, ev)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !tr.called {
		t.Fatalf("transcoder was never invoked for audio")
	}
	if body.Mimetype != "audio/mpeg" {
		t.Fatalf("body mimetype = %q, want audio/mpeg", body.Mimetype)
	}
	if !strings.HasSuffix(up.gotPath, ".mp3") {
		t.Fatalf("uploaded the original instead of the mp3: %q", up.gotPath)
	}
	assertDirEmpty(t, tmp)
}

func TestProcessUploadFailureStillCleansUp(t *testing.T) {
	tmp := t.TempDir()
	client := wa.NewMockClient()
	client.StashMedia("m1", []byte("jpeg-bytes"))
	up := &fakeUploader{err: errors.New("bucket unavailable")}

	p := NewPipeline(up, nil, tmp)
	_, err := p.Process(context.Background(), client, imageEvent())
	if !errors.Is(err, domain.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	assertDirEmpty(t, tmp)
}

func TestProcessDownloadFailure(t *testing.T) {
	client := wa.NewMockClient() // nothing stashed

	p := NewPipeline(&fakeUploader{url: "x"}, nil, t.TempDir())
	if _, err := p.Process(context.Background(), client, imageEvent()); err == nil {
		t.Fatalf("expected a download error")
	}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	if len(entries) != 0 {
		t.Fatalf("workdir not cleaned up, %d entries left", len(entries))
	}
}
