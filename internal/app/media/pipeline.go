package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmendiola/wagate/internal/domain"
	"github.com/dmendiola/wagate/internal/observability"
)

// transcodedMime is the fixed container audio attachments are converted to
// before upload.
const transcodedMime = "audio/mpeg"

// Pipeline turns one inbound attachment into a public URL: download,
// classify, sanitize, optionally transcode, upload, cleanup. The scoped
// temp directory is removed whatever happens.
type Pipeline struct {
	uploader   domain.Uploader
	transcoder domain.AudioTranscoder
	tmpRoot    string // "" means the OS default
}

func NewPipeline(uploader domain.Uploader, transcoder domain.AudioTranscoder, tmpRoot string) *Pipeline {
	return &Pipeline{
		uploader:   uploader,
		transcoder: transcoder,
		tmpRoot:    tmpRoot,
	}
}

// Process runs the full pipeline for one message event and returns the
// media body for the webhook envelope. An upload failure is a hard failure
// for this message; the caller must not relay it.
func (p *Pipeline) Process(ctx context.Context, client domain.MessagingClient, ev *domain.MessageEvent) (*domain.MediaBody, error) {
	data, err := client.Download(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("downloading attachment: %w", err)
	}

	asset := domain.MediaAsset{
		Mimetype: ev.Mimetype,
		Kind:     KindFromMime(ev.Mimetype),
		Filename: SanitizeFilename(ev.Filename, ev.Mimetype),
	}

	dir, err := os.MkdirTemp(p.tmpRoot, "wagate-media-")
	if err != nil {
		return nil, fmt.Errorf("creating media workdir: %w", err)
	}
	defer func() {
		// Mandatory cleanup, success or not.
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			observability.Logger().Error("media workdir cleanup failed",
				"dir", dir, "error", rmErr)
		}
	}()

	asset.Path = filepath.Join(dir, asset.Filename)
	if err := os.WriteFile(asset.Path, data, 0o600); err != nil {
		return nil, fmt.Errorf("writing attachment: %w", err)
	}

	if asset.Kind == domain.KindAudio && p.transcoder != nil {
		converted, err := p.transcoder.Transcode(ctx, asset.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTranscode, err)
		}
		// The original is gone once the transcode succeeded, no matter
		// how the upload goes.
		if err := os.Remove(asset.Path); err != nil && !os.IsNotExist(err) {
			observability.Logger().Warn("removing pre-transcode audio", "error", err)
		}
		asset.Path = converted
		asset.Mimetype = transcodedMime
		asset.Filename = filepath.Base(converted)
	}

	if fi, err := os.Stat(asset.Path); err == nil {
		asset.Size = fi.Size()
	}

	url, err := p.uploader.Upload(ctx, asset.Path, asset.Mimetype)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpload, err)
	}

	return &domain.MediaBody{
		Caption:  ev.Caption,
		Mimetype: asset.Mimetype,
		Size:     asset.Size,
		URL:      url,
	}, nil
}
