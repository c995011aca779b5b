package builtin

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/wabot/internal/commands"
	"github.com/nextlevelbuilder/wabot/internal/message"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

const (
	// hdTargetSide is the long side images are upscaled towards.
	hdTargetSide = 2048
	hdMaxScale   = 4
	hdQuality    = 92
)

func (d *Deps) hd(ctx context.Context, req *message.Request, t transport.Transport) error {
	mt, ok := t.(transport.MediaTransport)
	if !ok {
		return commands.Operational("Media is not supported by this connection")
	}

	src := imageSource(req)
	if src == nil {
		return commands.Operational("Send an image with the caption, or reply to an image")
	}

	data, err := mt.DownloadMedia(ctx, src)
	if err != nil {
		return fmt.Errorf("download image: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return commands.WrapOperational(err, "That image could not be read")
	}

	out := enhance(img)

	if err := os.MkdirAll(d.TempDir, 0o755); err != nil {
		return fmt.Errorf("temp dir: %w", err)
	}
	path := filepath.Join(d.TempDir, "hd-"+uuid.NewString()+".jpg")
	if err := imaging.Save(out, path, imaging.JPEGQuality(hdQuality)); err != nil {
		return fmt.Errorf("save image: %w", err)
	}

	b := out.Bounds()
	return mt.SendMedia(ctx, req.ChatID, transport.OutboundMedia{
		Path:     path,
		MimeType: "image/jpeg",
		Caption:  fmt.Sprintf("✨ Enhanced (%dx%d)", b.Dx(), b.Dy()),
	}, transport.SendOptions{Quoted: req.Event})
}

// imageSource returns the image the request carries or quotes.
func imageSource(req *message.Request) *transport.Message {
	if req.Content.Kind == message.KindImage && req.Event != nil {
		m, _ := message.Unwrap(req.Event.Message)
		return m
	}
	if req.Quoted != nil && req.Quoted.Content.Kind == message.KindImage {
		return req.Quoted.Message
	}
	return nil
}

// enhance upscales small images with Lanczos and sharpens the result.
func enhance(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	long := max(w, h)

	out := image.Image(img)
	if long > 0 && long < hdTargetSide {
		scale := min(float64(hdTargetSide)/float64(long), hdMaxScale)
		out = imaging.Resize(img, int(float64(w)*scale), int(float64(h)*scale), imaging.Lanczos)
	}
	out = imaging.Sharpen(out, 1.0)
	out = imaging.AdjustContrast(out, 5)
	return out
}
