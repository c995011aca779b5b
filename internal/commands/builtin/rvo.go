package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/wabot/internal/commands"
	"github.com/nextlevelbuilder/wabot/internal/message"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

// rvo re-sends the image or video of a quoted (usually view-once) message
// as an ordinary attachment.
func (d *Deps) rvo(ctx context.Context, req *message.Request, t transport.Transport) error {
	mt, ok := t.(transport.MediaTransport)
	if !ok {
		return commands.Operational("Media is not supported by this connection")
	}
	if req.Quoted == nil || req.Quoted.Message == nil {
		return commands.Operational("Reply to a view-once image or video")
	}

	q := req.Quoted.Content
	var mime, ext string
	switch q.Kind {
	case message.KindImage:
		mime, ext = "image/jpeg", ".jpg"
	case message.KindVideo:
		mime, ext = "video/mp4", ".mp4"
	default:
		return commands.Operational("Only images and videos can be re-sent")
	}
	if q.Media != nil && q.Media.Mimetype != "" {
		mime = q.Media.Mimetype
	}

	data, err := mt.DownloadMedia(ctx, req.Quoted.Message)
	if err != nil {
		return fmt.Errorf("download media: %w", err)
	}

	if err := os.MkdirAll(d.TempDir, 0o755); err != nil {
		return fmt.Errorf("temp dir: %w", err)
	}
	path := filepath.Join(d.TempDir, "rvo-"+uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("save media: %w", err)
	}

	return mt.SendMedia(ctx, req.ChatID, transport.OutboundMedia{
		Path:     path,
		MimeType: mime,
		Caption:  q.Text,
	}, transport.SendOptions{Quoted: req.Event})
}
