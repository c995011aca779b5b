package whatsapp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/wabot/internal/channels"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

// SendText sends a text message, waiting for the outbound rate limiter.
func (c *Channel) SendText(ctx context.Context, chatID, text string, opts transport.SendOptions) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := c.call(ctx, methodSendText, sendTextParams{
		To:       chatID,
		Text:     text,
		Quoted:   opts.Quoted,
		Mentions: opts.Mentions,
	}, nil)
	if err != nil {
		slog.Warn("whatsapp send failed", "chat_id", chatID, "preview", channels.Truncate(text, 50), "error", err)
		return err
	}
	slog.Debug("whatsapp message sent", "chat_id", chatID, "preview", channels.Truncate(text, 50))
	return nil
}

// SendMedia sends a local file through the bridge.
func (c *Channel) SendMedia(ctx context.Context, chatID string, media transport.OutboundMedia, opts transport.SendOptions) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.call(ctx, methodSendMedia, sendMediaParams{
		To:       chatID,
		Path:     media.Path,
		MimeType: media.MimeType,
		Caption:  media.Caption,
		Quoted:   opts.Quoted,
	}, nil)
}

// GroupMetadata fetches the subject and participants of a group.
func (c *Channel) GroupMetadata(ctx context.Context, chatID string) (*transport.GroupMetadata, error) {
	var meta transport.GroupMetadata
	if err := c.call(ctx, methodGroupMetadata, groupMetadataParams{Chat: chatID}, &meta); err != nil {
		return nil, err
	}
	if meta.ID == "" {
		meta.ID = chatID
	}
	return &meta, nil
}

// Lookup asks the bridge for the canonical handles of id.
func (c *Channel) Lookup(ctx context.Context, id string) ([]transport.LookupResult, error) {
	var res []transport.LookupResult
	if err := c.call(ctx, methodLookup, lookupParams{JID: id}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// DownloadMedia fetches and decrypts the attachment of msg.
func (c *Channel) DownloadMedia(ctx context.Context, msg *transport.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("download media: no message")
	}
	var res downloadResult
	if err := c.call(ctx, methodDownloadMedia, downloadParams{Message: msg}, &res); err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("download media: empty payload")
	}
	return res.Data, nil
}

var (
	_ channels.Channel         = (*Channel)(nil)
	_ transport.MediaTransport = (*Channel)(nil)
)
