package whatsapp

import (
	"encoding/json"

	"github.com/nextlevelbuilder/wabot/internal/transport"
)

// Frame types.
const (
	frameReady    = "ready"
	frameMessage  = "message"
	frameGroup    = "group"
	frameResponse = "response"
	frameRequest  = "request"
)

// RPC methods understood by the bridge.
const (
	methodSendText      = "send_text"
	methodSendMedia     = "send_media"
	methodGroupMetadata = "group_metadata"
	methodLookup        = "lookup"
	methodDownloadMedia = "download_media"
)

// inboundFrame is any frame the bridge sends. Which fields are set depends
// on Type; "id" is the group id for group frames and the request id for
// responses.
type inboundFrame struct {
	Type    string              `json:"type"`
	ID      string              `json:"id,omitempty"`
	Self    *transport.Identity `json:"self,omitempty"`
	Event   *transport.Event    `json:"event,omitempty"`
	Subject string              `json:"subject,omitempty"`
	OK      bool                `json:"ok,omitempty"`
	Error   string              `json:"error,omitempty"`
	Data    json.RawMessage     `json:"data,omitempty"`
}

type requestFrame struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type sendTextParams struct {
	To       string           `json:"to"`
	Text     string           `json:"text"`
	Quoted   *transport.Event `json:"quoted,omitempty"`
	Mentions []string         `json:"mentions,omitempty"`
}

type sendMediaParams struct {
	To       string           `json:"to"`
	Path     string           `json:"path"`
	MimeType string           `json:"mimetype,omitempty"`
	Caption  string           `json:"caption,omitempty"`
	Quoted   *transport.Event `json:"quoted,omitempty"`
}

type groupMetadataParams struct {
	Chat string `json:"chat"`
}

type lookupParams struct {
	JID string `json:"jid"`
}

type downloadParams struct {
	Message *transport.Message `json:"message"`
}

// downloadResult carries the media bytes, base64-encoded on the wire.
type downloadResult struct {
	Data []byte `json:"data"`
}
