package builtin

import (
	"context"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/wabot/internal/commands"
	"github.com/nextlevelbuilder/wabot/internal/extcall"
	"github.com/nextlevelbuilder/wabot/internal/message"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

const aiSystemPrompt = "You are a helpful assistant answering in a WhatsApp chat. Keep answers short and use plain text."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (d *Deps) ai(ctx context.Context, req *message.Request, t transport.Transport) error {
	if d.AI.Endpoint == "" || d.AI.APIKey == "" {
		return commands.Operational("The AI service is not configured")
	}

	question := req.ArgText
	if req.Quoted != nil && req.Quoted.Content.Text != "" {
		if question == "" {
			question = req.Quoted.Content.Text
		} else {
			question = req.Quoted.Content.Text + "\n\n" + question
		}
	}
	if question == "" {
		return commands.Operational("Ask a question, e.g. ai what is the capital of France")
	}

	body := chatRequest{
		Model: d.AI.Model,
		Messages: []chatMessage{
			{Role: "system", Content: aiSystemPrompt},
			{Role: "user", Content: question},
		},
	}
	var resp chatResponse
	err := d.HTTP.DoJSON(ctx, extcall.Request{
		Method:  http.MethodPost,
		URL:     strings.TrimRight(d.AI.Endpoint, "/") + "/chat/completions",
		Header:  map[string]string{"Authorization": "Bearer " + d.AI.APIKey},
		Body:    body,
		Timeout: d.AI.TimeoutDuration(),
	}, &resp)
	if err != nil {
		return extcall.Translate("AI service", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return commands.Operational("The AI service returned no answer")
	}
	return reply(ctx, t, req, strings.TrimSpace(resp.Choices[0].Message.Content))
}
