package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/schema"
)

// DefaultMessagingBaseURL is the messaging platform API root.
const DefaultMessagingBaseURL = "https://api.line.me/v2/bot"

// Transports a send can use.
const (
	TransportReply = "reply"
	TransportPush  = "push"
)

// MessagingConfig configures the messaging platform client.
type MessagingConfig struct {
	BaseURL string
	Client  *http.Client
}

// Messenger sends messages through the platform's reply and push endpoints.
type Messenger struct {
	base   string
	client *http.Client
}

// NewMessenger creates a Messenger.
func NewMessenger(cfg MessagingConfig) *Messenger {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMessagingBaseURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &Messenger{base: strings.TrimRight(cfg.BaseURL, "/"), client: cfg.Client}
}

// Reply answers an inbound event using its single-use reply token.
func (m *Messenger) Reply(ctx context.Context, auth, replyToken string, messages []any) error {
	return m.post(ctx, "/message/reply", auth, map[string]any{"replyToken": replyToken, "messages": messages})
}

// Push sends messages to a user id.
func (m *Messenger) Push(ctx context.Context, auth, to string, messages []any) error {
	return m.post(ctx, "/message/push", auth, map[string]any{"to": to, "messages": messages})
}

func (m *Messenger) post(ctx context.Context, path, auth string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return schema.NewError(schema.ErrCodeConfig, "message payload is not JSON-encodable").WithCause(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.base+path, bytes.NewReader(b))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeConfig, "cannot build request: %v", err).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+auth)

	resp, err := m.client.Do(req)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExternalCall, "request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return schema.NewError(schema.ErrCodeExternalCall, statusText(resp.StatusCode)).
			WithDetails(map[string]any{"status": resp.StatusCode, "body": parseBody(resp.Header.Get("Content-Type"), raw)})
	}
	return nil
}

// sender holds what every messaging variant shares.
type sender struct {
	messenger *Messenger
	interp    *expressions.Interpolator
}

// send resolves the target and delivers messages. A reply token is used at
// most once per run; later sends with the same token fall back to push.
func (s sender) send(ctx context.Context, call *Call, target schema.MessageTarget, messages []any) *schema.ExecutionResult {
	auth := s.resolved(ctx, call, target.Token)
	if auth == "" {
		return fail(schema.ErrCodeSecret, "authorization token %q could not be resolved", target.Token)
	}

	replyToken := s.resolved(ctx, call, target.ReplyToken)
	if replyToken != "" && call.Ctx.ReplyTokens().Claim(replyToken) {
		if err := s.messenger.Reply(ctx, auth, replyToken, messages); err != nil {
			return schema.Failed(err)
		}
		return schema.Succeeded(map[string]any{
			"transport":    TransportReply,
			"messageCount": len(messages),
		})
	}

	to := s.resolved(ctx, call, target.UserID)
	if to == "" {
		if replyToken != "" {
			return fail(schema.ErrCodeConfig, "reply token already used this run and no user id is available for push")
		}
		return fail(schema.ErrCodeConfig, "no reply token or user id to send to")
	}
	if err := s.messenger.Push(ctx, auth, to, messages); err != nil {
		return schema.Failed(err)
	}
	return schema.Succeeded(map[string]any{
		"transport":    TransportPush,
		"to":           to,
		"messageCount": len(messages),
	})
}

// resolved interpolates v and treats anything still holding a placeholder as absent.
func (s sender) resolved(ctx context.Context, call *Call, v string) string {
	out := strings.TrimSpace(s.interp.Resolve(ctx, v, call.Ctx))
	if expressions.HasPlaceholders(out) {
		return ""
	}
	return out
}

func (s sender) textMessages(ctx context.Context, call *Call, texts []string) ([]any, *schema.ExecutionResult) {
	if len(texts) == 0 {
		return nil, fail(schema.ErrCodeConfig, "at least one message is required")
	}
	out := make([]any, 0, len(texts))
	for _, t := range texts {
		out = append(out, map[string]any{"type": "text", "text": s.interp.Resolve(ctx, t, call.Ctx)})
	}
	return out, nil
}

// MessageReplyHandler sends text messages, preferring the reply transport.
type MessageReplyHandler struct{ sender }

// NewMessageReplyHandler creates the message_reply handler.
func NewMessageReplyHandler(m *Messenger, interp *expressions.Interpolator) *MessageReplyHandler {
	return &MessageReplyHandler{sender{messenger: m, interp: interp}}
}

func (h *MessageReplyHandler) Type() schema.NodeType { return schema.NodeTypeMessageReply }

func (h *MessageReplyHandler) Describe() string {
	return "Reply with text messages; falls back to push once the reply token is spent."
}

func (h *MessageReplyHandler) Execute(ctx context.Context, call *Call) *schema.ExecutionResult {
	cfg, bad := configAs[*schema.MessageReplyConfig](call)
	if bad != nil {
		return bad
	}
	msgs, bad := h.textMessages(ctx, call, cfg.Messages)
	if bad != nil {
		return bad
	}
	return h.send(ctx, call, cfg.MessageTarget, msgs)
}

// MessagePushHandler sends text messages to a user id.
type MessagePushHandler struct{ sender }

// NewMessagePushHandler creates the message_push handler.
func NewMessagePushHandler(m *Messenger, interp *expressions.Interpolator) *MessagePushHandler {
	return &MessagePushHandler{sender{messenger: m, interp: interp}}
}

func (h *MessagePushHandler) Type() schema.NodeType { return schema.NodeTypeMessagePush }

func (h *MessagePushHandler) Describe() string {
	return "Push text messages to a user."
}

func (h *MessagePushHandler) Execute(ctx context.Context, call *Call) *schema.ExecutionResult {
	cfg, bad := configAs[*schema.MessagePushConfig](call)
	if bad != nil {
		return bad
	}
	msgs, bad := h.textMessages(ctx, call, cfg.Messages)
	if bad != nil {
		return bad
	}
	return h.send(ctx, call, cfg.MessageTarget, msgs)
}

// MessageCardsHandler sends a carousel of cards after validating its structure.
type MessageCardsHandler struct {
	sender
	cards validation.CardValidator
}

// NewMessageCardsHandler creates the message_cards handler.
func NewMessageCardsHandler(m *Messenger, interp *expressions.Interpolator, cards validation.CardValidator) *MessageCardsHandler {
	return &MessageCardsHandler{sender: sender{messenger: m, interp: interp}, cards: cards}
}

func (h *MessageCardsHandler) Type() schema.NodeType { return schema.NodeTypeMessageCards }

func (h *MessageCardsHandler) Describe() string {
	return "Send a multi-card template; the template is validated before sending."
}

func (h *MessageCardsHandler) Execute(ctx context.Context, call *Call) *schema.ExecutionResult {
	cfg, bad := configAs[*schema.MessageCardsConfig](call)
	if bad != nil {
		return bad
	}

	cards, err := h.resolveCards(ctx, call, cfg.Cards)
	if err != nil {
		return schema.Failed(err)
	}
	if len(cards) == 0 {
		return fail(schema.ErrCodeValidation, "at least one card is required")
	}
	if h.cards != nil {
		if err := h.cards.ValidateCards(cards); err != nil {
			return schema.Failed(err)
		}
	}

	alt := h.interp.Resolve(ctx, cfg.AltText, call.Ctx)
	if alt == "" {
		alt = cards[0].Title
	}
	return h.send(ctx, call, cfg.MessageTarget, []any{carousel(alt, cards)})
}

// resolveCards interpolates every string field of the cards.
func (h *MessageCardsHandler) resolveCards(ctx context.Context, call *Call, cards []schema.Card) ([]schema.Card, error) {
	raw, err := json.Marshal(cards)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "cards are not JSON-encodable").WithCause(err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "cards are not JSON-decodable").WithCause(err)
	}
	resolved, err := json.Marshal(h.interp.ResolveValue(ctx, generic, call.Ctx))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "resolved cards are not JSON-encodable").WithCause(err)
	}
	var out []schema.Card
	if err := json.Unmarshal(resolved, &out); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "resolved cards are malformed: %v", err).WithCause(err)
	}
	return out, nil
}

// carousel renders cards as a template message.
func carousel(altText string, cards []schema.Card) map[string]any {
	columns := make([]any, 0, len(cards))
	for _, c := range cards {
		actions := make([]any, 0, len(c.Actions))
		for _, a := range c.Actions {
			action := map[string]any{"type": a.Type, "label": a.Label}
			switch a.Type {
			case "uri":
				action["uri"] = a.URI
			case "message":
				action["text"] = a.Text
			case "postback":
				action["data"] = a.Data
				if a.Text != "" {
					action["displayText"] = a.Text
				}
			}
			actions = append(actions, action)
		}
		col := map[string]any{"title": c.Title, "text": c.Text, "actions": actions}
		if c.ImageURL != "" {
			col["thumbnailImageUrl"] = c.ImageURL
		}
		columns = append(columns, col)
	}
	return map[string]any{
		"type":    "template",
		"altText": altText,
		"template": map[string]any{
			"type":    "carousel",
			"columns": columns,
		},
	}
}
