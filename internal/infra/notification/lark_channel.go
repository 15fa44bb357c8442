package notification

import (
	"context"
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	jsonx "georemind/internal/shared/json"
	"georemind/internal/shared/logging"
)

// MetadataLarkReceiveID overrides the configured Lark recipient per notification.
const MetadataLarkReceiveID = "lark_receive_id"

// LarkMessenger sends a plain text IM message.
type LarkMessenger interface {
	SendText(ctx context.Context, receiveIDType, receiveID, text string) error
}

type sdkMessenger struct {
	client *lark.Client
}

// NewSDKMessenger wraps a Lark REST client.
func NewSDKMessenger(client *lark.Client) LarkMessenger {
	return &sdkMessenger{client: client}
}

func (m *sdkMessenger) SendText(ctx context.Context, receiveIDType, receiveID, text string) error {
	if m.client == nil {
		return fmt.Errorf("lark client not initialized")
	}
	content, err := jsonx.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal text content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := m.client.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("lark send: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("lark send error: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// LarkConfig configures a LarkChannel.
type LarkConfig struct {
	AppID         string
	AppSecret     string
	BaseDomain    string
	ReceiveIDType string // chat_id, open_id, user_id, email
	ReceiveID     string
}

// LarkChannel delivers notifications as Lark IM text messages.
type LarkChannel struct {
	name      string
	cfg       LarkConfig
	messenger LarkMessenger
	logger    logging.Logger
}

// NewLarkChannel builds the SDK client from cfg.
func NewLarkChannel(name string, cfg LarkConfig, logger logging.Logger) *LarkChannel {
	var opts []lark.ClientOptionFunc
	if domain := strings.TrimSpace(cfg.BaseDomain); domain != "" {
		opts = append(opts, lark.WithOpenBaseUrl(domain))
	}
	client := lark.NewClient(cfg.AppID, cfg.AppSecret, opts...)
	return NewLarkChannelWithMessenger(name, cfg, NewSDKMessenger(client), logger)
}

// NewLarkChannelWithMessenger uses a pre-built messenger.
func NewLarkChannelWithMessenger(name string, cfg LarkConfig, messenger LarkMessenger, logger logging.Logger) *LarkChannel {
	if cfg.ReceiveIDType == "" {
		cfg.ReceiveIDType = "chat_id"
	}
	return &LarkChannel{name: name, cfg: cfg, messenger: messenger, logger: logging.OrNop(logger)}
}

func (l *LarkChannel) Name() string { return l.name }

// Send posts "title\nbody" to the configured or per-notification recipient.
func (l *LarkChannel) Send(ctx context.Context, n Notification) error {
	receiveID := l.cfg.ReceiveID
	if override := strings.TrimSpace(n.Metadata[MetadataLarkReceiveID]); override != "" {
		receiveID = override
	}
	if receiveID == "" {
		return fmt.Errorf("lark channel %s has no recipient", l.name)
	}

	text := n.Body
	if n.Title != "" {
		text = n.Title + "\n" + n.Body
	}
	if err := l.messenger.SendText(ctx, l.cfg.ReceiveIDType, receiveID, text); err != nil {
		return err
	}
	l.logger.Debug("Sent Lark notification %s to %s", n.ID, receiveID)
	return nil
}

func (l *LarkChannel) Supports(NotificationPriority) bool { return true }
