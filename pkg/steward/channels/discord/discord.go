// Package discord implements the Discord channel using discordgo.
// Incoming messages from the configured channel are forwarded to the
// agent; replies are split to fit Discord's message length cap.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/steward/pkg/steward/channels"
)

// maxMessageLen is Discord's per-message character cap.
const maxMessageLen = 2000

// Config holds Discord channel configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// ChannelID restricts the bot to one channel. Empty means respond
	// in all channels the bot can read.
	ChannelID string `yaml:"channel_id"`

	// SendTyping sends "typing..." indicators while processing.
	SendTyping bool `yaml:"send_typing"`
}

// Discord implements channels.Channel over the discordgo gateway.
type Discord struct {
	cfg     Config
	logger  *slog.Logger
	session *discordgo.Session

	messages chan *channels.IncomingMessage

	connected  atomic.Bool
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64

	cancel context.CancelFunc
}

// New creates a Discord channel instance.
func New(cfg Config, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		cfg:      cfg,
		logger:   logger.With("component", "discord"),
		messages: make(chan *channels.IncomingMessage, 256),
	}
}

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Connect opens the Discord gateway WebSocket connection. discordgo
// handles reconnection internally.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	_, d.cancel = context.WithCancel(ctx)

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	d.session = session
	d.connected.Store(true)

	user := session.State.User
	d.logger.Info("discord connected", "bot", user.Username, "id", user.ID)
	return nil
}

// Disconnect closes the Discord gateway connection.
func (d *Discord) Disconnect() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.session != nil {
		if err := d.session.Close(); err != nil {
			d.logger.Warn("error closing session", "error", err)
		}
	}
	d.connected.Store(false)
	d.logger.Info("discord disconnected")
	return nil
}

// Send sends a text message to the channel, splitting it to fit the
// Discord length cap.
func (d *Discord) Send(ctx context.Context, to string, message *channels.OutgoingMessage) error {
	if d.session == nil || !d.connected.Load() {
		return channels.ErrChannelDisconnected
	}

	for i, chunk := range channels.SplitMessage(message.Content, maxMessageLen) {
		msgSend := &discordgo.MessageSend{Content: chunk}
		if i == 0 && message.ReplyTo != "" {
			msgSend.Reference = &discordgo.MessageReference{MessageID: message.ReplyTo}
		}
		if _, err := d.session.ChannelMessageSendComplex(to, msgSend); err != nil {
			d.errorCount.Add(1)
			return fmt.Errorf("discord: %w: %v", channels.ErrSendFailed, err)
		}
	}
	return nil
}

// SendTyping triggers the typing indicator. Failures are ignored.
func (d *Discord) SendTyping(ctx context.Context, to string) {
	if !d.cfg.SendTyping || d.session == nil {
		return
	}
	_ = d.session.ChannelTyping(to)
}

// Receive returns the incoming messages channel.
func (d *Discord) Receive() <-chan *channels.IncomingMessage {
	return d.messages
}

// IsConnected returns true if the bot is connected.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// Health returns the channel health status.
func (d *Discord) Health() channels.HealthStatus {
	var lastAt time.Time
	if v := d.lastMsg.Load(); v != nil {
		lastAt = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     d.connected.Load(),
		LastMessageAt: lastAt,
		ErrorCount:    int(d.errorCount.Load()),
	}
}

// onMessageCreate filters and forwards gateway messages.
func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if d.cfg.ChannelID != "" && m.ChannelID != d.cfg.ChannelID {
		return
	}
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}

	fromName := m.Author.GlobalName
	if fromName == "" {
		fromName = m.Author.Username
	}

	incoming := &channels.IncomingMessage{
		ID:        m.ID,
		Channel:   "discord",
		From:      m.Author.ID,
		FromName:  fromName,
		ChatID:    m.ChannelID,
		IsGroup:   m.GuildID != "",
		Content:   content,
		Timestamp: m.Timestamp,
	}

	d.lastMsg.Store(time.Now())
	select {
	case d.messages <- incoming:
	default:
		d.logger.Warn("message buffer full, dropping message", "msg_id", m.ID)
	}
}

// Compile-time interface verification.
var _ channels.Channel = (*Discord)(nil)
