package channel

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bonfirelabs/bonfire/internal/bus"
	"github.com/bonfirelabs/bonfire/internal/config"
)

const telegramChannelName = "telegram"

// TelegramBot is the slice of the bot API the channel uses. The indirection
// lets tests inject a fake bot.
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances. Tests swap in their own.
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// TelegramChannel mirrors one chat room to one Telegram group: group
// messages flow into the room, agent replies for the room flow back out.
type TelegramChannel struct {
	BaseChannel
	token      string
	roomID     string
	proxy      string
	bot        TelegramBot
	chatID     atomic.Int64
	cancel     context.CancelFunc
	botFactory BotFactory
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, defaultBotFactory)
}

func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.RoomID == "" {
		return nil, fmt.Errorf("telegram channel needs a room id to mirror")
	}

	ch := &TelegramChannel{
		BaseChannel: NewBaseChannel(telegramChannelName, b, cfg.AllowFrom),
		token:       cfg.Token,
		roomID:      cfg.RoomID,
		proxy:       cfg.Proxy,
		botFactory:  factory,
	}
	if cfg.ChatID != "" {
		id, err := strconv.ParseInt(cfg.ChatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram chat id %q: %w", cfg.ChatID, err)
		}
		ch.chatID.Store(id)
	}
	return ch, nil
}

func (t *TelegramChannel) initBot() error {
	client := http.DefaultClient
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				if update.Message == nil {
					continue
				}
				t.handleMessage(update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("[telegram] polling started, mirroring room %s", t.roomID)
	return nil
}

func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	senderID := strconv.FormatInt(msg.From.ID, 10)
	if !t.IsAllowed(senderID) {
		log.Printf("[telegram] rejected message from %s (%s)", senderID, msg.From.UserName)
		return
	}
	if msg.Text == "" {
		return
	}

	// Remember where the group lives so replies can find their way back.
	t.chatID.Store(msg.Chat.ID)

	sender := msg.From.UserName
	if sender == "" {
		sender = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}

	t.Bus().Inbound <- bus.InboundMessage{
		Channel:   telegramChannelName,
		SenderID:  senderID,
		Sender:    sender,
		RoomID:    t.roomID,
		Content:   msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	log.Printf("[telegram] stopped")
	return nil
}

// SetBot injects a bot directly. Used by tests.
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.bot = bot
}

// Send delivers an agent reply for the mirrored room to the Telegram group.
// Replies for other rooms are not this channel's business.
func (t *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.RoomID != t.roomID {
		return nil
	}
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	chatID := t.chatID.Load()
	if chatID == 0 {
		return fmt.Errorf("telegram chat id unknown: no group traffic seen yet")
	}

	// Telegram caps messages at 4096 chars.
	const maxLen = 4000
	content := msg.Content
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			if idx := strings.LastIndex(chunk[:maxLen], "\n"); idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		content = content[len(chunk):]

		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}
