package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Severity ranks a notification
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification represents a notification message
type Notification struct {
	Severity  Severity
	Title     string
	Message   string
	Timestamp time.Time
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans a notification out to every enabled provider
type Manager struct {
	mu        sync.RWMutex
	notifiers []Notifier
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

// NewManager creates a new notification manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		logger:    logger.With().Str("component", "Notifications").Logger(),
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.mu.Lock()
	m.notifiers = append(m.notifiers, n)
	m.mu.Unlock()
}

// Notify is fire-and-forget: delivery runs in the background and failures are only logged
func (m *Manager) Notify(message string, severity Severity) {
	n := &Notification{
		Severity:  severity,
		Title:     titleFor(severity),
		Message:   message,
		Timestamp: time.Now(),
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.Send(n); err != nil {
			m.logger.Warn().Err(err).Str("severity", string(severity)).Msg("Notification delivery failed")
		}
	}()
}

// Send delivers synchronously to all enabled providers and returns the last error
func (m *Manager) Send(notification *Notification) error {
	m.mu.RLock()
	notifiers := append([]Notifier(nil), m.notifiers...)
	m.mu.RUnlock()

	var lastErr error
	for _, n := range notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(notification); err != nil {
			lastErr = fmt.Errorf("%s: %w", n.Name(), err)
		}
	}
	return lastErr
}

// Wait blocks until every in-flight Notify has finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

func titleFor(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return "🚨 Bot Fleet Alert"
	case SeverityWarning:
		return "⚠️ Bot Fleet Warning"
	}
	return "ℹ️ Bot Fleet"
}

// =============================================================================
// LOG NOTIFIER
// =============================================================================

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that always logs
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "Notify").Logger()}
}

func (l *LogNotifier) Name() string {
	return "log"
}

func (l *LogNotifier) IsEnabled() bool {
	return true
}

func (l *LogNotifier) Send(notification *Notification) error {
	event := l.logger.Info()
	switch notification.Severity {
	case SeverityWarning:
		event = l.logger.Warn()
	case SeverityCritical:
		event = l.logger.Error()
	}
	event.Str("title", notification.Title).Msg(notification.Message)
	return nil
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier sends notifications via the Telegram Bot API
type TelegramNotifier struct {
	botToken string
	chatID   string
	endpoint string
	enabled  bool
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string // numeric chat id or @channel
	Enabled  bool
	APIURL   string // defaults to the public Bot API
}

// NewTelegramNotifier creates a new Telegram notifier. The bot is connected on first send.
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	endpoint := tgbotapi.APIEndpoint
	if config.APIURL != "" {
		endpoint = strings.TrimRight(config.APIURL, "/") + "/bot%s/%s"
	}
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		endpoint: endpoint,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

// connect returns the bot client, creating it on first use
func (t *TelegramNotifier) connect() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.botToken, t.endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}

	bot, err := t.connect()
	if err != nil {
		return err
	}

	text := fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message)

	var msg tgbotapi.MessageConfig
	if chatID, err := strconv.ParseInt(t.chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(chatID, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(t.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x00FF00 // Green
	switch notification.Severity {
	case SeverityWarning:
		color = 0xFFA500
	case SeverityCritical:
		color = 0xFF0000
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
		"fields": []map[string]interface{}{
			{"name": "Severity", "value": string(notification.Severity), "inline": true},
		},
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}
