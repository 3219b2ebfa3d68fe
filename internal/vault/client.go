package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"bot-fleet-engine/config"

	"github.com/hashicorp/vault/api"
)

// ErrSecretNotFound is returned when the configured secret path holds no data
var ErrSecretNotFound = errors.New("vault secret not found")

// Keys read from the overlay secret
const (
	KeyDBPassword         = "db_password"
	KeyRedisPassword      = "redis_password"
	KeyJWTSecret          = "jwt_secret"
	KeyAdminPasswordHash  = "admin_password_hash"
	KeyViewerPasswordHash = "viewer_password_hash"
	KeyTelegramBotToken   = "telegram_bot_token"
	KeyDiscordWebhookURL  = "discord_webhook_url"
	KeyWebhookToken       = "webhook_token"
)

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu    sync.RWMutex
	cache map[string]string // last secret read
}

// NewClient creates a new Vault client. A disabled config yields a client whose
// Overlay and Health are no-ops.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// ReadSecrets reads the KV v2 secret at MountPath/SecretPath
func (c *Client) ReadSecrets(ctx context.Context) (map[string]string, error) {
	if !c.config.Enabled {
		return nil, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrSecretNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", c.secretPath())
	}

	values := make(map[string]string, len(data))
	for key := range data {
		if s := getString(data, key); s != "" {
			values[key] = s
		}
	}

	c.mu.Lock()
	c.cache = values
	c.mu.Unlock()
	return values, nil
}

// Overlay replaces the credentials in cfg with the values stored in Vault and
// returns the names of the keys it applied. Keys absent from the secret leave
// the file or environment value in place.
func (c *Client) Overlay(ctx context.Context, cfg *config.Config) ([]string, error) {
	if !c.config.Enabled {
		return nil, nil
	}

	values, err := c.ReadSecrets(ctx)
	if err != nil {
		return nil, err
	}

	targets := map[string]*string{
		KeyDBPassword:         &cfg.DatabaseConfig.Password,
		KeyRedisPassword:      &cfg.RedisConfig.Password,
		KeyJWTSecret:          &cfg.AuthConfig.JWTSecret,
		KeyAdminPasswordHash:  &cfg.AuthConfig.AdminPasswordHash,
		KeyViewerPasswordHash: &cfg.AuthConfig.ViewerPasswordHash,
		KeyTelegramBotToken:   &cfg.NotificationConfig.Telegram.BotToken,
		KeyDiscordWebhookURL:  &cfg.NotificationConfig.Discord.WebhookURL,
		KeyWebhookToken:       &cfg.ExecutionConfig.WebhookToken,
	}

	var applied []string
	for key, target := range targets {
		if v, ok := values[key]; ok {
			*target = v
			applied = append(applied, key)
		}
	}
	sort.Strings(applied)
	return applied, nil
}

// Cached returns a value from the last successful read
func (c *Client) Cached(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.cache[key]
	return v, ok
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// secretPath returns the KV v2 data path of the overlay secret
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
