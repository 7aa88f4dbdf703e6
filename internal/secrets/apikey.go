// Package secrets resolves CRM API keys, preferring the OS keychain over
// keys written into the config file.
package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/config"
)

// KeyringService groups this app's secrets in the OS keychain.
const KeyringService = "olxsync"

// ResolveAPIKey returns the client's GoHighLevel API key: the literal config
// value when present, otherwise the keychain entry named by keyring_account.
func ResolveAPIKey(cfg *config.ClientConfig) (string, error) {
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		return key, nil
	}
	account := strings.TrimSpace(cfg.KeyringAccount)
	if account == "" {
		return "", fmt.Errorf("client %s: no API key in config and no keyring_account set", cfg.ID)
	}
	key, err := keyring.Get(KeyringService, account)
	if err != nil {
		return "", fmt.Errorf("client %s: keychain lookup for %q: %w", cfg.ID, account, err)
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("client %s: keychain entry %q is empty", cfg.ID, account)
	}
	return key, nil
}

// DefaultAccount is the conventional keychain account name for a client.
func DefaultAccount(clientID string) string {
	return fmt.Sprintf("olxsync:crm:%s", clientID)
}

// SetAPIKey stores an API key in the keychain.
func SetAPIKey(account, key string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("API key is empty")
	}
	return keyring.Set(KeyringService, account, key)
}

// DeleteAPIKey removes an API key from the keychain.
func DeleteAPIKey(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, account)
}
