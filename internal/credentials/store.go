// Package credentials retrieves and stores per-source secrets. Secrets live
// in the OS keyring; environment variables act as a fallback for headless
// deployments where no keyring daemon is available.
package credentials

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

// service is the keyring service name all entries are stored under.
const service = "unisaved"

// keyring entry names
const (
	keyRedditClientID     = "reddit_client_id"
	keyRedditClientSecret = "reddit_client_secret"
	keyRedditUsername     = "reddit_username"
	keyRedditPassword     = "reddit_password"
	keyRaindropToken      = "raindrop_token"
	keyYouTubeBrowser     = "youtube_browser"
)

// ErrNotConfigured is returned when a secret exists neither in the keyring
// nor in the environment.
var ErrNotConfigured = errors.New("credentials not configured")

// RedditCredentials holds the OAuth password-grant credentials for Reddit.
type RedditCredentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// Store reads and writes source credentials.
type Store interface {
	Reddit() (*RedditCredentials, error)
	SetReddit(creds *RedditCredentials) error
	DeleteReddit() error

	RaindropToken() (string, error)
	SetRaindropToken(token string) error
	DeleteRaindropToken() error

	YouTubeBrowser() string
	SetYouTubeBrowser(browser string) error
}

// KeyringStore is the keyring-backed Store with env fallback.
type KeyringStore struct{}

// NewKeyringStore creates the default credential store.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// get reads one secret, preferring the keyring and falling back to envKey.
func (s *KeyringStore) get(key, envKey string) (string, error) {
	val, err := keyring.Get(service, key)
	if err == nil && val != "" {
		return val, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		// Keyring unavailable (no daemon, locked). Fall through to env.
		if env := os.Getenv(envKey); env != "" {
			return env, nil
		}
		return "", fmt.Errorf("keyring read failed for %s: %w", key, err)
	}
	if env := os.Getenv(envKey); env != "" {
		return env, nil
	}
	return "", ErrNotConfigured
}

// Reddit returns the Reddit credentials, or ErrNotConfigured if any part is
// missing.
func (s *KeyringStore) Reddit() (*RedditCredentials, error) {
	clientID, err := s.get(keyRedditClientID, "REDDIT_CLIENT_ID")
	if err != nil {
		return nil, err
	}
	clientSecret, err := s.get(keyRedditClientSecret, "REDDIT_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}
	username, err := s.get(keyRedditUsername, "REDDIT_USERNAME")
	if err != nil {
		return nil, err
	}
	password, err := s.get(keyRedditPassword, "REDDIT_PASSWORD")
	if err != nil {
		return nil, err
	}
	return &RedditCredentials{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Username:     username,
		Password:     password,
	}, nil
}

// SetReddit stores the Reddit credentials in the keyring.
func (s *KeyringStore) SetReddit(creds *RedditCredentials) error {
	pairs := map[string]string{
		keyRedditClientID:     creds.ClientID,
		keyRedditClientSecret: creds.ClientSecret,
		keyRedditUsername:     creds.Username,
		keyRedditPassword:     creds.Password,
	}
	for key, val := range pairs {
		if err := keyring.Set(service, key, val); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}
	return nil
}

// DeleteReddit removes the Reddit credentials from the keyring.
func (s *KeyringStore) DeleteReddit() error {
	for _, key := range []string{keyRedditClientID, keyRedditClientSecret, keyRedditUsername, keyRedditPassword} {
		if err := keyring.Delete(service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
	}
	return nil
}

// RaindropToken returns the Raindrop API token.
func (s *KeyringStore) RaindropToken() (string, error) {
	return s.get(keyRaindropToken, "RAINDROP_TOKEN")
}

// SetRaindropToken stores the Raindrop API token in the keyring.
func (s *KeyringStore) SetRaindropToken(token string) error {
	return keyring.Set(service, keyRaindropToken, token)
}

// DeleteRaindropToken removes the Raindrop API token from the keyring.
func (s *KeyringStore) DeleteRaindropToken() error {
	if err := keyring.Delete(service, keyRaindropToken); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// YouTubeBrowser returns the browser whose cookies yt-dlp should use.
// Defaults to chrome when unset.
func (s *KeyringStore) YouTubeBrowser() string {
	val, err := s.get(keyYouTubeBrowser, "YOUTUBE_BROWSER")
	if err != nil || val == "" {
		return "chrome"
	}
	return val
}

// SetYouTubeBrowser stores the browser choice for cookie extraction.
func (s *KeyringStore) SetYouTubeBrowser(browser string) error {
	return keyring.Set(service, keyYouTubeBrowser, browser)
}
