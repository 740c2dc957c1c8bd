package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/uplook/uplook/pkg/log"
	"github.com/uplook/uplook/pkg/notify"
	"github.com/uplook/uplook/pkg/security"
)

const timeStampFormat = time.RFC3339

// EmailConfig is the email section of the config file. Password is only
// ever present transiently: on save it is encrypted into EncryptedPassword
// and cleared.
type EmailConfig struct {
	SMTPHost          string `json:"smtp_host,omitempty"`
	SMTPPort          int    `json:"smtp_port,omitempty"`
	Username          string `json:"username,omitempty"`
	Password          string `json:"password,omitempty"`
	EncryptedPassword string `json:"encrypted_password,omitempty"`
	UseTLS            bool   `json:"use_tls"`
	FromName          string `json:"from_name,omitempty"`
	ConfiguredAt      string `json:"configured_at,omitempty"`
	LastUpdated       string `json:"last_updated,omitempty"`
}

// Configured reports whether the section carries enough to send mail.
func (e EmailConfig) Configured() bool {
	return e.SMTPHost != "" && e.SMTPPort > 0 && e.Username != ""
}

// HealthAlertsConfig controls the periodic unhealthy-monitor digest.
type HealthAlertsConfig struct {
	Enabled              bool `json:"enabled"`
	ThresholdHours       int  `json:"unhealthy_threshold_hours"`
	CheckIntervalMinutes int  `json:"check_interval_minutes"`
}

// DataCleanupConfig controls the periodic result retention job.
type DataCleanupConfig struct {
	Enabled                bool `json:"enabled"`
	HealthyRetentionDays   int  `json:"keep_healthy_results_days"`
	UnhealthyRetentionDays int  `json:"keep_unhealthy_results_days"`
	CleanupIntervalHours   int  `json:"cleanup_interval_hours"`
	BatchSize              int  `json:"batch_size"`
}

// SecurityConfig holds the at-rest encryption key, base64-encoded.
type SecurityConfig struct {
	EncryptionKey string `json:"encryption_key,omitempty"`
}

// Config is the on-disk configuration document.
type Config struct {
	Email        EmailConfig        `json:"email"`
	HealthAlerts HealthAlertsConfig `json:"health_alerts"`
	DataCleanup  DataCleanupConfig  `json:"data_cleanup"`
	Security     SecurityConfig     `json:"security"`
}

func defaultConfig() Config {
	return Config{
		Email: EmailConfig{UseTLS: true},
		HealthAlerts: HealthAlertsConfig{
			Enabled:              true,
			ThresholdHours:       24,
			CheckIntervalMinutes: 60,
		},
		DataCleanup: DataCleanupConfig{
			Enabled:                true,
			HealthyRetentionDays:   7,
			UnhealthyRetentionDays: 30,
			CleanupIntervalHours:   24,
			BatchSize:              1000,
		},
	}
}

// Manager owns the config file: loading, defaulting, credential encryption,
// and atomic rewrites. It is safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	path   string
	cfg    Config
	box    *security.Box
	logger zerolog.Logger
}

// NewManager loads (or creates) the config file at path. A fresh encryption
// key is generated on first use, and any plaintext email password found in
// the file is encrypted in place.
func NewManager(path string) (*Manager, error) {
	m := &Manager{
		path:   path,
		logger: log.WithComponent("config"),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := defaultConfig()

	data, err := os.ReadFile(m.path)
	switch {
	case os.IsNotExist(err):
		m.logger.Info().Str("path", m.path).Msg("Config file not found, creating defaults")
	case err != nil:
		return fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	dirty := os.IsNotExist(err)

	if cfg.Security.EncryptionKey == "" {
		key, err := security.GenerateKey()
		if err != nil {
			return err
		}
		cfg.Security.EncryptionKey = key
		dirty = true
		m.logger.Info().Msg("Generated new encryption key")
	}

	box, err := security.NewBoxFromBase64(cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("invalid encryption key in config: %w", err)
	}
	m.box = box

	// A plaintext password in the file (hand-edited, or left by an older
	// version) gets encrypted and removed on the next write.
	if cfg.Email.Password != "" {
		encrypted, err := box.Encrypt(cfg.Email.Password)
		if err != nil {
			return err
		}
		cfg.Email.EncryptedPassword = encrypted
		cfg.Email.Password = ""
		now := time.Now().UTC().Format(timeStampFormat)
		if cfg.Email.ConfiguredAt == "" {
			cfg.Email.ConfiguredAt = now
		}
		cfg.Email.LastUpdated = now
		dirty = true
		m.logger.Info().Msg("Encrypted plaintext email password from config file")
	}

	m.cfg = cfg
	if dirty {
		return m.writeLocked()
	}
	return nil
}

// Reload re-reads the config file, picking up external edits.
func (m *Manager) Reload() error {
	return m.load()
}

// Box returns the credential encryption box backed by the config's key.
func (m *Manager) Box() *security.Box {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.box
}

// Snapshot returns a copy of the current configuration.
func (m *Manager) Snapshot() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Redacted returns the configuration with credential material blanked,
// suitable for display.
func (m *Manager) Redacted() Config {
	cfg := m.Snapshot()
	if cfg.Email.EncryptedPassword != "" {
		cfg.Email.EncryptedPassword = "********"
	}
	cfg.Security.EncryptionKey = "********"
	return cfg
}

// EmailSettings returns the mailer settings with the password decrypted.
// The second return value is false when email has not been configured.
func (m *Manager) EmailSettings() (notify.Settings, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.cfg.Email.Configured() {
		return notify.Settings{}, false
	}

	password, err := m.box.Decrypt(m.cfg.Email.EncryptedPassword)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to decrypt email password, treating as empty")
		password = ""
	}
	return notify.Settings{
		Host:     m.cfg.Email.SMTPHost,
		Port:     m.cfg.Email.SMTPPort,
		Username: m.cfg.Email.Username,
		Password: password,
		UseTLS:   m.cfg.Email.UseTLS,
		FromName: m.cfg.Email.FromName,
	}, true
}

// SetEmail replaces the email section. A non-empty plaintext password is
// encrypted before the file is written.
func (m *Manager) SetEmail(email EmailConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC().Format(timeStampFormat)

	if email.Password != "" {
		encrypted, err := m.box.Encrypt(email.Password)
		if err != nil {
			return err
		}
		email.EncryptedPassword = encrypted
		email.Password = ""
	} else if email.EncryptedPassword == "" {
		// Keep the previous credential when the update omits a password.
		email.EncryptedPassword = m.cfg.Email.EncryptedPassword
	}

	if m.cfg.Email.ConfiguredAt != "" {
		email.ConfiguredAt = m.cfg.Email.ConfiguredAt
	} else {
		email.ConfiguredAt = now
	}
	email.LastUpdated = now

	m.cfg.Email = email
	return m.writeLocked()
}

// ResetEmail clears the email section back to defaults.
func (m *Manager) ResetEmail() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Email = defaultConfig().Email
	return m.writeLocked()
}

// SetHealthAlerts replaces the health alert section.
func (m *Manager) SetHealthAlerts(cfg HealthAlertsConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.ThresholdHours <= 0 {
		cfg.ThresholdHours = 24
	}
	if cfg.CheckIntervalMinutes <= 0 {
		cfg.CheckIntervalMinutes = 60
	}
	m.cfg.HealthAlerts = cfg
	return m.writeLocked()
}

// SetDataCleanup replaces the data cleanup section.
func (m *Manager) SetDataCleanup(cfg DataCleanupConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.HealthyRetentionDays <= 0 {
		cfg.HealthyRetentionDays = 7
	}
	if cfg.UnhealthyRetentionDays <= 0 {
		cfg.UnhealthyRetentionDays = 30
	}
	if cfg.CleanupIntervalHours <= 0 {
		cfg.CleanupIntervalHours = 24
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	m.cfg.DataCleanup = cfg
	return m.writeLocked()
}

// writeLocked persists the config atomically. Callers hold m.mu.
func (m *Manager) writeLocked() error {
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
