package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName = "inbox-cli"

	envKeyringBackend  = "INBOX_KEYRING_BACKEND"
	envKeyringPassword = "INBOX_KEYRING_PASSWORD"
	envCredentialsDir  = "INBOX_CREDENTIALS_DIR"

	keyringBackendAuto   = "auto"
	keyringBackendFile   = "file"
	keyringBackendSystem = "system"
)

// openKeyring opens the credential store. Tests swap it via SetOpenKeyring.
var openKeyring = func(cfg keyring.Config) (keyring.Keyring, error) {
	return keyring.Open(cfg)
}

var userConfigDir = os.UserConfigDir

var stdinHasTTY = func() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// SetOpenKeyring replaces the keyring opener and returns a restore func.
func SetOpenKeyring(fn func(keyring.Config) (keyring.Keyring, error)) func() {
	original := openKeyring
	openKeyring = fn
	return func() { openKeyring = original }
}

// keyringConfig picks the backend. INBOX_KEYRING_BACKEND=file or a Linux
// session without D-Bus uses the encrypted file store; "system" uses only
// the native keychain.
func keyringConfig() keyring.Config {
	cfg := keyring.Config{ServiceName: serviceName}

	mode := keyringBackendMode()
	if mode == keyringBackendSystem {
		return cfg
	}

	// Auto mode still needs the file settings so keyring.Open can fall
	// back to them.
	cfg.FileDir = keyringFileDir()
	cfg.FilePasswordFunc = keyringFilePassword

	if shouldForceFileBackend(runtime.GOOS, mode, os.Getenv("DBUS_SESSION_BUS_ADDRESS")) {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}
	return cfg
}

func keyringBackendMode() string {
	switch strings.ToLower(envValue(envKeyringBackend)) {
	case keyringBackendFile:
		return keyringBackendFile
	case keyringBackendSystem, "os", "native":
		return keyringBackendSystem
	default:
		return keyringBackendAuto
	}
}

func shouldForceFileBackend(goos, mode, dbusAddr string) bool {
	switch mode {
	case keyringBackendFile:
		return true
	case keyringBackendAuto:
		return goos == "linux" && strings.TrimSpace(dbusAddr) == ""
	default:
		return false
	}
}

func keyringFileDir() string {
	if dir := envValue(envCredentialsDir); dir != "" {
		return filepath.Join(dir, "keyring")
	}
	if dir, err := userConfigDir(); err == nil && strings.TrimSpace(dir) != "" {
		return filepath.Join(dir, serviceName, "keyring")
	}
	if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		return filepath.Join(home, ".config", serviceName, "keyring")
	}
	return filepath.Join(os.TempDir(), serviceName, "keyring")
}

// keyringFilePassword unlocks the file store. The password is taken
// verbatim from the environment; whitespace may be significant.
func keyringFilePassword(prompt string) (string, error) {
	if password := os.Getenv(envKeyringPassword); strings.TrimSpace(password) != "" {
		return password, nil
	}
	if !stdinHasTTY() {
		return "", fmt.Errorf("set %s when using file keyring in non-interactive environments", envKeyringPassword)
	}
	return keyring.TerminalPrompt(prompt)
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
