package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/99designs/keyring"
)

const (
	EnvBaseURL   = "INBOX_BASE_URL"
	EnvToken     = "INBOX_TOKEN"
	EnvCompanyID = "INBOX_COMPANY_ID"
	EnvProfile   = "INBOX_PROFILE"

	defaultProfile = "default"

	// The default profile keeps the bare key so sessions saved before
	// named profiles existed still load.
	accountKey        = "default"
	profilePrefix     = "profile:"
	profileIndexKey   = "profiles_index"
	currentProfileKey = "current_profile"
)

// ErrNotConfigured is returned when no session is stored.
var ErrNotConfigured = errors.New("not signed in - run 'inbox auth login' first")

// Account is one signed-in session.
type Account struct {
	BaseURL   string    `json:"base_url"`
	Token     string    `json:"token"`
	CompanyID string    `json:"company_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	SavedAt   time.Time `json:"saved_at,omitzero"`
}

// Profile is a stored account with its name.
type Profile struct {
	Name    string  `json:"name"`
	Current bool    `json:"current"`
	Account Account `json:"account"`
}

func profileKey(name string) string {
	if name == "" || name == defaultProfile {
		return accountKey
	}
	return profilePrefix + name
}

// store wraps an open keyring with JSON helpers.
type store struct {
	ring keyring.Keyring
}

func openStore() (*store, error) {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return &store{ring: ring}, nil
}

// get decodes key into v. It reports false when the key is absent.
func (s *store) get(key string, v any) (bool, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(item.Data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *store) set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.ring.Set(keyring.Item{Key: key, Data: data}); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *store) remove(key string) error {
	if err := s.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (s *store) index() ([]string, error) {
	var names []string
	if _, err := s.get(profileIndexKey, &names); err != nil {
		return nil, err
	}
	return normalizeProfiles(names), nil
}

// current is stored as raw bytes, not JSON.
func (s *store) current() (string, error) {
	item, err := s.ring.Get(currentProfileKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return defaultProfile, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get current profile: %w", err)
	}
	if name := strings.TrimSpace(string(item.Data)); name != "" {
		return name, nil
	}
	return defaultProfile, nil
}

func (s *store) setCurrent(name string) error {
	return s.ring.Set(keyring.Item{Key: currentProfileKey, Data: []byte(name)})
}

func normalizeProfiles(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// LoadAccount resolves the active session. INBOX_BASE_URL with INBOX_TOKEN
// wins over the keyring; otherwise INBOX_PROFILE or the current profile is
// loaded.
func LoadAccount() (Account, error) {
	if UsingEnvCredentials() {
		token := envValue(EnvToken)
		if token == "" {
			return Account{}, fmt.Errorf("environment variables %s and %s must both be set", EnvBaseURL, EnvToken)
		}
		return Account{
			BaseURL:   strings.TrimSuffix(envValue(EnvBaseURL), "/"),
			Token:     token,
			CompanyID: envValue(EnvCompanyID),
		}, nil
	}

	profile, err := ActiveProfile()
	if err != nil {
		return Account{}, err
	}
	return LoadProfile(profile)
}

// UsingEnvCredentials reports whether the session comes from the
// environment rather than the keyring.
func UsingEnvCredentials() bool {
	return envValue(EnvBaseURL) != ""
}

// ActiveProfile is INBOX_PROFILE when set, otherwise the current profile.
func ActiveProfile() (string, error) {
	if profile := envValue(EnvProfile); profile != "" {
		return profile, nil
	}
	return CurrentProfile()
}

// SaveProfile stores account under profile and makes it current.
func SaveProfile(profile string, account Account) error {
	if profile == "" {
		profile = defaultProfile
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	if account.SavedAt.IsZero() {
		account.SavedAt = time.Now().UTC()
	}
	if err := s.set(profileKey(profile), account); err != nil {
		return err
	}
	names, err := s.index()
	if err != nil {
		return err
	}
	if err := s.set(profileIndexKey, normalizeProfiles(append(names, profile))); err != nil {
		return err
	}
	return s.setCurrent(profile)
}

// LoadProfile returns the account stored under profile.
func LoadProfile(profile string) (Account, error) {
	s, err := openStore()
	if err != nil {
		return Account{}, err
	}
	var account Account
	found, err := s.get(profileKey(profile), &account)
	if err != nil {
		return Account{}, err
	}
	if !found {
		return Account{}, ErrNotConfigured
	}
	return account, nil
}

// DeleteProfile removes a stored profile. When it was current, the first
// remaining profile becomes current.
func DeleteProfile(profile string) error {
	if profile == "" {
		profile = defaultProfile
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	if err := s.remove(profileKey(profile)); err != nil {
		return err
	}

	names, err := s.index()
	if err != nil {
		return err
	}
	remaining := slices.DeleteFunc(names, func(n string) bool { return n == profile })
	if err := s.set(profileIndexKey, remaining); err != nil {
		return err
	}

	if current, err := s.current(); err == nil && current == profile {
		next := defaultProfile
		if len(remaining) > 0 {
			next = remaining[0]
		}
		_ = s.setCurrent(next)
	}
	return nil
}

// ListProfiles returns every stored profile in the order it was added.
func ListProfiles() ([]Profile, error) {
	s, err := openStore()
	if err != nil {
		return nil, err
	}
	names, err := s.index()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		names = []string{defaultProfile}
	}
	current, err := s.current()
	if err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(names))
	for _, name := range names {
		var account Account
		found, err := s.get(profileKey(name), &account)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		profiles = append(profiles, Profile{Name: name, Current: name == current, Account: account})
	}
	return profiles, nil
}

// CurrentProfile returns the name of the current profile.
func CurrentProfile() (string, error) {
	s, err := openStore()
	if err != nil {
		return "", err
	}
	return s.current()
}

// SetCurrentProfile makes an existing profile current.
func SetCurrentProfile(profile string) error {
	if profile == "" {
		profile = defaultProfile
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	var account Account
	found, err := s.get(profileKey(profile), &account)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("profile %q: %w", profile, ErrNotConfigured)
	}
	return s.setCurrent(profile)
}
