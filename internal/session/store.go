// Package session caches the browser's Resy cookies between runs so a fresh login is not
// needed every time.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/resy-autobook/internal/browser"
)

const cookieName = "resy_session"

const MaxAge = 14 * 24 * time.Hour

var (
	ErrNoSession = errors.New("no saved session")
	ErrMismatch  = errors.New("saved session belongs to other credentials")
	// ErrCorrupt means the file exists but cannot be verified or decrypted with the
	// current keys.
	ErrCorrupt = errors.New("saved session is unreadable")
)

// Saved is what lands on disk, signed and encrypted.
type Saved struct {
	Email        string           `json:"email"`
	PasswordHash []byte           `json:"password_hash"`
	Cookies      []browser.Cookie `json:"cookies"`
	SavedAt      time.Time        `json:"saved_at"`
}

type Store struct {
	path string
	sc   *securecookie.SecureCookie

	// Cost is the bcrypt cost for the password fingerprint.
	Cost int
	Now  func() time.Time
}

func NewStore(path string, hashKey, blockKey []byte) *Store {
	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	// a cookie jar easily outgrows the 4096 byte browser limit
	sc.MaxLength(0)
	sc.MaxAge(int(MaxAge.Seconds()))
	return &Store{path: path, sc: sc, Cost: bcrypt.DefaultCost, Now: time.Now}
}

// Save stores cookies for email, fingerprinted by a bcrypt hash of password.
func (s *Store) Save(email, password string, cookies []browser.Cookie) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.Cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	encoded, err := s.sc.Encode(cookieName, Saved{
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		Cookies:      cookies,
		SavedAt:      s.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("save session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("save session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the unexpired cookies saved for these credentials.
func (s *Store) Load(email, password string) ([]browser.Cookie, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var saved Saved
	if err := s.sc.Decode(cookieName, strings.TrimSpace(string(b)), &saved); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", ErrCorrupt, err)
	}
	if saved.Email != strings.ToLower(email) {
		return nil, ErrMismatch
	}
	if err := bcrypt.CompareHashAndPassword(saved.PasswordHash, []byte(password)); err != nil {
		return nil, ErrMismatch
	}

	now := s.Now()
	live := make([]browser.Cookie, 0, len(saved.Cookies))
	for _, c := range saved.Cookies {
		if !c.Expired(now) {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return nil, ErrNoSession
	}
	return live, nil
}

// Clear removes the saved session. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
