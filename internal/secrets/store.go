// Package secrets keeps remote host tokens in a per-user file (0600),
// sealed with AES-GCM so they never sit in config as plain text. It is not
// a replacement for an OS keychain.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const fileName = "tokens.json"

var (
	ErrNotFound     = errors.New("secrets: no token stored")
	ErrHostRequired = errors.New("secrets: host required")
)

type tokenFile struct {
	Tokens map[string]string `json:"tokens"` // host -> base64(nonce|ciphertext)
}

// Store is a token file in dir.
type Store struct {
	dir string
}

// DefaultDir is the bountyledger directory under the user config dir.
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bountyledger"), nil
}

// Open returns a store rooted at dir, creating it with owner-only access.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path() string { return filepath.Join(s.dir, fileName) }

// Set stores token for host, replacing any previous one.
func (s *Store) Set(ctx context.Context, host, token string) error {
	if host = norm(host); host == "" {
		return ErrHostRequired
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("secrets: empty token for %s", host)
	}
	return s.update(ctx, func(tf *tokenFile) error {
		ct, err := encrypt([]byte(token))
		if err != nil {
			return err
		}
		tf.Tokens[host] = base64.StdEncoding.EncodeToString(ct)
		return nil
	})
}

// Get returns the token stored for host.
func (s *Store) Get(host string) (string, error) {
	if host = norm(host); host == "" {
		return "", ErrHostRequired
	}
	tf, err := load(s.path())
	if err != nil {
		return "", err
	}
	enc, ok := tf.Tokens[host]
	if !ok {
		return "", fmt.Errorf("%s: %w", host, ErrNotFound)
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("secrets: decode %s: %w", host, err)
	}
	pt, err := decrypt(raw)
	if err != nil {
		return "", fmt.Errorf("secrets: open %s: %w", host, err)
	}
	return string(pt), nil
}

// Delete removes the token for host. Deleting a missing token is not an
// error.
func (s *Store) Delete(ctx context.Context, host string) error {
	if host = norm(host); host == "" {
		return ErrHostRequired
	}
	return s.update(ctx, func(tf *tokenFile) error {
		delete(tf.Tokens, host)
		return nil
	})
}

func (s *Store) update(ctx context.Context, fn func(*tokenFile) error) error {
	lock := flock.New(s.path() + ".lock")
	locked, err := lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return fmt.Errorf("secrets: lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("secrets: lock %s: not acquired", s.path())
	}
	defer lock.Unlock()

	tf, err := load(s.path())
	if err != nil {
		return err
	}
	if err := fn(&tf); err != nil {
		return err
	}
	return save(s.path(), tf)
}

func load(path string) (tokenFile, error) {
	tf := tokenFile{Tokens: map[string]string{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tf, nil
		}
		return tf, err
	}
	if err := json.Unmarshal(data, &tf); err != nil {
		return tf, fmt.Errorf("secrets: parse %s: %w", path, err)
	}
	if tf.Tokens == nil {
		tf.Tokens = map[string]string{}
	}
	return tf, nil
}

func save(path string, tf tokenFile) error {
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func norm(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func masterKey() []byte {
	base := fmt.Sprintf("bountyledger-%s-%s", runtime.GOOS, os.Getenv("USER"))
	hash := sha256.Sum256([]byte(base))
	return hash[:]
}

func newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(masterKey())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func encrypt(plain []byte) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	body := ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
