// Package secrets provides the Secret Store: symmetric keys for the Token
// Vault, held in a keyring file outside the engine and optionally seeded
// with a master key from the environment.
package secrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Verify interface compliance.
var _ driven.SecretStore = (*Keyring)(nil)

// KeySize is the AES-256 key length.
const KeySize = 32

// MasterKeyID names the key supplied through the environment.
const MasterKeyID = "master"

// ErrNoKeyringFile is returned by Rotate when no keyring file is configured.
var ErrNoKeyringFile = errors.New("no keyring file configured")

// keyringFile is the on-disk layout.
type keyringFile struct {
	Current string            `json:"current"`
	Keys    map[string]string `json:"keys"`
}

// Keyring implements driven.SecretStore.
type Keyring struct {
	mu      sync.RWMutex
	path    string
	master  []byte
	current string
	keys    map[string][]byte
}

// Options configures a Keyring.
type Options struct {
	// File is the keyring path. May be empty when a master key is given.
	File string
	// MasterKey is base64-encoded key material, usually from the environment.
	MasterKey string
}

// New loads the keyring. A missing file is not an error; a keyring with no
// key at all is, because the engine cannot seal credentials without one.
func New(opts Options) (*Keyring, error) {
	k := &Keyring{path: opts.File, keys: map[string][]byte{}}

	if opts.MasterKey != "" {
		key, err := decodeKey(opts.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("master key: %w", err)
		}
		k.master = key
	}

	if err := k.reload(); err != nil {
		return nil, err
	}
	if _, _, err := k.CurrentKey(context.Background()); err != nil {
		return nil, err
	}
	return k, nil
}

// MasterKeyFromEnv reads a base64 master key from the named variable.
func MasterKeyFromEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// reload reads the keyring file and merges the master key.
func (k *Keyring) reload() error {
	keys := map[string][]byte{}
	current := ""

	if k.master != nil {
		keys[MasterKeyID] = k.master
		current = MasterKeyID
	}

	if k.path != "" {
		data, err := os.ReadFile(k.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return fmt.Errorf("read keyring: %w", err)
		default:
			var file keyringFile
			if err := json.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parse keyring %s: %w", k.path, err)
			}
			for id, encoded := range file.Keys {
				key, err := decodeKey(encoded)
				if err != nil {
					return fmt.Errorf("keyring key %s: %w", id, err)
				}
				keys[id] = key
			}
			if file.Current != "" {
				if _, ok := keys[file.Current]; !ok {
					return fmt.Errorf("keyring current key %q is not in the keyring", file.Current)
				}
				current = file.Current
			}
		}
	}

	k.mu.Lock()
	k.keys = keys
	k.current = current
	k.mu.Unlock()
	return nil
}

// CurrentKey returns the key new credentials are sealed with.
func (k *Keyring) CurrentKey(_ context.Context) (string, []byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.current == "" {
		return "", nil, domain.ErrMissingSecretKey
	}
	return k.current, k.keys[k.current], nil
}

// Key returns a key by ID.
func (k *Keyring) Key(_ context.Context, keyID string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", keyID, domain.ErrNotFound)
	}
	return key, nil
}

// Rotate generates a new current key and writes the keyring file.
// Earlier keys, including the master key, stay readable.
func (k *Keyring) Rotate(_ context.Context) (string, error) {
	if k.path == "" {
		return "", ErrNoKeyringFile
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	id := "k" + time.Now().UTC().Format("20060102T150405.000000000")

	k.mu.Lock()
	defer k.mu.Unlock()

	file := keyringFile{Current: id, Keys: map[string]string{}}
	for existing, material := range k.keys {
		if existing == MasterKeyID && k.master != nil {
			continue
		}
		file.Keys[existing] = base64.StdEncoding.EncodeToString(material)
	}
	file.Keys[id] = base64.StdEncoding.EncodeToString(key)

	if err := writeFile(k.path, file); err != nil {
		return "", err
	}
	k.keys[id] = key
	k.current = id
	logger.Info("secret store rotated to key %s", id)
	return id, nil
}

// Path returns the keyring file path.
func (k *Keyring) Path() string { return k.path }

// Watch reloads the keyring whenever its file changes, so keys rotated by
// another process become readable here. Blocks until ctx is cancelled.
func (k *Keyring) Watch(ctx context.Context) error {
	if k.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create keyring watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors and Rotate replace the file by rename.
	if err := watcher.Add(filepath.Dir(k.path)); err != nil {
		return fmt.Errorf("watch keyring dir: %w", err)
	}

	target := filepath.Clean(k.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := k.reload(); err != nil {
				logger.Warn("reload keyring: %v", err)
				continue
			}
			logger.Debug("keyring reloaded from %s", k.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("keyring watcher: %v", err)
		}
	}
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

func writeFile(path string, file keyringFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode keyring: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create keyring dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace keyring: %w", err)
	}
	return nil
}

// Generate writes a new keyring file holding a single fresh key. It fails
// if the file already exists.
func Generate(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("keyring %s already exists", path)
	}
	k := &Keyring{path: path, keys: map[string][]byte{}}
	return k.Rotate(context.Background())
}
