// ABOUTME: File-backed persistence for the client identity keypair
// ABOUTME: Loads an existing key or generates one; never silently regenerates

package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// keyFile is the on-disk representation. Only the private key is stored;
// the public key is derived on load.
type keyFile struct {
	PrivateKey string `json:"private_key"`
}

// FileStore persists a single keypair at a fixed path with 0600 permissions.
type FileStore struct {
	path   string
	logger *slog.Logger

	keypair *Keypair
}

// NewFileStore creates a store rooted at path. No I/O happens until Load.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   path,
		logger: logger.With("component", "identity"),
	}
}

// Load reads the persisted keypair, generating and persisting a new one if
// the file does not exist yet. An existing key is never overwritten.
func (s *FileStore) Load() (*Keypair, error) {
	if s.keypair != nil {
		return s.keypair, nil
	}

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		var kf keyFile
		if err := json.Unmarshal(data, &kf); err != nil {
			return nil, fmt.Errorf("parsing identity file: %w", err)
		}
		kp, err := FromPrivateKey(kf.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("identity file %s: %w", s.path, err)
		}
		s.keypair = kp
		s.logger.Debug("identity loaded", "path", s.path, "pubkey", kp.PublicKey)
		return kp, nil

	case errors.Is(err, fs.ErrNotExist):
		kp, err := Generate()
		if err != nil {
			return nil, fmt.Errorf("generating identity: %w", err)
		}
		if err := s.write(kp); err != nil {
			return nil, err
		}
		s.keypair = kp
		s.logger.Info("new identity generated", "path", s.path, "pubkey", kp.PublicKey)
		return kp, nil

	default:
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
}

// Keypair implements Provider. It panics if Load has not been called; the
// provider contract assumes an initialized identity.
func (s *FileStore) Keypair() *Keypair {
	if s.keypair == nil {
		panic("identity: Keypair called before Load")
	}
	return s.keypair
}

// Clear removes the persisted keypair. The next Load generates a fresh one.
func (s *FileStore) Clear() error {
	s.keypair = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing identity file: %w", err)
	}
	s.logger.Info("identity cleared", "path", s.path)
	return nil
}

func (s *FileStore) write(kp *Keypair) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating identity directory: %w", err)
	}
	data, err := json.MarshalIndent(keyFile{PrivateKey: kp.PrivateKey}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}
	return nil
}
