package whatsapp

import (
	"fmt"
	"os"
	"path/filepath"
)

// CredentialStore is the per-branch directory holding the transport's
// persisted credentials. Only the transport reads what is inside; this type
// only creates and removes the directory.
type CredentialStore struct {
	Dir       string
	removeAll func(string) error
}

// NewCredentialStore returns the store for branchID under root.
func NewCredentialStore(root, branchID string) *CredentialStore {
	return &CredentialStore{
		Dir:       filepath.Join(root, branchID),
		removeAll: os.RemoveAll,
	}
}

// Ensure creates the directory if it does not exist.
func (s *CredentialStore) Ensure() error {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	return nil
}

// Wipe deletes the directory and everything in it.
func (s *CredentialStore) Wipe() error {
	if err := s.removeAll(s.Dir); err != nil {
		return fmt.Errorf("remove credential dir %s: %w", s.Dir, err)
	}
	return nil
}

// Exists reports whether the directory is present.
func (s *CredentialStore) Exists() bool {
	info, err := os.Stat(s.Dir)
	return err == nil && info.IsDir()
}

// DBPath is the whatsmeow sqlite store inside the directory.
func (s *CredentialStore) DBPath() string {
	return filepath.Join(s.Dir, credentialDBName)
}
