package romba

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// BackupIndex writes an encrypted snapshot of the index to dest. The
// snapshot is taken with the database's own backup facility, so the index
// stays usable while it runs. dest must not exist.
func (s *Service) BackupIndex(ctx context.Context, dest string) error {
	if s.encryptor == nil || !s.encryptor.IsConfigured() {
		return fmt.Errorf("encryption is not configured; run 'romba keys init'")
	}

	tmpDir, err := os.MkdirTemp("", "romba-index-*")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	plain := filepath.Join(tmpDir, "index.db")
	if err := s.index.BackupTo(ctx, plain); err != nil {
		return fmt.Errorf("snapshotting index: %w", err)
	}
	in, err := os.Open(plain)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := s.fsmgr.CreateFile(dest)
	if err != nil {
		return err
	}
	if err := s.encryptor.Encrypt(in, out); err != nil {
		out.Close()
		s.fsmgr.Remove(dest)
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		s.fsmgr.Remove(dest)
		return fmt.Errorf("closing snapshot: %w", err)
	}

	s.logger.Info("index backed up", "path", dest)
	return nil
}

// RestoreIndex decrypts the snapshot at src into a database file at dest.
// The live index is not touched; dest must not exist.
func (s *Service) RestoreIndex(src, dest string, decryptCtx DecryptionContext) error {
	if decryptCtx == nil {
		return fmt.Errorf("restoring an index snapshot requires the private key")
	}
	path, err := s.fsmgr.Resolve(src)
	if err != nil {
		return fmt.Errorf("resolving snapshot: %w", err)
	}
	in, err := s.fsmgr.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := s.fsmgr.CreateFile(dest)
	if err != nil {
		return err
	}
	if err := decryptCtx.Decrypt(in, out); err != nil {
		out.Close()
		s.fsmgr.Remove(dest)
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		s.fsmgr.Remove(dest)
		return fmt.Errorf("closing restored index: %w", err)
	}

	s.logger.Info("index restored", "path", dest)
	return nil
}

// RestorePath is the default output of RestoreIndex for an index at
// indexPath.
func RestorePath(indexPath string) string {
	return indexPath + ".restored"
}
