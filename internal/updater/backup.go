package updater

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"

	"github.com/smazurov/camstream/internal/version"
)

const (
	backupFilename     = "camstream.backup"
	backupInfoFilename = "backup.json"
)

type backupInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExecPath  string    `json:"exec_path"`
}

// backup keeps one copy of a previous binary.
type backup struct {
	dir    string
	logger *slog.Logger

	mu   sync.RWMutex
	info *backupInfo
}

func newBackup(dir string, logger *slog.Logger) (*backup, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	b := &backup{dir: dir, logger: logger}
	b.load()
	return b, nil
}

func (b *backup) load() {
	data, err := os.ReadFile(filepath.Join(b.dir, backupInfoFilename))
	if err != nil {
		return
	}

	var info backupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		b.logger.Warn("Failed to parse backup info", "error", err)
		return
	}
	if _, err := os.Stat(filepath.Join(b.dir, backupFilename)); err != nil {
		b.logger.Warn("Backup file missing", "dir", b.dir)
		return
	}

	b.mu.Lock()
	b.info = &info
	b.mu.Unlock()
}

func (b *backup) create(execPath string) error {
	if err := copyFile(execPath, filepath.Join(b.dir, backupFilename)); err != nil {
		return err
	}

	info := backupInfo{
		Version:   version.Version,
		CreatedAt: time.Now(),
		ExecPath:  execPath,
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode backup info: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(b.dir, backupInfoFilename), data, 0o644); err != nil {
		return fmt.Errorf("write backup info: %w", err)
	}

	b.mu.Lock()
	b.info = &info
	b.mu.Unlock()

	b.logger.Info("Backup created", "version", info.Version)
	return nil
}

func (b *backup) restore() error {
	b.mu.RLock()
	info := b.info
	b.mu.RUnlock()

	if info == nil {
		return errors.New("no backup available")
	}
	if err := copyFile(filepath.Join(b.dir, backupFilename), info.ExecPath); err != nil {
		return err
	}

	b.logger.Info("Backup restored", "version", info.Version)
	return nil
}

func (b *backup) available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info != nil
}

func (b *backup) version() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.info == nil {
		return ""
	}
	return b.info.Version
}

// copyFile replaces dst with the contents of src in one rename.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o755))
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Cleanup()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	return nil
}
