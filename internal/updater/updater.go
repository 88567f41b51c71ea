// Package updater replaces the camstream binary with a newer GitHub
// release, keeping the previous binary as a backup for rollback.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/smazurov/camstream/internal/version"
)

// DefaultRepository is the GitHub slug releases are fetched from.
const DefaultRepository = "smazurov/camstream"

// Options configures an Updater.
type Options struct {
	Repository string // GitHub slug, e.g. "smazurov/camstream"
	Prerelease bool
	Executable string // defaults to the running binary
	BackupDir  string // defaults to ~/.cache/camstream/backup
	Logger     *slog.Logger
}

// Release describes the newest published release.
type Release struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	AssetSize       int       `json:"asset_size,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

// Status summarizes the updater.
type Status struct {
	CurrentVersion  string     `json:"current_version"`
	Enabled         bool       `json:"enabled"`
	DisabledReason  string     `json:"disabled_reason,omitempty"`
	LastChecked     *time.Time `json:"last_checked,omitempty"`
	Error           string     `json:"error,omitempty"`
	BackupAvailable bool       `json:"backup_available"`
	BackupVersion   string     `json:"backup_version,omitempty"`
}

// Updater checks for and applies releases.
type Updater struct {
	repo       selfupdate.Repository
	client     *selfupdate.Updater
	executable string
	backup     *backup
	logger     *slog.Logger

	disabledReason string

	mu          sync.Mutex
	latest      *selfupdate.Release
	lastChecked *time.Time
	lastErr     error
}

// New creates an Updater. A binary in a directory the process cannot
// write to yields a disabled Updater rather than an error.
func New(opts Options) (*Updater, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}

	u := &Updater{
		repo:   selfupdate.ParseSlug(opts.Repository),
		logger: logger,
	}

	exe := opts.Executable
	if exe == "" {
		path, err := selfupdate.ExecutablePath()
		if err != nil {
			u.disabledReason = fmt.Sprintf("failed to get executable path: %v", err)
			return u, nil
		}
		exe = path
	}
	u.executable = exe

	if reason := checkWritePermission(exe); reason != "" {
		logger.Warn("Update disabled", "reason", reason)
		u.disabledReason = reason
		return u, nil
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("create GitHub source: %w", err)
	}
	client, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}
	u.client = client

	dir := opts.BackupDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Warn("Rollback unavailable", "error", err)
			return u, nil
		}
		dir = filepath.Join(home, ".cache", "camstream", "backup")
	}
	b, err := newBackup(dir, logger)
	if err != nil {
		logger.Warn("Rollback unavailable", "error", err)
		return u, nil
	}
	u.backup = b
	return u, nil
}

func checkWritePermission(exe string) string {
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	dir := filepath.Dir(exe)

	f, err := os.CreateTemp(dir, ".camstream.update.*")
	if err != nil {
		return fmt.Sprintf("no write permission to %s: %v", dir, err)
	}
	f.Close()
	os.Remove(f.Name())
	return ""
}

// Enabled reports whether updates can be applied.
func (u *Updater) Enabled() bool { return u.disabledReason == "" }

// DisabledReason explains why Enabled is false.
func (u *Updater) DisabledReason() string { return u.disabledReason }

// Check looks up the latest release without downloading it.
func (u *Updater) Check(ctx context.Context) (Release, error) {
	if !u.Enabled() {
		return Release{}, newError(ErrCodeDisabled, u.disabledReason, nil)
	}

	current := version.Version
	rel, found, err := u.client.DetectLatest(ctx, u.repo)

	now := time.Now()
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastChecked = &now
	u.lastErr = err

	if err != nil {
		return Release{}, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	}
	if !found {
		u.lastErr = fmt.Errorf("no releases for %s", u.repo)
		return Release{}, newError(ErrCodeNotFound, "repository not found or has no releases", nil)
	}

	info := Release{
		CurrentVersion: current,
		LatestVersion:  rel.Version(),
	}
	// dev builds are always outdated
	if current != "dev" && !rel.GreaterThan(current) {
		u.latest = nil
		return info, nil
	}

	u.latest = rel
	info.ReleaseNotes = rel.ReleaseNotes
	info.ReleaseURL = rel.URL
	info.PublishedAt = rel.PublishedAt
	info.AssetSize = rel.AssetByteSize
	info.UpdateAvailable = true
	return info, nil
}

// Apply downloads the latest release over the running binary after
// backing it up. A failed replacement restores the backup. The caller is
// responsible for restarting.
func (u *Updater) Apply(ctx context.Context) (Release, error) {
	info, err := u.Check(ctx)
	if err != nil {
		return info, err
	}
	if !info.UpdateAvailable {
		return info, newError(ErrCodeNoUpdate, "already running "+info.CurrentVersion, nil)
	}

	u.mu.Lock()
	rel := u.latest
	u.mu.Unlock()

	if u.backup != nil {
		if err := u.backup.create(u.executable); err != nil {
			u.setErr(err)
			return info, newError(ErrCodeBackupFailed, "failed to back up current binary", err)
		}
	}

	u.logger.Info("Applying update", "from", info.CurrentVersion, "to", info.LatestVersion)
	if err := u.client.UpdateTo(ctx, rel, u.executable); err != nil {
		u.setErr(err)
		u.restoreAfterFailure()
		return info, newError(ErrCodeApplyFailed, "failed to apply update", err)
	}

	u.logger.Info("Update applied", "version", info.LatestVersion)
	return info, nil
}

// Rollback restores the backed up binary.
func (u *Updater) Rollback(_ context.Context) error {
	if !u.Enabled() {
		return newError(ErrCodeDisabled, u.disabledReason, nil)
	}
	if u.backup == nil || !u.backup.available() {
		return newError(ErrCodeNoBackup, "no backup available for rollback", nil)
	}
	if err := u.backup.restore(); err != nil {
		u.setErr(err)
		return newError(ErrCodeRollbackFailed, "failed to restore backup", err)
	}
	return nil
}

// Status returns the current updater state.
func (u *Updater) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()

	st := Status{
		CurrentVersion: version.Version,
		Enabled:        u.Enabled(),
		DisabledReason: u.disabledReason,
		LastChecked:    u.lastChecked,
	}
	if u.lastErr != nil {
		st.Error = u.lastErr.Error()
	}
	if u.backup != nil {
		st.BackupAvailable = u.backup.available()
		st.BackupVersion = u.backup.version()
	}
	return st
}

func (u *Updater) setErr(err error) {
	u.mu.Lock()
	u.lastErr = err
	u.mu.Unlock()
}

func (u *Updater) restoreAfterFailure() {
	if u.backup == nil || !u.backup.available() {
		u.logger.Error("No backup available for automatic rollback")
		return
	}
	if err := u.backup.restore(); err != nil {
		u.logger.Error("Failed to restore backup", "error", err)
		return
	}
	u.logger.Info("Automatic rollback completed")
}
