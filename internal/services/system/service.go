// Package system wraps the OS interactions of a backup run: mounting
// and unmounting the CIFS share, filesystem checks and deriving the
// per-device directory name from the host's primary network interface.
package system

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jdekker/pibackup/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for system operations.
type Service interface {
	DirExists(path string) bool
	FileExists(path string) bool
	IsMounted(path string) (bool, error)
	Mount(ctx context.Context, cfg models.CifsConfig) error
	Unmount(ctx context.Context, path string) error
	CreateDirectory(path string) error
	DeviceDirectory(ctx context.Context) (string, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its combined output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Impl implements the system Service interface.
type Impl struct {
	executor CommandExecutor
	readFile func(name string) ([]byte, error)
	hostname func() (string, error)
	logger   zerolog.Logger
}

// New creates a new system service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		readFile: os.ReadFile,
		hostname: os.Hostname,
		logger:   logger,
	}
}

// NewWithDeps creates a new system service with custom collaborators
// (for testing).
func NewWithDeps(
	logger zerolog.Logger,
	executor CommandExecutor,
	readFile func(name string) ([]byte, error),
	hostname func() (string, error),
) *Impl {
	return &Impl{
		executor: executor,
		readFile: readFile,
		hostname: hostname,
		logger:   logger,
	}
}

// DirExists reports whether path exists and is a directory.
func (s *Impl) DirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// FileExists reports whether path exists and is a regular file.
func (s *Impl) FileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// IsMounted reports whether path is a filesystem mount point, by
// comparing its device number against its parent directory.
func (s *Impl) IsMounted(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if !fi.IsDir() {
		return false, nil
	}

	parent, err := os.Stat(filepath.Join(path, ".."))
	if err != nil {
		return false, err
	}

	st, ok := fi.Sys().(*syscall.Stat_t)
	pst, pok := parent.Sys().(*syscall.Stat_t)
	if !ok || !pok {
		return false, fmt.Errorf("mount detection not supported on this platform")
	}

	if st.Dev != pst.Dev {
		return true, nil
	}
	// Same device and same inode means path is the filesystem root.
	return st.Ino == pst.Ino, nil
}

// Mount mounts the configured CIFS share onto its target. The mount
// command's exit status is advisory only; callers verify the result
// with IsMounted.
func (s *Impl) Mount(ctx context.Context, cfg models.CifsConfig) error {
	opts := fmt.Sprintf("user=%s,password=%s,rw,file_mode=0777,dir_mode=0777",
		cfg.User, cfg.Password)

	s.logger.Debug().Str("share", cfg.Share).Str("target", cfg.Target).Msg("mounting CIFS share")

	output, err := s.executor.Execute(ctx, "mount", "-t", "cifs", "-o", opts, cfg.Share, cfg.Target)
	if err != nil {
		return fmt.Errorf("mount failed: %w, output: %s", err, string(output))
	}

	return nil
}

// Unmount unmounts the filesystem at path.
func (s *Impl) Unmount(ctx context.Context, path string) error {
	s.logger.Debug().Str("path", path).Msg("unmounting")

	output, err := s.executor.Execute(ctx, "umount", path)
	if err != nil {
		return fmt.Errorf("umount failed: %w, output: %s", err, string(output))
	}

	return nil
}

// CreateDirectory creates the directory at path and verifies it exists
// afterwards.
func (s *Impl) CreateDirectory(path string) error {
	if err := os.Mkdir(path, 0o777); err != nil && !os.IsExist(err) {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	if !s.DirExists(path) {
		return fmt.Errorf("directory %s missing after creation", path)
	}
	return nil
}

// DeviceDirectory returns "<hostname>_<mac>" where mac is the primary
// interface's hardware address with the colons stripped. The name is
// stable across runs, so every run of the same device lands in the
// same folder on the share.
func (s *Impl) DeviceDirectory(ctx context.Context) (string, error) {
	host, err := s.hostname()
	if err != nil {
		return "", fmt.Errorf("resolving hostname: %w", err)
	}

	mac, err := s.primaryMAC(ctx)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s_%s", host, strings.ReplaceAll(mac, ":", "")), nil
}

// primaryMAC reads the hardware address of the default-route interface.
func (s *Impl) primaryMAC(ctx context.Context) (string, error) {
	output, err := s.executor.Execute(ctx, "ip", "-o", "route", "show", "default")
	if err != nil {
		return "", fmt.Errorf("resolving default route: %w, output: %s", err, string(output))
	}

	iface := defaultRouteInterface(string(output))
	if iface == "" {
		return "", fmt.Errorf("no default route interface in %q", strings.TrimSpace(string(output)))
	}

	addr, err := s.readFile(filepath.Join("/sys/class/net", iface, "address"))
	if err != nil {
		return "", fmt.Errorf("reading hardware address of %s: %w", iface, err)
	}

	return strings.TrimSpace(string(addr)), nil
}

// defaultRouteInterface extracts the interface name from the first
// line of `ip -o route show default` output.
func defaultRouteInterface(routeOutput string) string {
	line, _, _ := strings.Cut(routeOutput, "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "dev" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
