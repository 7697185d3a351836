// Package service manages the kuma-uptime-beacon systemd unit: a thin
// wrapper over systemctl so the daemon can install itself on a Pi.
package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
)

const (
	Name     = "kuma-uptime-beacon"
	unitDir  = "/etc/systemd/system"
	unitFile = Name + ".service"
)

// Runner executes a system command. Injected so tests never touch
// systemctl.
type Runner func(ctx context.Context, name string, args ...string) error

// Dependencies allow test overrides for command execution and filesystem
// placement.
type Dependencies struct {
	Runner     Runner
	UnitDir    string
	BinaryPath func() (string, error)
	Username   func() string
	Logger     *log.Logger
}

// Manager installs, removes and inspects the beacon's systemd unit.
type Manager struct {
	runner  Runner
	unitDir string
	binPath func() (string, error)
	user    func() string
	logger  *log.Logger
}

func NewManager(deps Dependencies) *Manager {
	runner := deps.Runner
	if runner == nil {
		runner = execRunner
	}
	dir := deps.UnitDir
	if dir == "" {
		dir = unitDir
	}
	binPath := deps.BinaryPath
	if binPath == nil {
		binPath = os.Executable
	}
	username := deps.Username
	if username == nil {
		username = currentUsername
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Manager{
		runner:  runner,
		unitDir: dir,
		binPath: binPath,
		user:    username,
		logger:  logger,
	}
}

// UnitPath returns the target path of the service unit file.
func (m *Manager) UnitPath() string {
	return filepath.Join(m.unitDir, unitFile)
}

// BuildUnit renders the systemd unit text for the given config path.
func (m *Manager) BuildUnit(configPath string) (string, error) {
	bin, err := m.binPath()
	if err != nil {
		return "", fmt.Errorf("resolve beacon binary: %w", err)
	}
	absCfg, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}

	lines := []string{
		"[Unit]",
		"Description=Uptime Kuma hardware beacon",
		"After=network-online.target",
		"Wants=network-online.target",
		"",
		"[Service]",
		"Type=simple",
		"User=" + m.user(),
		"Environment=KUMA_BEACON_CONFIG=" + absCfg,
		fmt.Sprintf("ExecStart=%s run --config %s", bin, absCfg),
		"Restart=on-failure",
		"",
		"[Install]",
		"WantedBy=multi-user.target",
		"",
	}
	return strings.Join(lines, "\n"), nil
}

// Install writes the unit file, then reloads systemd and enables and
// starts the service.
func (m *Manager) Install(ctx context.Context, configPath string) error {
	if err := m.ensureSystemd(); err != nil {
		return err
	}
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}

	unit, err := m.BuildUnit(configPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.UnitPath(), []byte(unit), 0o644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}
	m.logger.Printf("service unit written to %s", m.UnitPath())

	for _, args := range [][]string{
		{"daemon-reload"},
		{"enable", Name},
		{"start", Name},
	} {
		if err := m.runner(ctx, "systemctl", args...); err != nil {
			return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
		}
	}
	m.logger.Printf("service %s installed and started", Name)
	return nil
}

// Uninstall stops and disables the service and removes its unit file.
// Disable/stop failures are tolerated; the unit may already be gone.
func (m *Manager) Uninstall(ctx context.Context) error {
	if err := m.ensureSystemd(); err != nil {
		return err
	}

	if err := m.runner(ctx, "systemctl", "disable", Name); err != nil {
		m.logger.Printf("systemctl disable %s: %v", Name, err)
	}
	if err := m.runner(ctx, "systemctl", "stop", Name); err != nil {
		m.logger.Printf("systemctl stop %s: %v", Name, err)
	}

	if err := os.Remove(m.UnitPath()); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("remove unit file: %w", err)
		}
	} else {
		m.logger.Printf("removed service unit %s", m.UnitPath())
	}

	if err := m.runner(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %w", err)
	}
	m.logger.Printf("service %s uninstalled", Name)
	return nil
}

// Status shells out to systemctl status; output goes to the caller's
// terminal.
func (m *Manager) Status(ctx context.Context) error {
	if err := m.ensureSystemd(); err != nil {
		return err
	}
	return m.runner(ctx, "systemctl", "status", Name)
}

func (m *Manager) ensureSystemd() error {
	if _, err := os.Stat(m.unitDir); err != nil {
		return fmt.Errorf("systemd directory %s not found; service management requires a systemd host", m.unitDir)
	}
	return nil
}

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "root"
}
