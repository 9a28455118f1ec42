package daemon

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/template"
)

const (
	launchdLabel = "dev.allaspects.provswitch"
	systemdUnit  = "provswitch.service"
)

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ProgramPath}}</string>
        <string>serve</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{.DataDir}}</string>
    <key>KeepAlive</key>
    <true/>
    <key>RunAtLoad</key>
    <true/>
    <key>StandardErrorPath</key>
    <string>{{.DataDir}}/provswitch.err.log</string>
    <key>ProcessType</key>
    <string>Background</string>
</dict>
</plist>
`

const systemdUnitTemplate = `[Unit]
Description=provswitch provider switcher
After=network-online.target

[Service]
ExecStart={{.ProgramPath}} serve
WorkingDirectory={{.DataDir}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

type unitData struct {
	Label       string
	ProgramPath string
	DataDir     string
}

// renderUnit executes the service definition template for goos.
func renderUnit(goos string, data unitData) ([]byte, error) {
	var text string
	switch goos {
	case "darwin":
		text = launchdPlistTemplate
	case "linux":
		text = systemdUnitTemplate
	default:
		return nil, fmt.Errorf("service install is not supported on %s", goos)
	}
	tmpl, err := template.New("unit").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing service template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering service template: %w", err)
	}
	return buf.Bytes(), nil
}

// unitPath returns where the per-user service definition lives on goos.
func unitPath(goos, home string) string {
	if goos == "darwin" {
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
	}
	return filepath.Join(home, ".config", "systemd", "user", systemdUnit)
}

// InstallService registers provswitch as a per-user background service:
// a launchd agent on macOS or a systemd user unit on Linux.
func InstallService(dataDir string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("determining executable path: %w", err)
	}
	if execPath, err = filepath.EvalSymlinks(execPath); err != nil {
		return fmt.Errorf("resolving executable symlinks: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	content, err := renderUnit(runtime.GOOS, unitData{Label: launchdLabel, ProgramPath: execPath, DataDir: dataDir})
	if err != nil {
		return err
	}
	path := unitPath(runtime.GOOS, home)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating service directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("writing service file %s: %w", path, err)
	}
	fmt.Printf("Service definition written to %s\n", path)

	if runtime.GOOS == "darwin" {
		_ = exec.Command("launchctl", "unload", path).Run()
		return runVisible("launchctl", "load", path)
	}
	if err := runVisible("systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	return runVisible("systemctl", "--user", "enable", "--now", systemdUnit)
}

// UninstallService stops and removes the per-user service.
func UninstallService() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}
	path := unitPath(runtime.GOOS, home)

	if runtime.GOOS == "darwin" {
		_ = exec.Command("launchctl", "unload", path).Run()
	} else {
		_ = exec.Command("systemctl", "--user", "disable", "--now", systemdUnit).Run()
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing service file: %w", err)
	}
	fmt.Printf("Service removed (%s)\n", path)
	return nil
}

func runVisible(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
