package cmd

import (
	"os"
	"path/filepath"

	"grimm.is/pathprobe/internal/brand"
	"grimm.is/pathprobe/internal/config"
	"grimm.is/pathprobe/internal/i18n"
)

// RunInitConfig writes a commented default configuration to path. An
// existing file is left alone.
func RunInitConfig(path string) error {
	if path == "" {
		path = brand.DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	Printer.Fprintf(stdout, i18n.MsgWroteConfig, path)
	return nil
}
