package cmd

import (
	"io"
	"os"

	"grimm.is/pathprobe/internal/brand"
	"grimm.is/pathprobe/internal/config"
	"grimm.is/pathprobe/internal/i18n"
	"grimm.is/pathprobe/internal/logging"
)

// Printer is used for all user-facing CLI output.
var Printer = i18n.NewCLIPrinter()

// stdout is where command output goes; tests replace it.
var stdout io.Writer = os.Stdout

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = brand.DefaultConfigPath()
	}
	return config.LoadFile(path)
}

// setupLogging builds the process logger. It always writes to stderr and
// adds the log file and remote syslog when configured; syslog failures are
// reported and skipped. The returned func closes the extra outputs.
func setupLogging(cfg *config.Config, verbose bool) (*logging.Logger, func()) {
	var closers []io.Closer
	writers := []io.Writer{os.Stderr}

	if cfg.LogFile != "" {
		f, err := logging.OpenLogFile(cfg.LogFile)
		if err != nil {
			Printer.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else {
			writers = append(writers, f)
			closers = append(closers, f)
		}
	}

	if s := cfg.Syslog; s != nil {
		w, err := logging.NewSyslogWriter(logging.SyslogConfig{
			Host:     s.Host,
			Port:     s.Port,
			Protocol: s.Protocol,
			Tag:      s.Tag,
			Facility: s.Facility,
		})
		if err != nil {
			Printer.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else {
			writers = append(writers, w)
			closers = append(closers, w)
		}
	}

	lc := logging.DefaultConfig()
	lc.Output = logging.MultiWriter(writers...)
	if cfg.Debug || verbose {
		lc.Level = logging.LevelDebug
	}
	logger := logging.New(lc)
	logging.SetDefault(logger)

	return logger, func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}
}
