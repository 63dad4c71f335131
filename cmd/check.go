package cmd

import (
	"strings"
	"text/tabwriter"

	"grimm.is/pathprobe/internal/brand"
	"grimm.is/pathprobe/internal/config"
	"grimm.is/pathprobe/internal/i18n"
	"grimm.is/pathprobe/internal/poller"
)

// RunCheck validates the configuration file syntax and semantics. The
// load error is returned unwrapped.
func RunCheck(configFile string, verbose bool) error {
	if configFile == "" {
		configFile = brand.DefaultConfigPath()
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return err
	}
	Printer.Fprintf(stdout, i18n.MsgConfigOK, configFile)

	if verbose {
		Printer.Fprintln(stdout)
		printSummary(cfg)
	}
	return nil
}

func printSummary(cfg *config.Config) {
	iface, _ := poller.PolicyFromConfig(cfg).TestInterface()
	families := []string{}
	if cfg.IPv4Enabled {
		families = append(families, "ipv4")
	}
	if cfg.IPv6Enabled {
		families = append(families, "ipv6")
	}
	exporter := "-"
	if e := cfg.Exporter; e != nil {
		exporter = e.Type
		if e.Host != "" {
			exporter += " " + e.Host
		}
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	Printer.Fprintf(w, "Probe mode:\t%s\n", cfg.ProbeMode)
	Printer.Fprintf(w, "Test interface:\t%s\n", iface)
	Printer.Fprintf(w, "Mgt interface:\t%s\n", cfg.MgtIf)
	Printer.Fprintf(w, "Families:\t%s\n", strings.Join(families, ", "))
	Printer.Fprintf(w, "Exporter:\t%s\n", exporter)
	Printer.Fprintf(w, "Spool:\t%v\n", cfg.SpoolEnabled())
	w.Flush()

	Printer.Fprintln(stdout)
	w = tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	Printer.Fprintln(w, "TEST\tENABLED\tTARGETS")
	for _, job := range poller.Jobs(cfg, nil, nil) {
		targets := strings.Join(job.Targets, ", ")
		if targets == "" {
			targets = "-"
		}
		Printer.Fprintf(w, "%s\t%v\t%s\n", job.Name, job.Enabled, targets)
	}
	w.Flush()
}
