package main

import (
	"flag"
	"os"

	"grimm.is/pathprobe/cmd"
	"grimm.is/pathprobe/internal/brand"
	"grimm.is/pathprobe/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "poll":
		pollFlags := flag.NewFlagSet("poll", flag.ExitOnError)
		configFile := configFlag(pollFlags)
		verbose := pollFlags.Bool("verbose", false, "Debug logging and a status summary")
		pollFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		pollFlags.Parse(os.Args[2:])

		if err := cmd.RunPoll(*configFile, *verbose); err != nil {
			printer.Fprintf(os.Stderr, "Poll failed: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		configFile := configFlag(checkFlags)
		verbose := checkFlags.Bool("verbose", false, "Print a configuration summary")
		checkFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		checkFlags.Parse(os.Args[2:])

		path := *configFile
		if checkFlags.NArg() > 0 {
			path = checkFlags.Arg(0)
		}
		if err := cmd.RunCheck(path, *verbose); err != nil {
			printer.Fprintf(os.Stderr, i18n.MsgConfigInvalid, path, err)
			os.Exit(1)
		}

	case "routes":
		routeFlags := flag.NewFlagSet("routes", flag.ExitOnError)
		configFile := configFlag(routeFlags)
		fix := routeFlags.Bool("fix", false, "Apply route corrections instead of printing them")
		dryRun := routeFlags.Bool("n", false, "Print correction commands without running them")
		verbose := routeFlags.Bool("verbose", false, "Debug logging")
		routeFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		routeFlags.Parse(os.Args[2:])

		if err := cmd.RunRoutes(*configFile, *fix, *dryRun, *verbose, routeFlags.Args()); err != nil {
			printer.Fprintf(os.Stderr, "Route check failed: %v\n", err)
			os.Exit(1)
		}

	case "init-config":
		initFlags := flag.NewFlagSet("init-config", flag.ExitOnError)
		configFile := configFlag(initFlags)
		initFlags.Parse(os.Args[2:])

		path := *configFile
		if initFlags.NArg() > 0 {
			path = initFlags.Arg(0)
		}
		if err := cmd.RunInitConfig(path); err != nil {
			printer.Fprintf(os.Stderr, "init-config failed: %v\n", err)
			os.Exit(1)
		}

	case "spool":
		spoolFlags := flag.NewFlagSet("spool", flag.ExitOnError)
		configFile := configFlag(spoolFlags)
		spoolFlags.Parse(os.Args[2:])

		if err := cmd.RunSpool(*configFile, spoolFlags.Arg(0)); err != nil {
			printer.Fprintf(os.Stderr, "Spool failed: %v\n", err)
			os.Exit(1)
		}

	case "status":
		statusFlags := flag.NewFlagSet("status", flag.ExitOnError)
		configFile := configFlag(statusFlags)
		statusFlags.Parse(os.Args[2:])

		if err := cmd.RunStatus(*configFile); err != nil {
			printer.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}

	case "version", "--version", "-V":
		printer.Printf("%s %s (commit %s, built %s)\n", brand.Name, brand.Version, brand.GitCommit, brand.BuildTime)

	case "help", "--help", "-h":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func configFlag(fs *flag.FlagSet) *string {
	path := fs.String("config", brand.DefaultConfigPath(), "Configuration file")
	fs.StringVar(path, "c", brand.DefaultConfigPath(), "Configuration file (short)")
	return path
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Commands:
  poll          Run one poll cycle (meant to be started by cron)
                Options: --config (-c) <file>, --verbose (-v)
  check         Validate a configuration file
                Options: --config (-c) <file>, --verbose (-v)
  routes        Check the route to every poll destination
                Options: --config (-c) <file>, --fix, -n, --verbose (-v), [target...]
  init-config   Write a default configuration file
  spool         List or flush spooled results
                Subcommands: list, flush
  status        Show lock, watchdog and interface state
  version       Print version information

Examples:
  %s init-config -c /etc/%s/%s.hcl
  %s check -v
  %s routes --fix
  %s poll -v

`, brand.Name, brand.Description, brand.BinaryName,
		brand.BinaryName, brand.LowerName, brand.LowerName,
		brand.BinaryName, brand.BinaryName, brand.BinaryName)
}
