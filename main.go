package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"grimm.is/geoenrich/cmd"
	"grimm.is/geoenrich/internal/brand"
	"grimm.is/geoenrich/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "lookup":
		lookupFlags := flag.NewFlagSet("lookup", flag.ExitOnError)
		configFile := lookupFlags.String("config", "", "Configuration file")
		lookupFlags.StringVar(configFile, "c", "", "Configuration file (short)")
		lookupFlags.Parse(os.Args[2:])

		if err := cmd.RunLookup(ctx, *configFile, lookupFlags.Args(), os.Stdout); err != nil {
			printer.Fprintf(os.Stderr, "Lookup failed: %v\n", err)
			os.Exit(1)
		}

	case "enrich":
		enrichFlags := flag.NewFlagSet("enrich", flag.ExitOnError)
		configFile := enrichFlags.String("config", "", "Configuration file")
		enrichFlags.StringVar(configFile, "c", "", "Configuration file (short)")

		fields := enrichFlags.String("fields", "", "Comma-separated IP fields (default: built-in list)")
		enrichFlags.StringVar(fields, "f", "", "IP fields (short)")

		quiet := enrichFlags.Bool("quiet", false, "Suppress the summary")
		enrichFlags.BoolVar(quiet, "q", false, "Suppress the summary (short)")
		enrichFlags.Parse(os.Args[2:])

		opts := cmd.EnrichOptions{ConfigFile: *configFile, Quiet: *quiet}
		if *fields != "" {
			opts.Fields = strings.Split(*fields, ",")
		}

		in := os.Stdin
		if path := enrichFlags.Arg(0); path != "" && path != "-" {
			f, err := os.Open(path)
			if err != nil {
				printer.Fprintf(os.Stderr, "Enrich failed: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()
			in = f
		}

		if err := cmd.RunEnrich(ctx, opts, in, os.Stdout, os.Stderr); err != nil {
			printer.Fprintf(os.Stderr, "Enrich failed: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Also open the configured databases")
		checkFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		checkFlags.Parse(os.Args[2:])

		configFile := brand.DefaultConfigDir + "/" + brand.ConfigFileName
		if len(checkFlags.Args()) > 0 {
			configFile = checkFlags.Arg(0)
		}

		if err := cmd.RunCheck(configFile, *verbose, os.Stdout); err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		configFile := serveFlags.String("config", "", "Configuration file")
		serveFlags.StringVar(configFile, "c", "", "Configuration file (short)")
		serveFlags.Parse(os.Args[2:])

		if err := cmd.RunServe(ctx, *configFile); err != nil {
			printer.Fprintf(os.Stderr, "Serve failed: %v\n", err)
			os.Exit(1)
		}

	case "version", "-v", "--version":
		printer.Println(brand.VersionString())

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Commands:
  lookup    Enrich one or more IP addresses
            Options: --config (-c) <file>
  enrich    Enrich JSON objects (array or JSON lines) from a file or stdin
            Options: --config (-c) <file>, --fields (-f) <a,b.c>, --quiet (-q)
  check     Validate a configuration file
            Options: --verbose (-v)
  serve     Run the HTTP enrichment and metrics server
            Options: --config (-c) <file>
  version   Print version information

Examples:
  %s lookup 8.8.8.8 2001:4860::8888
  %s enrich -f src_ip,device.ip events.jsonl > enriched.jsonl
  %s check -v %s/%s
`, brand.Name, brand.Description, brand.BinaryName,
		brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.DefaultConfigDir, brand.ConfigFileName)
}
