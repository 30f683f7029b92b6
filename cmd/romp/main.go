// Command romp is a small harness for running the race detector core
// against a named demo scenario and printing whatever it finds.
//
// Usage:
//
//	romp run <scenario>      # run a built-in fork-join scenario
//	romp list                # list available scenarios
//	romp version              # print the harness version
//
// Unlike the teacher tool this one replaces, romp does not instrument Go
// source at the AST level: this detector's API is called directly by the
// runtime under test, so there is nothing to rewrite. romp exists to give
// the detector a runnable demonstration harness and a place to validate,
// at startup, that the module path it was built with is well-formed.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/mod/module"

	"github.com/kolkov/romp/examples/scenarios"
)

const modulePath = "github.com/kolkov/romp"

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := module.CheckPath(modulePath); err != nil {
		log.Fatal().Err(err).Msg("romp was built with an invalid module path")
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCommand(os.Args[2:])
	case "list":
		listCommand()
	case "version", "--version", "-v":
		fmt.Println("romp version 0.1.0")
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: romp run <scenario>")
		listCommand()
		os.Exit(1)
	}

	scenario, ok := scenarios.ByName(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n\n", args[0])
		listCommand()
		os.Exit(1)
	}

	log.Info().Str("scenario", args[0]).Msg("running scenario")
	result := scenario.Run()

	if len(result.Races) == 0 {
		log.Info().Msg("no races detected")
		return
	}

	log.Warn().Int("count", len(result.Races)).Msg("races detected")
	for _, r := range result.Races {
		fmt.Printf("DATA RACE on byte 0x%x\n  previous: %s\n  current:  %s\n", r.ByteAddr, r.Hist, r.Cur)
	}
	os.Exit(1)
}

func listCommand() {
	fmt.Fprintln(os.Stderr, "available scenarios:")
	for _, name := range scenarios.Names() {
		fmt.Fprintf(os.Stderr, "  %s\n", name)
	}
}

func printUsage() {
	fmt.Print(`romp - fork-join task race detector demo harness

USAGE:
    romp <command> [arguments]

COMMANDS:
    run <scenario>   Run a built-in scenario and report any races found
    list             List available scenarios
    version          Show version information
    help             Show this help message

`)
}
