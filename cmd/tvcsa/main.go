package main

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/go-errors/errors"
	"github.com/integrii/flaggy"

	"github.com/observe-l/tvcsa/internal/config"
)

var (
	commit  string
	version = "unversioned"
	date    string

	configPath = "tvcsa.yml"
	tracePath  string
)

func main() {
	info := fmt.Sprintf(
		"%s\nDate: %s\nCommit: %s\nOS: %s\nArch: %s",
		version,
		date,
		commit,
		runtime.GOOS,
		runtime.GOARCH,
	)

	flaggy.SetName("tvcsa")
	flaggy.SetDescription("Descramble DVB transport streams with known control words")
	flaggy.SetVersion(info)

	run := flaggy.NewSubcommand("run")
	run.Description = "Descramble the configured input into the configured output"
	run.String(&configPath, "c", "config", "Path to the YAML configuration")
	flaggy.AttachSubcommand(run, 1)

	cfgCmd := flaggy.NewSubcommand("config")
	cfgCmd.Description = "Print the effective configuration"
	cfgCmd.String(&configPath, "c", "config", "Path to the YAML configuration")
	flaggy.AttachSubcommand(cfgCmd, 1)

	trace := flaggy.NewSubcommand("trace")
	trace.Description = "Summarise a cluster flush trace"
	trace.AddPositionalValue(&tracePath, "file", 1, true, "Trace file written by engine.trace")
	flaggy.AttachSubcommand(trace, 1)

	flaggy.Parse()

	var err error
	switch {
	case run.Used:
		err = runPipeline(configPath)
	case cfgCmd.Used:
		err = printConfig(configPath)
	case trace.Used:
		err = summariseTrace(tracePath, os.Stdout)
	default:
		flaggy.ShowHelpAndExit("a subcommand is required")
	}
	if err != nil {
		newErr := errors.Wrap(err, 0)
		log.Fatal(newErr.ErrorStack())
	}
}

func printConfig(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	return cfg.Write(os.Stdout)
}
