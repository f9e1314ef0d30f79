// Command lapsed runs the lapse daemon in the foreground. It is the binary
// service managers supervise; the lapse CLI's "daemon" subcommand is the
// equivalent for interactive use.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"lapse/internal/config"
	"lapse/internal/daemonrun"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stderr); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	flags := pflag.NewFlagSet("lapsed", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.StringP("config", "c", "", "Configuration file path")
	logLevel := flags.String("log-level", "", "Override logging.level")
	development := flags.Bool("dev", false, "Include source locations in log output")
	showVersion := flags.Bool("version", false, "Print the version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintf(stderr, "lapsed %s\n", version)
		return nil
	}

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return daemonrun.Run(ctx, cfg, daemonrun.Options{
		LogLevel:    *logLevel,
		Development: *development,
		Version:     version,
	})
}
