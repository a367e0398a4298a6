package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"axiapac.com/devicesync/agent"
	"axiapac.com/devicesync/bootstrap"
	"axiapac.com/devicesync/config"
	"github.com/goccy/go-json"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code. Device failures are reported in the
// summary and still exit 0; only configuration problems exit 1.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath string
		asJSON     bool
	)
	fs.StringVar(&configPath, "c", "", "config file path or ssm://parameter (default $DEVICESYNC_CONFIG or config.yaml)")
	fs.StringVar(&configPath, "config", "", "alias of -c")
	fs.BoolVar(&asJSON, "json", false, "print the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}

	rt, err := bootstrap.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}

	summary := agent.NewOrchestrator(rt.RunContext()).Run(ctx, cfg.Devices)

	if err := bootstrap.Report(ctx, rt.Notifier, summary); err != nil {
		rt.Logger.Warn().Err(err).Msg("failed to post run summary")
	}

	if asJSON {
		b, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "[ERROR] %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, string(b))
	} else {
		printSummary(stdout, summary)
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		rt.Logger.Warn().Msg("run interrupted")
	}
	return 0
}

func printSummary(w io.Writer, s agent.SyncSummary) {
	fmt.Fprintf(w, "Total: %d, Success: %d, Failed: %d\n", s.TotalDevices, s.SuccessCount, s.FailureCount)
	for _, o := range s.Outcomes {
		switch {
		case o.Succeeded && o.ClearWarning != "":
			fmt.Fprintf(w, "  [WARN] %s: %d attendance, %d users uploaded, clear failed: %s\n", o.DeviceName, o.AttendanceCount, o.UserCount, o.ClearWarning)
		case o.Succeeded:
			fmt.Fprintf(w, "  [OK] %s: %d attendance, %d users, cleared=%t\n", o.DeviceName, o.AttendanceCount, o.UserCount, o.Cleared)
		default:
			fmt.Fprintf(w, "  [FAILED] %s: %s: %s\n", o.DeviceName, o.ErrorKind, o.ErrorDetail)
		}
	}
}
