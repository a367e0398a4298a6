package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"axiapac.com/devicesync/agent"
	"axiapac.com/devicesync/bootstrap"
	"axiapac.com/devicesync/config"
	"axiapac.com/devicesync/employees"
	"axiapac.com/devicesync/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	branch     string
	device     int
	push       bool
	clear      bool
	source     string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.configPath, "c", "", "config file path or ssm://parameter")
	fs.StringVar(&o.configPath, "config", "", "alias of -c")
	fs.StringVar(&o.branch, "b", "", "branch id whose employees are pushed (required)")
	fs.StringVar(&o.branch, "branch", "", "alias of -b")
	fs.IntVar(&o.device, "d", 0, "index of the target device in the config")
	fs.IntVar(&o.device, "device", 0, "alias of -d")
	fs.BoolVar(&o.push, "p", false, "write to the device; without it only a preview is printed")
	fs.BoolVar(&o.push, "push", false, "alias of -p")
	fs.BoolVar(&o.clear, "clear", false, "clear the device user table before writing")
	fs.StringVar(&o.source, "f", "", "employee list (.csv, .xlsx, s3://bucket/key or mysql), overrides employees.source")
	fs.StringVar(&o.source, "file", "", "alias of -f")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(o.branch) == "" {
		return nil, fmt.Errorf("branch is required (-b/--branch)")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}

	cfg, err := config.Load(ctx, o.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}
	d, err := cfg.DeviceAt(o.device)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}
	if o.source != "" {
		cfg.Employees.Source = o.source
	}

	src, err := employees.Open(cfg.Employees, cfg.Debug)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}
	emps, err := src.Employees(ctx, o.branch)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] failed to load employees: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Branch %s: %d employee(s) for %s (%s)\n", o.branch, len(emps), d.Name, d.Address())

	log := bootstrap.Logger(cfg)
	dialer, err := bootstrap.Dialer(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return 1
	}
	worker := agent.NewPushWorker(agent.NewRunContext(bootstrap.Settings(cfg), log, dialer, nil, nil))

	if !o.push {
		printPreview(stdout, emps, worker.Preview(emps))
		fmt.Fprintln(stdout, "Dry run, nothing written. Use -p/--push to write to the device.")
		return 0
	}

	summary := worker.Run(ctx, d, emps, o.clear)
	if summary.Error != "" {
		fmt.Fprintf(stderr, "[ERROR] push aborted (%s): %s\n", summary.ErrorKind, summary.Error)
	}
	for _, f := range utils.Filter(summary.Outcomes, func(p agent.PushOutcome) bool { return !p.Succeeded }) {
		fmt.Fprintf(stdout, "  [FAILED] %s %s (uid %s): %s\n", f.EmployeeID, f.Name, f.AssignedUID, f.ErrorDetail)
	}
	fmt.Fprintf(stdout, "Total: %d, Success: %d, Failed: %d\n", summary.TotalCount, summary.SuccessCount, summary.FailedCount)
	return 0
}

func printPreview(w io.Writer, emps []agent.Employee, preview []agent.PushOutcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EMPLOYEE\tNAME\tUID\tNATIVE")
	for i, p := range preview {
		native := strings.TrimSpace(emps[i].NativeUserID) != ""
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.EmployeeID, p.Name, p.AssignedUID, utils.FormatBoolean(native, "yes", "no"))
	}
	tw.Flush()
}
