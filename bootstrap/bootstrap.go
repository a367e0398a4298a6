// Package bootstrap turns a loaded config into the collaborators the
// sync, push and web entry points share.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"axiapac.com/devicesync/agent"
	v1 "axiapac.com/devicesync/collector/v1"
	"axiapac.com/devicesync/config"
	"axiapac.com/devicesync/device"
	"axiapac.com/devicesync/device/sim"
	"axiapac.com/devicesync/infrastructure/communication"
	"axiapac.com/devicesync/logging"
	"axiapac.com/devicesync/security"
	"github.com/rs/zerolog"
)

const tokenLifetime = 12 * time.Hour

// Logger builds the process logger from the config.
func Logger(cfg *config.Config) zerolog.Logger {
	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	return logging.New(logging.Config{Level: level, Format: cfg.LogFormat})
}

// Dialer returns the device client implementation named by driver.name.
func Dialer(cfg *config.Config) (device.Dialer, error) {
	switch cfg.Driver.Name {
	case "sim":
		return sim.Load(cfg.Driver.Fixture)
	}
	return nil, fmt.Errorf("%w: unknown driver %q", config.ErrInvalid, cfg.Driver.Name)
}

// Token is the bearer token sent to the collection endpoint. A static
// api_key wins; otherwise the agent signs its own identity token.
func Token(cfg *config.Config) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	hostname, _ := os.Hostname()
	return security.CreateIdentityToken(&security.AgentIdentity{
		AgentID:  agentID(hostname),
		Hostname: hostname,
	}, cfg.SigningSecret, tokenLifetime)
}

func agentID(hostname string) string {
	if hostname == "" {
		return "devicesync"
	}
	return "devicesync-" + strings.ToLower(hostname)
}

// Collector builds the HTTP client for the collection endpoint.
func Collector(cfg *config.Config, log zerolog.Logger) (*v1.CollectorClient, error) {
	token, err := Token(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: signing_secret: %w", config.ErrInvalid, err)
	}
	return v1.NewCollectorClient(cfg.APIEndpoint, token, v1.Options{
		Timeout: cfg.RequestTimeout,
		Breaker: v1.BreakerOptions{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			OpenTimeout:      cfg.Breaker.OpenTimeout,
			OnStateChange: func(from, to string) {
				log.Warn().Str("from", from).Str("to", to).Msg("collector circuit breaker changed state")
			},
		},
	}), nil
}

// Settings copies the run-level knobs out of the config.
func Settings(cfg *config.Config) agent.Settings {
	return agent.Settings{
		ClearAfterSync:    cfg.ClearAfterSync,
		ConnectTimeout:    cfg.ConnectTimeout,
		OperationTimeout:  cfg.OperationTimeout,
		DisconnectTimeout: cfg.DisconnectTimeout,
		RunTimeout:        cfg.RunTimeout,
		Concurrency:       cfg.Concurrency,
		PushRate:          cfg.PushRate,
	}
}

// Runtime is everything a run needs, built once per process.
type Runtime struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Dialer    device.Dialer
	Collector *v1.CollectorClient
	Notifier  communication.Notifier
	// Locks keeps runs started from this process off the same terminal
	// at the same time.
	Locks *agent.DeviceLocks
}

func New(cfg *config.Config) (*Runtime, error) {
	log := Logger(cfg)

	dialer, err := Dialer(cfg)
	if err != nil {
		return nil, err
	}
	collector, err := Collector(cfg, log)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Config:    cfg,
		Logger:    log,
		Dialer:    dialer,
		Collector: collector,
		Notifier:  Notifier(cfg),
		Locks:     agent.NewDeviceLocks(),
	}, nil
}

// RunContext starts a fresh run with its own run id. Every run shares the
// runtime's device locks.
func (r *Runtime) RunContext() *agent.RunContext {
	return agent.NewRunContext(Settings(r.Config), r.Logger, r.Dialer, r.Collector.Attendance, r.Locks)
}

func Notifier(cfg *config.Config) communication.Notifier {
	if !cfg.Slack.Enabled() {
		return communication.Nop()
	}
	return communication.NewSlack(cfg.Slack.Token, communication.SlackOption{
		InfoChannelID:  cfg.Slack.InfoChannelID,
		ErrorChannelID: cfg.Slack.ErrorChannelID,
	})
}

// Report posts the run summary. Failures go to the error channel.
func Report(ctx context.Context, n communication.Notifier, s agent.SyncSummary) error {
	msg := FormatSummary(s)
	if s.FailureCount > 0 {
		return n.Error(ctx, msg)
	}
	return n.Info(ctx, msg)
}

func FormatSummary(s agent.SyncSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Device sync %s: Total: %d, Success: %d, Failed: %d (%s)",
		s.RunID, s.TotalDevices, s.SuccessCount, s.FailureCount, s.Duration.Round(time.Millisecond))
	for _, o := range s.Outcomes {
		switch {
		case !o.Succeeded:
			fmt.Fprintf(&b, "\n- %s (%s): %s at %s: %s", o.DeviceName, o.DeviceID, o.ErrorKind, o.FailedAt(), o.ErrorDetail)
		case o.ClearWarning != "":
			fmt.Fprintf(&b, "\n- %s (%s): uploaded %d record(s), clear failed: %s", o.DeviceName, o.DeviceID, o.AttendanceCount, o.ClearWarning)
		}
	}
	return b.String()
}
