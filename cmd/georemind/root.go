package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"georemind/internal/shared/config"
	"georemind/internal/shared/logging"
	"georemind/internal/shared/utils/id"
)

const envPrefix = "GEOREMIND"

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// override copies one viper key into the loaded config when a flag or
// GEOREMIND_* variable sets it.
type override struct {
	key   string
	apply func(v *viper.Viper, key string, cfg *config.Config)
}

var overrides = []override{
	{"id_strategy", func(v *viper.Viper, k string, c *config.Config) { c.IDStrategy = v.GetString(k) }},
	{"server.addr", func(v *viper.Viper, k string, c *config.Config) { c.Server.Addr = v.GetString(k) }},
	{"server.allowed_origins", func(v *viper.Viper, k string, c *config.Config) {
		c.Server.AllowedOrigins = splitList(v.GetString(k))
	}},
	{"server.rate_limit_rps", func(v *viper.Viper, k string, c *config.Config) { c.Server.RateLimitRPS = v.GetFloat64(k) }},
	{"store.driver", func(v *viper.Viper, k string, c *config.Config) { c.Store.Driver = v.GetString(k) }},
	{"store.dir", func(v *viper.Viper, k string, c *config.Config) { c.Store.Dir = v.GetString(k) }},
	{"store.database_url", func(v *viper.Viper, k string, c *config.Config) { c.Store.DatabaseURL = v.GetString(k) }},
	{"reminder.default_permission", func(v *viper.Viper, k string, c *config.Config) {
		c.Reminder.DefaultPermission = v.GetString(k)
	}},
	{"reminder.initial_delay", func(v *viper.Viper, k string, c *config.Config) {
		c.Reminder.InitialDelay = config.Duration(v.GetDuration(k))
	}},
	{"reminder.interval", func(v *viper.Viper, k string, c *config.Config) {
		c.Reminder.Interval = config.Duration(v.GetDuration(k))
	}},
	{"reminder.max_reminders", func(v *viper.Viper, k string, c *config.Config) { c.Reminder.MaxReminders = v.GetInt(k) }},
	{"notification.webhook.url", func(v *viper.Viper, k string, c *config.Config) {
		c.Notification.Webhook.URL = v.GetString(k)
		c.Notification.Webhook.Enabled = c.Notification.Webhook.URL != ""
	}},
	{"notification.lark.app_id", func(v *viper.Viper, k string, c *config.Config) { c.Notification.Lark.AppID = v.GetString(k) }},
	{"notification.lark.app_secret", func(v *viper.Viper, k string, c *config.Config) {
		c.Notification.Lark.AppSecret = v.GetString(k)
	}},
	{"geocode.enabled", func(v *viper.Viper, k string, c *config.Config) { c.Geocode.Enabled = v.GetBool(k) }},
	{"digest.enabled", func(v *viper.Viper, k string, c *config.Config) { c.Digest.Enabled = v.GetBool(k) }},
	{"digest.schedule", func(v *viper.Viper, k string, c *config.Config) { c.Digest.Schedule = v.GetString(k) }},
	{"observability.tracing.enabled", func(v *viper.Viper, k string, c *config.Config) {
		c.Observability.Tracing.Enabled = v.GetBool(k)
	}},
	{"observability.tracing.exporter", func(v *viper.Viper, k string, c *config.Config) {
		c.Observability.Tracing.Exporter = v.GetString(k)
	}},
	{"observability.tracing.endpoint", func(v *viper.Viper, k string, c *config.Config) {
		c.Observability.Tracing.Endpoint = v.GetString(k)
	}},
	{"logging.level", func(v *viper.Viper, k string, c *config.Config) { c.Logging.Level = v.GetString(k) }},
	{"logging.format", func(v *viper.Viper, k string, c *config.Config) { c.Logging.Format = v.GetString(k) }},
}

// isTTY reports whether stdout is a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func newRootCommand() *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:           "georemind",
		Short:         "Location-aware reminders that complete themselves on arrival",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	var noColor bool
	root.PersistentPreRun = func(*cobra.Command, []string) {
		if noColor || !isTTY() {
			color.NoColor = true
		}
	}
	flags := root.PersistentFlags()
	flags.BoolVar(&noColor, "no-color", false, "disable coloured output")
	flags.String("config", "", "path to config.yaml (default $HOME/.georemind/config.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	mustBind(v, "config", flags.Lookup("config"))
	mustBind(v, "logging.level", flags.Lookup("log-level"))
	mustBind(v, "logging.format", flags.Lookup("log-format"))

	root.AddCommand(newServeCommand(v))
	root.AddCommand(newSimulateCommand(v))
	root.AddCommand(newDistanceCommand())
	root.AddCommand(newConfigCommand(v))
	root.AddCommand(newVersionCommand())
	return root
}

// loadConfig layers flags and GEOREMIND_* variables over the YAML file and
// configures process-wide logging and ID generation.
func loadConfig(v *viper.Viper) (config.Config, string, error) {
	cfg, path, err := config.Load(config.WithConfigPath(v.GetString("config")))
	if err != nil {
		return cfg, path, err
	}
	for _, o := range overrides {
		if v.IsSet(o.key) {
			o.apply(v, o.key, &cfg)
		}
	}
	if err := config.Validate(cfg).Err(); err != nil {
		return cfg, path, fmt.Errorf("invalid config %s: %w", displayPath(path), err)
	}

	logging.Configure(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	id.SetStrategy(id.ParseStrategy(cfg.IDStrategy))
	return cfg, path, nil
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag for %s: %v", key, err))
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func displayPath(path string) string {
	if path == "" {
		return "(defaults)"
	}
	return path
}
