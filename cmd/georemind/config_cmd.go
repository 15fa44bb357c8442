package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"georemind/internal/shared/config"
)

const redacted = "********"

func newConfigCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(v)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(redactSecrets(cfg))
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# source: %s\n", displayPath(path))
			_, err = out.Write(data)
			return err
		},
	}
}

func redactSecrets(cfg config.Config) config.Config {
	if cfg.Store.DatabaseURL != "" {
		cfg.Store.DatabaseURL = redacted
	}
	if cfg.Notification.Lark.AppSecret != "" {
		cfg.Notification.Lark.AppSecret = redacted
	}
	if len(cfg.Notification.Webhook.Headers) > 0 {
		headers := make(map[string]string, len(cfg.Notification.Webhook.Headers))
		for k := range cfg.Notification.Webhook.Headers {
			headers[k] = redacted
		}
		cfg.Notification.Webhook.Headers = headers
	}
	return cfg
}
