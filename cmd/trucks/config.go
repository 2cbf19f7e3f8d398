package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// secretKeys are masked by config show.
var secretKeys = map[string]bool{
	"auth.jwt_secret":      true,
	"redis.password":       true,
	"sheets.client_secret": true,
	"sheets.refresh_token": true,
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if used := viper.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "# from %s\n", used)
			}
			out, err := yaml.Marshal(maskSecrets(viper.AllSettings(), ""))
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	return cmd
}

// maskSecrets returns a copy of settings with secret values replaced.
func maskSecrets(settings map[string]any, prefix string) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		key := strings.TrimPrefix(prefix+"."+k, ".")
		switch val := v.(type) {
		case map[string]any:
			out[k] = maskSecrets(val, key)
		default:
			if secretKeys[key] && fmt.Sprint(val) != "" {
				out[k] = "********"
			} else {
				out[k] = v
			}
		}
	}
	return out
}
