package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-trucks-must-roll/internal/auth"
	"github.com/Veraticus/the-trucks-must-roll/internal/common"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API access tokens",
	}
	cmd.AddCommand(issueTokenCmd())
	return cmd
}

func issueTokenCmd() *cobra.Command {
	var (
		operator string
		ttl      string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token for the HTTP API",
		Long: `Sign an HS256 token with auth.jwt_secret. Gate terminals send it as
"Authorization: Bearer <token>", or as ?token= on the websocket feed.`,
		Example: `  trucks token issue --operator gate-1 --ttl 24h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := viper.GetString("auth.jwt_secret")
			if secret == "" {
				return common.NewUserError("auth.jwt_secret is not set (config file or TRUCKS_AUTH_JWT_SECRET)", auth.ErrEmptySecret)
			}
			if operator == "" {
				return common.NewUserError("--operator is required", nil)
			}

			if ttl == "" {
				ttl = viper.GetString("auth.token_ttl")
			}
			d, err := parseDurationFlag("ttl", ttl)
			if err != nil {
				return err
			}

			token, err := auth.GenerateToken(secret, operator, d)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintln(cmd.ErrOrStderr(), "expires "+time.Now().Add(d).Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "", "name of the terminal or person using the token")
	cmd.Flags().StringVar(&ttl, "ttl", "", "token lifetime (default: auth.token_ttl)")

	return cmd
}
