package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sbk2k1/sbk-assistant/internal/pkg/jwt"
)

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		secret  string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "mint a bearer token for the upload endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := loadConfig(*configPath)
				if err != nil {
					return err
				}
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("no jwt secret: set auth.jwt_secret or pass --secret")
			}
			token, err := jwt.GenerateToken(subject, jwt.ScopeUpload, []byte(secret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret, defaults to auth.jwt_secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	return cmd
}
