package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "dsar/internal/jwt_token"
	platformstrings "dsar/pkg/platform/strings"
)

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var (
		operator string
		scopes   string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cfg.Server.JWTSigningKey == "" {
				return errors.New("DSAR_JWT_SIGNING_KEY is required to mint tokens")
			}
			if ttl <= 0 {
				ttl = cfg.Server.TokenTTL
			}
			svc := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer)
			token, err := svc.GenerateOperatorToken(operator, platformstrings.ParseList(scopes), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "operator the token is issued to (required)")
	cmd.Flags().StringVar(&scopes, "scopes", "", "comma separated scopes (default: dsar:run, dsar:compile, dsar:read)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default DSAR_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}
