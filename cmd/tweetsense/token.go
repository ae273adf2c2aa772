package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/tweetsense/internal/runtime"
	"github.com/spf13/cobra"
)

func tokenCMD() *cobra.Command {
	var subject string
	var ttl time.Duration
	var token = &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for the protected endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			secret, ok := runtime.LoadJWTSecret(cfg)
			if !ok {
				return errors.New("server.jwt_secret not configured")
			}
			tok, err := runtime.SignJWT(subject, secret, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	token.Flags().StringVar(&subject, "subject", "cli", "token subject")
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return token
}
