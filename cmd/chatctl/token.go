package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"privchat/internal/service"
	"privchat/pkg/jwt"
)

var (
	tokenUsername string
	tokenTTL      time.Duration
	tokenIssuer   string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a session token signed with SESSION_SECRET",
	Long: `Prints a session token usable as the sid cookie or as a Bearer token.
The secret is read from SESSION_SECRET, loading .env when present.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		secret := os.Getenv("SESSION_SECRET")
		if secret == "" {
			return errors.New("SESSION_SECRET is not set")
		}

		name := service.NormalizeUsername(tokenUsername, 24)
		token, expiresAt, err := jwt.GenerateSessionToken(name, secret, tokenIssuer, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "user %q, expires %s\n", name, expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUsername, "username", "u", "", "identity carried by the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 8*time.Hour, "token lifetime")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "privchat", "token issuer")
	rootCmd.AddCommand(tokenCmd)
}
