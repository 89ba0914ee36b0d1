package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/jonathan/company-brochure/internal/server"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Long:  `Signs a bearer token for an API client with JWT_SECRET. The server requires one when JWT_SECRET is set.`,
	RunE:  runToken,
}

var tokenSubject string

func init() {
	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "", "Client name to put in the token subject")
	_ = tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.JWT.Enabled() {
		return eris.New("JWT_SECRET is not set")
	}

	token, err := server.NewJWTService(cfg.JWT).GenerateToken(tokenSubject)
	if err != nil {
		return eris.Wrap(err, "failed to issue token")
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
