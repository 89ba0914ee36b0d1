package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonathan/company-brochure/internal/observability"
)

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Suggest the pages a brochure would be built from",
	Long:  `Fetches the landing page and prints the links selection would pick, without generating a brochure.`,
	RunE:  runLinks,
}

var (
	linksCompany string
	linksURL     string
)

func init() {
	linksCmd.Flags().StringVarP(&linksCompany, "company", "c", "", "Company name (improves selection)")
	linksCmd.Flags().StringVarP(&linksURL, "url", "u", "", "Company landing page URL")
	_ = linksCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(linksCmd)
}

func runLinks(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	selection, err := a.engine.SuggestLinks(ctx, linksURL, linksCompany)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintLinkSelection(linksCompany, selection)
	return nil
}
