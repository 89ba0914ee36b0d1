package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/jonathan/company-brochure/internal/observability"
	"github.com/jonathan/company-brochure/internal/pipeline"
	"github.com/jonathan/company-brochure/internal/schemas"
	"github.com/jonathan/company-brochure/internal/types"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a brochure for a company website",
	Long: `Runs one generation session: fetches the landing page, selects and aggregates relevant pages,
then streams the brochure to stdout. Progress goes to stderr. Ctrl-C cancels the session.`,
	RunE: runGenerate,
}

var (
	genCompany      string
	genURL          string
	genModel        string
	genTone         string
	genTemperature  float64
	genMaxChars     int
	genInstructions string
	genOut          string
)

func init() {
	generateCmd.Flags().StringVarP(&genCompany, "company", "c", "", "Company name")
	generateCmd.Flags().StringVarP(&genURL, "url", "u", "", "Company landing page URL")
	generateCmd.Flags().StringVarP(&genModel, "model", "m", string(types.ModelOpenAI), "Model: openai or gemini")
	generateCmd.Flags().StringVarP(&genTone, "tone", "t", string(types.ToneProfessional), "Tone: professional, friendly, humorous, technical or executive")
	generateCmd.Flags().Float64Var(&genTemperature, "temperature", types.DefaultTemperature, "Sampling temperature between 0 and 1")
	generateCmd.Flags().IntVar(&genMaxChars, "max-chars", types.DefaultMaxContentChars, "Maximum characters of website content sent to the model")
	generateCmd.Flags().StringVar(&genInstructions, "instructions", "", "Additional instructions for the brochure")
	generateCmd.Flags().StringVarP(&genOut, "out", "o", "", "Write the brochure to this file (markdown, or the full artifact for .json)")

	_ = generateCmd.MarkFlagRequired("company")
	_ = generateCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(generateCmd)
}

// generateRequest builds the request from the command flags.
func generateRequest() types.GenerationRequest {
	return types.GenerationRequest{
		CompanyName:        genCompany,
		BaseURL:            genURL,
		Model:              types.Model(genModel),
		Tone:               types.Tone(genTone),
		CustomInstructions: genInstructions,
		Temperature:        genTemperature,
		MaxContentChars:    genMaxChars,
	}
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireProvider(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.engine.NewSession(generateRequest())
	if err != nil {
		return eris.Wrap(err, "invalid request")
	}

	outcome, err := session.Run(ctx, streamTo(cmd.OutOrStdout(), cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	if verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintOutcome(outcome)
	}
	if genOut != "" && outcome.Artifact != nil {
		if err := writeArtifact(genOut, outcome.Artifact); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Brochure written to %s\n", genOut)
	}
	if outcome.Status != pipeline.StateComplete {
		if outcome.Err != nil {
			return outcome.Err
		}
		return eris.Errorf("brochure generation ended %s", outcome.Status)
	}
	return nil
}

// writeArtifact writes the brochure markdown, or the whole artifact when path
// ends in .json. JSON artifacts are checked against the export schema.
func writeArtifact(path string, artifact *types.BrochureArtifact) error {
	data := []byte(artifact.Text)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		encoded, err := json.MarshalIndent(artifact, "", "  ")
		if err != nil {
			return eris.Wrap(err, "failed to encode brochure artifact")
		}
		if err := schemas.Validate(schemas.BrochureArtifact, string(encoded)); err != nil {
			return eris.Wrap(err, "brochure artifact does not match the export schema")
		}
		data = encoded
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// streamTo writes chunks to out and progress lines to progress.
func streamTo(out, progress io.Writer) pipeline.Emitter {
	return func(ev pipeline.Event) {
		switch ev.Kind {
		case pipeline.EventChunk:
			_, _ = io.WriteString(out, ev.Chunk)
		case pipeline.EventProgress:
			_, _ = fmt.Fprintf(progress, "[%s] %s\n", ev.Stage, ev.Message)
		case pipeline.EventTerminal:
			if ev.Outcome.Status != pipeline.StateComplete {
				_, _ = fmt.Fprintf(progress, "\n[%s] %s\n", ev.Stage, ev.Message)
			}
		}
	}
}
