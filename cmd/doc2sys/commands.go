package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/doc2sys/internal/adapters/mcp"
	"github.com/kirillkom/doc2sys/internal/bootstrap"
	"github.com/kirillkom/doc2sys/internal/core/domain"
)

func newExtractCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the text of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				text, err := app.Analyzer.ExtractFile(ctx, flags.userID, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
				return err
			})
		},
	}
}

func newClassifyCmd(flags *rootFlags) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "classify [file|-]",
		Short: "Classify a document or text into a configured document type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				input, err := inputText(ctx, cmd, app, flags.userID, text, args)
				if err != nil {
					return err
				}
				res, err := app.Analyzer.ClassifyText(ctx, flags.userID, input)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "classify this text instead of a file")
	return cmd
}

func newFieldsCmd(flags *rootFlags) *cobra.Command {
	var (
		text    string
		docType string
	)
	cmd := &cobra.Command{
		Use:   "fields --type <document type> [file|-]",
		Short: "Extract structured fields for a document type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				input, err := inputText(ctx, cmd, app, flags.userID, text, args)
				if err != nil {
					return err
				}
				res, err := app.Analyzer.ExtractFieldsFromText(ctx, flags.userID, input, docType)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "extract from this text instead of a file")
	cmd.Flags().StringVar(&docType, "type", "", "document type name, e.g. Invoice")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

var stageNames = []string{"all", "extract-text", "classify", "extract-fields", "integrations"}

func newProcessCmd(flags *rootFlags) *cobra.Command {
	var (
		documentID string
		stage      string
	)
	cmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Store a document and run the pipeline on it, or re-run a stage with --id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (documentID == "") == (len(args) == 0) {
				return errors.New("pass either a file or --id")
			}
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				id := documentID
				if id == "" {
					doc, err := uploadFile(ctx, app, flags.userID, args[0])
					if err != nil {
						return err
					}
					id = doc.ID
				}
				res, err := runStage(ctx, app, stage, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&documentID, "id", "", "existing document id")
	cmd.Flags().StringVar(&stage, "stage", "all", "stage to run: "+strings.Join(stageNames, ", "))
	return cmd
}

func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve extract_text, classify_text and extract_fields as MCP tools on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(_ context.Context, app *bootstrap.App) error {
				return mcpadapter.NewServer(app.Analyzer, flags.userID, app.Logger).ServeStdio()
			})
		},
	}
}

func withApp(cmd *cobra.Command, flags *rootFlags, fn func(context.Context, *bootstrap.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx, cmd, flags)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

// inputText resolves --text, "-" (stdin) or a file path run through extraction.
func inputText(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, userID, text string, args []string) (string, error) {
	switch {
	case text != "":
		return text, nil
	case len(args) == 0:
		return "", errors.New("pass a file, - for stdin, or --text")
	case args[0] == "-":
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(raw), nil
	default:
		return app.Analyzer.ExtractFile(ctx, userID, args[0])
	}
}

func uploadFile(ctx context.Context, app *bootstrap.App, userID, path string) (*domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return app.IngestUC.Upload(ctx, userID, filepath.Base(path), mimeType, f)
}

func runStage(ctx context.Context, app *bootstrap.App, stage, id string) (domain.StageResult, error) {
	p := app.Pipeline
	switch stage {
	case "all", "":
		return p.ProcessAll(ctx, id)
	case "extract-text":
		return p.ExtractText(ctx, id)
	case "classify":
		return p.Classify(ctx, id)
	case "extract-fields":
		return p.ExtractFields(ctx, id)
	case "integrations":
		return p.TriggerIntegrations(ctx, id)
	default:
		return domain.StageResult{}, fmt.Errorf("unknown stage %q (want one of %s)", stage, strings.Join(stageNames, ", "))
	}
}
