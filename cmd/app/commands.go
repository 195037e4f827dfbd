package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/wellbeing/internal"
	"github.com/starford/wellbeing/internal/codec"
	"github.com/starford/wellbeing/internal/storage"
)

// openCore loads the config and opens the database for a one-shot command.
// Logs go to stderr so stdout carries only the command's output.
func openCore(ctx context.Context, cmd *cli.Command) (*internal.Core, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Open(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr),
	)
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write every entry to wellbeing-data-<date>.json (or .xlsx) in the exports directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Usage: "Directory to write to (default: exports.path from config)",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "json or xlsx",
				Value: "json",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format := cmd.String("format")
			if format != "json" && format != "xlsx" {
				return fmt.Errorf("unknown format %q (json or xlsx)", format)
			}

			core, err := openCore(ctx, cmd)
			if err != nil {
				return err
			}
			defer core.Close()

			dir := cmd.String("out")
			if dir == "" {
				dir = core.Config.Exports.Path
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create exports dir: %w", err)
			}
			files, err := storage.NewFS(dir)
			if err != nil {
				return err
			}

			var data []byte
			if format == "xlsx" {
				data, err = core.Entries.ExportXLSX(ctx)
			} else {
				data, err = core.Entries.ExportData(ctx)
			}
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			name := codec.ExportFilename(time.Now(), format)
			if err := files.Write(name, data); err != nil {
				return err
			}
			abs, _ := files.Abs(name)
			fmt.Println(abs)
			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a JSON export; all-or-nothing",
		ArgsUsage: "FILE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return errors.New("import: FILE is required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			core, err := openCore(ctx, cmd)
			if err != nil {
				return err
			}
			defer core.Close()

			res := core.Entries.ImportData(ctx, data)
			if !res.Success {
				return fmt.Errorf("import: %w", res.Err())
			}
			fmt.Printf("imported %d entries\n", res.Count)
			return nil
		},
	}
}

func clearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every entry. This cannot be undone",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "Confirm deletion",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !cmd.Bool("yes") {
				return errors.New("clear: refusing to delete every entry without --yes")
			}
			core, err := openCore(ctx, cmd)
			if err != nil {
				return err
			}
			defer core.Close()

			res := core.Entries.ClearAll(ctx)
			if !res.Success {
				return fmt.Errorf("clear: %w", res.Err())
			}
			fmt.Printf("deleted %d entries\n", res.Count)
			return nil
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the MCP tools on stdin/stdout",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return internal.ServeMCP(ctx,
				internal.WithConfig(cfg),
				internal.WithVersion(version),
				internal.WithLogOutput(os.Stderr),
			)
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations and print the schema version",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			core, err := openCore(ctx, cmd)
			if err != nil {
				return err
			}
			defer core.Close()

			v, err := core.DB.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("schema version %d\n", v)
			return nil
		},
	}
}
