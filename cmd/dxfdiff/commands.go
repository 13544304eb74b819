package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/rpattn/dxfdiff/internal/artifacts"
	"github.com/rpattn/dxfdiff/internal/comparison"
	"github.com/rpattn/dxfdiff/internal/config"
	"github.com/rpattn/dxfdiff/internal/domain"
	"github.com/rpattn/dxfdiff/internal/pairing"
	"github.com/rpattn/dxfdiff/internal/registry"
	"github.com/rpattn/dxfdiff/internal/report"
)

func optionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.FloatFlag{Name: "tolerance", Usage: "coordinate tolerance in drawing units"},
		&cli.IntFlag{Name: "deleted-color", Usage: "ACI color of deleted entities (1-7)"},
		&cli.IntFlag{Name: "added-color", Usage: "ACI color of added entities (1-7)"},
		&cli.IntFlag{Name: "unchanged-color", Usage: "ACI color of unchanged entities (1-7)"},
		&cli.FloatFlag{Name: "offset-x", Usage: "X offset applied to the source drawing"},
		&cli.FloatFlag{Name: "offset-y", Usage: "Y offset applied to the source drawing"},
		&cli.StringSliceFlag{Name: "prefix", Usage: "report unchanged labels starting with this prefix"},
	}
}

// loadOptions reads the configuration and applies the command line overrides.
func loadOptions(c *cli.Command) (config.Config, comparison.Options, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, comparison.Options{}, err
	}
	if c.IsSet("tolerance") {
		cfg.Compare.Tolerance = c.Float("tolerance")
	}
	if c.IsSet("deleted-color") {
		cfg.Compare.DeletedColor = c.Int("deleted-color")
	}
	if c.IsSet("added-color") {
		cfg.Compare.AddedColor = c.Int("added-color")
	}
	if c.IsSet("unchanged-color") {
		cfg.Compare.UnchangedColor = c.Int("unchanged-color")
	}
	if c.IsSet("offset-x") {
		cfg.Compare.OffsetX = c.Float("offset-x")
	}
	if c.IsSet("offset-y") {
		cfg.Compare.OffsetY = c.Float("offset-y")
	}
	if c.IsSet("prefix") {
		cfg.Compare.UnchangedPrefixes = c.StringSlice("prefix")
	}
	opts := cfg.ComparisonOptions()
	return cfg, opts, opts.Validate()
}

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "Compare a new drawing against its source drawing",
		ArgsUsage: "NEW.dxf SOURCE.dxf",
		Flags: append(optionFlags(),
			&cli.StringFlag{Name: "out", Value: ".", Usage: "directory for the merged drawing"},
			&cli.BoolFlag{Name: "json", Usage: "output the full result as JSON"},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 2 {
				return errors.New("compare needs a new and a source drawing")
			}
			_, opts, err := loadOptions(c)
			if err != nil {
				return err
			}
			store, err := artifacts.NewFileStore(c.String("out"))
			if err != nil {
				return err
			}
			service := comparison.NewService(comparison.WithStore(store))

			newPath, sourcePath := c.Args().Get(0), c.Args().Get(1)
			newInfo, err := service.Inspect(ctx, "", newPath, opts.Extract)
			if err != nil {
				return fmt.Errorf("new drawing: %w", err)
			}
			sourceInfo, err := service.Inspect(ctx, "", sourcePath, opts.Extract)
			if err != nil {
				return fmt.Errorf("source drawing: %w", err)
			}
			relation := domain.RelationRevisionUp
			if newInfo.SourceID != "" && newInfo.SourceID == sourceInfo.ID {
				relation = domain.RelationDerivedFrom
			}
			result := service.Compare(ctx, pairing.Pair{
				NewID:    newInfo.ID,
				SourceID: sourceInfo.ID,
				Relation: relation,
				Status:   pairing.StatusComplete,
				New:      &newInfo,
				Source:   &sourceInfo,
			}, opts)

			if c.Bool("json") {
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				printResult(result)
			}
			if !result.Success {
				return errors.New(result.Error)
			}
			return nil
		},
	}
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Read drawing number, source drawing number, title and subtitle",
		ArgsUsage: "FILE.dxf...",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return errors.New("extract needs at least one drawing")
			}
			_, opts, err := loadOptions(c)
			if err != nil {
				return err
			}
			service := comparison.NewService()
			infos := make([]pairing.FileInfo, 0, c.Args().Len())
			for _, path := range c.Args().Slice() {
				info, err := service.Inspect(ctx, "", path, opts.Extract)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				infos = append(infos, info)
			}
			return printJSON(infos)
		},
	}
}

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Pair drawings by their title blocks, compare every complete pair and write a ZIP archive",
		ArgsUsage: "FILE.dxf...",
		Flags: append(optionFlags(),
			&cli.StringFlag{Name: "out", Value: "dxf_diff_results.zip", Usage: "archive to write"},
			&cli.StringFlag{Name: "registry", Usage: "Parent-Child workbook to update and include"},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return errors.New("batch needs at least one drawing")
			}
			cfg, opts, err := loadOptions(c)
			if err != nil {
				return err
			}

			serviceOpts := []comparison.Option{comparison.WithWorkers(cfg.Compare.Workers)}
			registryPath := c.String("registry")
			if registryPath == "" {
				registryPath = cfg.Registry.Path
			}
			var workbook *registry.Workbook
			if registryPath != "" {
				workbook, err = registry.OpenWorkbook(registryPath)
				if err != nil {
					return err
				}
				serviceOpts = append(serviceOpts, comparison.WithRegistry(workbook))
			}
			service := comparison.NewService(serviceOpts...)

			uploads := make([]comparison.Upload, 0, c.Args().Len())
			for _, path := range c.Args().Slice() {
				uploads = append(uploads, comparison.Upload{Filename: filepath.Base(path), Path: path})
			}
			result, err := service.Batch(ctx, uploads, opts)
			if err != nil {
				return err
			}
			printPairs(result)

			archive := report.ArchiveOptions{Colors: opts.Diff.Colors}
			if workbook != nil {
				if err := workbook.SaveFile(registryPath); err != nil {
					return err
				}
				archive.Registry = workbook
			}
			out, err := os.Create(c.String("out"))
			if err != nil {
				return err
			}
			if err := report.WriteArchive(out, result.Results, archive); err != nil {
				_ = out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", c.String("out"))
			return nil
		},
	}
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printResult(result domain.ComparisonResult) {
	if !result.Success {
		fmt.Printf("%s: failed: %s\n", result.PairName(), result.Error)
		return
	}
	c := result.Counts
	fmt.Printf("%s\n", result.PairName())
	fmt.Printf("  deleted %d  added %d  diff %d  unchanged %d  total %d\n", c.Deleted, c.Added, c.Diff, c.Unchanged, c.Total)
	fmt.Printf("  changed labels %d\n", len(result.ChangedLabels))
	fmt.Printf("  output %s\n", result.OutputLocation)
}

func printPairs(result comparison.BatchResult) {
	for _, skipped := range result.Skipped {
		fmt.Printf("skipped %s: %s\n", skipped.Filename, skipped.Error)
	}
	for _, pair := range result.Pairs {
		source := pair.SourceID
		if source == "" {
			source = "-"
		}
		fmt.Printf("%-20s %-20s %-13s %s\n", pair.NewID, source, pair.Relation, pair.Status)
	}
	var failed []string
	for _, r := range result.Results {
		printResult(r)
		if !r.Success {
			failed = append(failed, r.PairName())
		}
	}
	if len(failed) > 0 {
		fmt.Printf("%d pair(s) failed: %s\n", len(failed), strings.Join(failed, ", "))
	}
}
