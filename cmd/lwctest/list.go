package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specvital/lwctest/pkg/domain"
)

func newListCmd(flags *rootFlags) *cobra.Command {
	var (
		cases  bool
		asJSON bool
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered test files",
		Long:  "Scan the workspace for LWC Jest test files and optionally parse their test cases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			files, err := a.index.FindAll(ctx)
			if err != nil {
				return err
			}

			if cases {
				stats, err := a.index.Warm(ctx)
				if err != nil {
					return err
				}
				a.logger.Debug("Parsed test files", "parsed", stats.Parsed, "failed", stats.Failed)
				if files, err = a.index.FindAll(ctx); err != nil {
					return err
				}
			}

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(files)
			}

			total := 0
			for _, f := range files {
				if !cases {
					f.TestCases = nil
				}
				printFile(a.out, a.cfg.Workspace, f, nil)
				total += len(f.TestCases)
			}
			summary := fmt.Sprintf("%d test files", len(files))
			if cases {
				summary += fmt.Sprintf(", %d test cases", total)
			}
			fmt.Fprintln(a.out, dimColor.Sprint(summary))
			return nil
		},
	}

	listCmd.Flags().BoolVarP(&cases, "cases", "c", false, "Parse files and list their test cases")
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Print the index as JSON")
	return listCmd
}

// filesUnder returns the files below dir that a result document mentioned.
func filesUnder(files []domain.TestFileInfo, dir string) []domain.TestFileInfo {
	var out []domain.TestFileInfo
	for _, f := range files {
		if f.LastResultStatus != nil && within(dir, f.Path) {
			out = append(out, f)
		}
	}
	return out
}
