package ctl

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newReportCommand(opts *rootOptions) *cobra.Command {
	cmd := groupCommand("report", "Hardware report operations")
	cmd.AddCommand(newReportSubmitCommand(opts))
	return cmd
}

func newReportSubmitCommand(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a hardware report from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := readReport(file)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			res, err := c.SubmitReport(cmd.Context(), report)
			if err != nil {
				return err
			}
			fprintf(opts.out, "%s\t%s\tstaged=%t", res.SN, res.Disposition, res.Staged)
			if res.Refresh {
				fprintf(opts.out, "\trefresh")
			}
			if res.AssetID != nil {
				fprintf(opts.out, "\tasset=%s", res.AssetID)
			}
			fprintf(opts.out, "\n")
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Report document, - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readReport accepts JSON as well as YAML since JSON is valid YAML.
func readReport(path string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	var report map[string]any
	if err := yaml.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	if report == nil {
		return nil, fmt.Errorf("report %s is empty", path)
	}
	return report, nil
}
