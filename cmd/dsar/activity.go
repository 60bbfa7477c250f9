package main

import (
	"fmt"
	"math"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dsar/internal/activity"
	"dsar/internal/activity/store/jsonl"
	"dsar/internal/platform/config"
	"dsar/pkg/platform/sentinel"
)

func newActivityCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Inspect or migrate the processing activity log",
	}
	cmd.AddCommand(newActivityShowCmd(flags), newActivityImportCmd(flags))
	return cmd
}

func newActivityShowCmd(flags *rootFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a data subject's activity trail and summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(a *app) error {
				ctx := cmd.Context()
				events, err := a.activity.List(ctx, name)
				if err != nil {
					return err
				}
				summary := activity.Summarize(events, name)
				if a.jsonOut {
					return writeJSON(a.out, struct {
						Events  []activity.Event `json:"events"`
						Summary activity.Summary `json:"summary"`
					}{events, summary})
				}

				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tEVENT\tVENDOR\tRECORDS\tERROR")
				for _, e := range events {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
						e.Timestamp.UTC().Format(time.DateTime), e.Type, e.Vendor, e.Records, e.Error)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "\nvendors processed: %v\nvendors failed: %v\ntotal records: %d\n",
					summary.VendorsProcessed, summary.VendorsFailed, summary.TotalRecords)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "data subject's full name (required)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// newActivityImportCmd moves a JSONL trail into the configured backend, for
// deployments that start on the default file and later switch to postgres or
// redis.
func newActivityImportCmd(flags *rootFlags) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a dsar_activity.jsonl trail into the configured backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(a *app) error {
				if err := sameTrail(a.cfg, from); err != nil {
					return err
				}
				src, err := jsonl.New(from)
				if err != nil {
					return err
				}
				events, err := src.ListRecent(cmd.Context(), math.MaxInt)
				if err != nil {
					return err
				}
				if err := a.activity.Import(cmd.Context(), events); err != nil {
					return fmt.Errorf("import activity: %w", err)
				}
				a.logger.InfoContext(cmd.Context(), "activity imported",
					"events", len(events),
					"from", src.Path(),
					"backend", a.cfg.Activity.Backend,
				)
				fmt.Fprintf(a.out, "imported %d events from %s\n", len(events), src.Path())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "directory holding dsar_activity.jsonl (required)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

// sameTrail refuses to import a JSONL trail into itself.
func sameTrail(cfg *config.Config, from string) error {
	if cfg.Activity.Backend != config.BackendJSONL && cfg.Activity.Backend != "" {
		return nil
	}
	src, err := filepath.Abs(from)
	if err != nil {
		return err
	}
	dst, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return err
	}
	if src == dst {
		return fmt.Errorf("%s is already the active trail: %w", src, sentinel.ErrInvalidInput)
	}
	return nil
}
