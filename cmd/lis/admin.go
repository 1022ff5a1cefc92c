package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learnerinfo/lis/internal/manifest"
	"github.com/learnerinfo/lis/pkg/types"
)

func catalogCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the file-version catalog",
	}
	cmd.AddCommand(catalogCheckCmd(opts))
	cmd.AddCommand(catalogLogCmd(opts))
	return cmd
}

func catalogCheckCmd(opts *globalOptions) *cobra.Command {
	var sync bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the catalog with the enrollment files in storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Catalog() == nil {
				return fmt.Errorf("catalog is disabled")
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if sync {
				n, err := manifest.Sync(ctx, a.Catalog(), a.Storage(), a.Layout())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "recorded %d files\n", n)
			}

			report, err := manifest.Reconcile(ctx, a.Catalog(), a.Storage(), a.Layout())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d catalog entries, %d enrollment files\n", report.TotalCatalogEntries, report.TotalStorageObjects)
			if !report.HasIssues() {
				fmt.Fprintln(out, good.Sprint("catalog is consistent"))
				return nil
			}
			for _, key := range report.Untracked {
				fmt.Fprintf(out, "%s %s\n", warn.Sprint("untracked"), key)
			}
			for _, fv := range report.Stale {
				fmt.Fprintf(out, "%s %s (version %d)\n", warn.Sprint("stale    "), fv.ObjectPath, fv.Version)
			}
			for _, fv := range report.Dangling {
				fmt.Fprintf(out, "%s %s\n", warn.Sprint("dangling "), fv.ObjectPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "Record untracked and stale files before reporting")
	return cmd
}

func catalogLogCmd(opts *globalOptions) *cobra.Command {
	var (
		year  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent submissions and uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Catalog() == nil {
				return fmt.Errorf("catalog is disabled")
			}

			subs, err := a.Catalog().ListSubmissions(cmd.Context(), year, limit)
			if err != nil {
				return err
			}
			for _, s := range subs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %-6s %-9s school=%s %s +%d -> %d\n",
					dim.Sprint(s.CreatedAt.Format("2006-01-02 15:04:05")), s.Year, s.Kind, shortID(s.ID),
					s.SchoolID, s.Column, s.Delta, s.NewValue)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "Only this school year")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries")
	return cmd
}

func snapshotCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "List or restore copies of replaced enrollment files",
	}
	cmd.AddCommand(snapshotListCmd(opts))
	cmd.AddCommand(snapshotRestoreCmd(opts))
	return cmd
}

func snapshotListCmd(opts *globalOptions) *cobra.Command {
	var year string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots of a year, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sy, err := types.ParseSchoolYear(year)
			if err != nil {
				return err
			}
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			infos, err := a.Snapshots().List(cmd.Context(), sy)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", info.TakenAt.Format("2006-01-02 15:04:05"), info.Key)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "School year (YYYY-YYYY)")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func snapshotRestoreCmd(opts *globalOptions) *cobra.Command {
	var year string

	cmd := &cobra.Command{
		Use:   "restore KEY",
		Short: "Replace a year's file with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Writer().RestoreSnapshot(cmd.Context(), year, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s from %s (%d rows)\n", good.Sprint("restored"), res.Year, args[0], res.Rows)
			if res.SnapshotKey != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  replaced file saved as %s\n", res.SnapshotKey)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "School year (YYYY-YYYY)")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
