package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/learnerinfo/lis/internal/aggregator"
	"github.com/learnerinfo/lis/internal/entry"
	"github.com/learnerinfo/lis/internal/tabular"
)

func submitCmd(opts *globalOptions) *cobra.Command {
	var sub entry.Submission

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Add a head count to one school's enrollment cell",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Writer().SubmitEnrollment(cmd.Context(), sub)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			verb := "updated"
			if res.RowCreated {
				verb = "created"
			}
			fmt.Fprintf(out, "%s %s row for school %s\n", good.Sprint(verb), res.Year, res.SchoolID)
			fmt.Fprintf(out, "  %s: %d -> %d\n", res.Column, res.Previous, res.Value)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub.SchoolName, "school", "", "Registered school name (exact)")
	cmd.Flags().StringVar(&sub.Year, "year", "", "School year (YYYY-YYYY)")
	cmd.Flags().StringVar(&sub.Grade, "grade", "", "Grade code, e.g. K, G1, G11, Elem NG")
	cmd.Flags().StringVar(&sub.Gender, "gender", "", "Male or Female")
	cmd.Flags().Int64Var(&sub.Count, "count", 0, "Head count to add")
	cmd.Flags().StringVar(&sub.Strand, "strand", "", "SHS strand for G11 and G12, e.g. STEM")
	for _, name := range []string{"school", "year", "grade", "gender", "count"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func uploadCmd(opts *globalOptions) *cobra.Command {
	var year string

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Replace a year's enrollment file with a CSV or XLSX sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			tbl, err := tabular.Decode(args[0], data)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Writer().BulkUpload(cmd.Context(), year, tbl)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d rows for %s\n", good.Sprint("uploaded"), res.Rows, res.Year)
			if res.NewSchools > 0 {
				fmt.Fprintf(out, "  registered %d new schools\n", res.NewSchools)
			}
			if res.SnapshotKey != "" {
				fmt.Fprintf(out, "  previous file saved as %s\n", res.SnapshotKey)
			}
			if res.RegistryError != "" {
				fmt.Fprintf(out, "  %s %s\n", warn.Sprint("registry not updated:"), res.RegistryError)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "School year (YYYY-YYYY)")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func exportCmd(opts *globalOptions) *cobra.Command {
	var year, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the enrollment table for a year as CSV or XLSX",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.Engine().Table(cmd.Context(), year)
			if err != nil {
				return err
			}
			sheet := aggregator.TableSheet(rows)

			if output == "" || output == "-" {
				return sheet.WriteCSV(cmd.OutOrStdout())
			}
			var buf bytes.Buffer
			switch strings.ToLower(filepath.Ext(output)) {
			case ".xlsx":
				err = sheet.WriteXLSX(&buf, year)
			default:
				err = sheet.WriteCSV(&buf)
			}
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", len(rows), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "School year (YYYY-YYYY)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (.csv or .xlsx); stdout when empty")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}
