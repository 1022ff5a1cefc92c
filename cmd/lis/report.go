package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/learnerinfo/lis/internal/aggregator"
	"github.com/learnerinfo/lis/internal/resolver"
)

var (
	heading = color.New(color.Bold, color.FgCyan)
	dim     = color.New(color.FgHiBlack)
	good    = color.New(color.FgGreen)
	warn    = color.New(color.FgYellow)
)

func yearsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "years",
		Short: "List the school years that have an enrollment file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			years, err := a.Registry().GetAvailableSchoolYears(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(years) == 0 {
				fmt.Fprintln(out, warn.Sprint("no enrollment files"))
				return nil
			}
			for _, y := range years {
				fmt.Fprintln(out, y)
			}
			return nil
		},
	}
}

// filterFlags are the dashboard filter flags.
type filterFlags struct {
	year    string
	regions []string
	grades  []string
	gender  string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.year, "year", "", "School year (YYYY-YYYY)")
	cmd.Flags().StringSliceVar(&f.regions, "region", nil, "Region filter (repeatable)")
	cmd.Flags().StringSliceVar(&f.grades, "grade", nil, "Grade filter, e.g. G7 or K (repeatable)")
	cmd.Flags().StringVar(&f.gender, "gender", "", "Gender filter: Male, Female or All")
	_ = cmd.MarkFlagRequired("year")
}

func (f *filterFlags) filter() (resolver.Filter, error) {
	return resolver.ParseFilter(f.regions, f.grades, f.gender)
}

func reportCmd(opts *globalOptions) *cobra.Command {
	var (
		flags  filterFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the enrollment dashboard for a school year",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.Engine().Dashboard(cmd.Context(), flags.year, filter)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			printDashboard(cmd.OutOrStdout(), d)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the dashboard as JSON")
	return cmd
}

func printDashboard(out io.Writer, d *aggregator.Dashboard) {
	heading.Fprintf(out, "Enrollment %s\n", d.Year)
	if d.NoData {
		fmt.Fprintln(out, warn.Sprint("no enrollment file for this year"))
		return
	}

	k := d.KPIs
	fmt.Fprintf(out, "Total enrolled:    %d\n", k.TotalEnrolled)
	fmt.Fprintf(out, "Schools:           %d\n", k.TotalSchools)
	fmt.Fprintf(out, "Top region:        %s (%d)\n", k.MostEnrolledRegion, k.MostEnrolledRegionTotal)
	fmt.Fprintf(out, "Top division:      %s (%d)\n", k.MostEnrolledDivision, k.MostEnrolledDivisionTotal)
	for _, s := range k.SectorRatio {
		fmt.Fprintf(out, "  %-10s %5d schools %6.2f%%\n", s.Sector, s.Schools, s.Percent)
	}

	if d.Gender.Empty {
		fmt.Fprintf(out, "Gender:            %s\n", dim.Sprint("no data"))
	} else {
		fmt.Fprintf(out, "Gender:            %d male, %d female\n", d.Gender.Male, d.Gender.Female)
	}

	heading.Fprintln(out, "\nRegions")
	for _, r := range d.Regional {
		fmt.Fprintf(out, "  %-12s %10d\n", r.Region, r.Total)
	}

	heading.Fprintln(out, "\nTop divisions")
	for i, div := range d.Divisions {
		fmt.Fprintf(out, "  %2d. %-24s %-10s %4d schools %10d\n", i+1, div.Division, div.Region, div.Schools, div.Total)
	}

	heading.Fprintln(out, "\nLevels")
	for _, l := range d.Levels {
		fmt.Fprintf(out, "  %-10s %8d male %8d female %10d\n", l.Label, l.Male, l.Female, l.Enrollment)
	}

	heading.Fprintln(out, "\nNon-graded learners")
	if d.NonGraded.Empty {
		fmt.Fprintln(out, dim.Sprint("  no data"))
	}
	for _, r := range d.NonGraded.ByRegion {
		fmt.Fprintf(out, "  %-12s %6d elem %6d jhs %8d\n", r.Region, r.ElemNG, r.JHSNG, r.Total)
	}

	heading.Fprintln(out, "\nSHS tracks")
	if d.Tracks.Empty {
		fmt.Fprintln(out, dim.Sprint("  no data"))
	}
	for _, t := range d.Tracks.Tracks {
		fmt.Fprintf(out, "  %-16s %-4s %10d\n", t.Track, t.Grade, t.Total)
	}

	fmt.Fprintln(out)
	printTransition(out, d.Transition)

	heading.Fprintln(out, "\nTrend")
	for _, p := range d.Trend {
		fmt.Fprintf(out, "  %s %10d\n", p.Year, p.Total)
	}
}

func printTransition(out io.Writer, t aggregator.Transition) {
	heading.Fprintf(out, "Transition %s -> %s\n", t.PreviousYear, t.Year)
	if t.NoCurrentYearData {
		fmt.Fprintln(out, warn.Sprint("  no data for this year"))
		return
	}
	if t.NoPriorYearData {
		fmt.Fprintln(out, warn.Sprint("  no data for the prior year"))
		return
	}
	fmt.Fprintf(out, "  G6 -> G7:   %s (%d -> %d)\n", good.Sprintf("%6.2f%%", t.G6ToG7), t.G6Previous, t.G7Current)
	fmt.Fprintf(out, "  G10 -> G11: %s (%d -> %d)\n", good.Sprintf("%6.2f%%", t.G10ToG11), t.G10Previous, t.G11Current)
}

func transitionCmd(opts *globalOptions) *cobra.Command {
	var flags filterFlags

	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Print G6->G7 and G10->G11 transition rates for a school year",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.Engine().Transition(cmd.Context(), flags.year, filter)
			if err != nil {
				return err
			}
			printTransition(cmd.OutOrStdout(), t)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func schoolCmd(opts *globalOptions) *cobra.Command {
	var id, year, query string

	cmd := &cobra.Command{
		Use:   "school",
		Short: "Search the registry or show one school",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if id == "" {
				schools, err := a.Registry().Search(ctx, query, 0)
				if err != nil {
					return err
				}
				for _, s := range schools {
					fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", s.ID, s.Name, s.Region, s.Division)
				}
				return nil
			}

			s, err := a.Registry().GetSchoolByID(ctx, id)
			if err != nil {
				return err
			}
			heading.Fprintf(out, "%s %s\n", s.ID, s.Name)
			fmt.Fprintf(out, "  %s / %s / %s\n", s.Region, s.Division, s.Barangay)
			fmt.Fprintf(out, "  %s, %s\n", s.Sector, s.ModifiedCOC)
			if year == "" {
				return nil
			}
			sum, err := a.Engine().School(ctx, year, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s: %d male, %d female, %d total\n", year, sum.TotalMale, sum.TotalFemale, sum.TotalEnrollment)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "BEIS school ID")
	cmd.Flags().StringVar(&year, "year", "", "School year for the enrollment summary")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search by name or ID")
	return cmd
}
