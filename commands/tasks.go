// commands/tasks.go
package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gewnthar/registers/database"
	"github.com/gewnthar/registers/services"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), true)
			if err != nil {
				return err
			}
			database.Close(db)
			fmt.Println(color.New(color.FgGreen).Sprint("✓"), "database is up to date")
			return nil
		},
	}
}

func loadSpecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load-spec <dataset>...",
		Short: "Load dataset schemas from the specification",
		Long: `Fetch each dataset's markdown from the specification, with its fields,
and save the dataset schema. Existing datasets are updated in place.

Examples:
  registers load-spec tree
  registers load-spec tree tree-preservation-zone`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx, false)
			if err != nil {
				return err
			}
			defer database.Close(db)
			svc, err := newService(ctx, db)
			if err != nil {
				return err
			}

			loaded, err := svc.LoadSpecification(ctx, args...)
			fmt.Printf("Loaded %s of %d dataset(s)\n", color.New(color.FgGreen).Sprint(loaded), len(args))
			return err
		},
	}
}

func pushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push [dataset...]",
		Short: "Push changed register CSVs to GitHub",
		Long: `Export each dataset, every dataset when none are named, and commit the CSV
to the configured GitHub repository when it differs from the copy there.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx, false)
			if err != nil {
				return err
			}
			defer database.Close(db)
			svc, err := newService(ctx, db)
			if err != nil {
				return err
			}

			results, err := svc.Push(ctx, args...)
			if err != nil {
				return err
			}
			failed := printPushResults(os.Stdout, results)
			if failed > 0 {
				return fmt.Errorf("%d dataset(s) failed to push", failed)
			}
			return nil
		},
	}
}

func printPushResults(out io.Writer, results []services.PushResult) int {
	failed := 0
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, r := range results {
		detail := r.Path
		if r.Err != nil {
			failed++
			detail = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%d change(s)\t%s\n", pushStatus(r.Status), r.Dataset, r.Changes, detail)
	}
	w.Flush()
	return failed
}

func pushStatus(status services.PushStatus) string {
	switch status {
	case services.PushUpdated:
		return color.New(color.FgGreen).Sprint("UPDATED  ")
	case services.PushUnchanged:
		return color.New(color.FgBlue).Sprint("UNCHANGED")
	default:
		return color.New(color.FgRed).Sprint("FAILED   ")
	}
}
