package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/ops"
)

func newRecordsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Query and delete records with superuser access",
	}
	cmd.AddCommand(newRecordsListCommand(a), newRecordsDeleteCommand(a))
	return cmd
}

func newRecordsListCommand(a *app) *cobra.Command {
	var (
		params ops.SearchParams
		format string
	)

	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "List the records matching a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, restore, err := a.load(cmd)
			if err != nil {
				return err
			}
			defer restore()

			store, err := openStore(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := store.ListRecords(cmd.Context(), args[0], params, &models.RequestInfo{Superuser: true})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			items := make([]map[string]any, 0, len(result.Items))
			for _, r := range result.Items {
				items = append(items, r.Data)
			}
			if ParseOutputFormat(format) == FormatJSON {
				PrintJSON(w, ops.SearchResult{
					Page:       result.Page,
					PerPage:    result.PerPage,
					TotalItems: result.TotalItems,
					TotalPages: result.TotalPages,
					Items:      items,
				})
				return nil
			}

			for _, item := range items {
				PrintJSON(w, item)
			}
			fmt.Fprintf(w, "\n--- page %d of %d, %d records ---\n", result.Page, result.TotalPages, result.TotalItems)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&params.Filter, "filter", "w", "", "filter expression")
	fs.StringVarP(&params.Sort, "sort", "s", "", "sort expression")
	fs.IntVar(&params.Page, "page", 1, "page number")
	fs.IntVar(&params.PerPage, "per-page", ops.DefaultPerPage, "records per page")
	fs.BoolVar(&params.SkipTotal, "skip-total", false, "skip counting the matching records")
	fs.StringVar(&format, "format", string(FormatPretty), "output format: pretty|json")
	return cmd
}

func newRecordsDeleteCommand(a *app) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "delete <collection>",
		Short: "Delete every record matching a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, restore, err := a.load(cmd)
			if err != nil {
				return err
			}
			defer restore()

			store, err := openStore(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.DeleteWhere(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d records\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "w", "", "filter expression")
	_ = cmd.MarkFlagRequired("filter")
	return cmd
}
