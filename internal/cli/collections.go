package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCollectionsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Manage collections",
	}
	cmd.AddCommand(newCollectionsImportCommand(a), newCollectionsListCommand(a))
	return cmd
}

func newCollectionsImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <collections.yaml>",
		Short: "Create the collections defined in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collections, err := loadCollectionsFile(args[0])
			if err != nil {
				return err
			}

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

			for _, c := range collections {
				if err := store.CreateCollection(cmd.Context(), c); err != nil {
					return fmt.Errorf("collection %s: %w", c.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created collection %s (%d fields)\n", c.Name, len(c.Fields))
			}
			return nil
		},
	}
}

func newCollectionsListCommand(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the registered collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			w := cmd.OutOrStdout()
			collections := store.Collections()
			if ParseOutputFormat(format) == FormatJSON {
				PrintJSON(w, collections)
				return nil
			}
			for _, c := range collections {
				printHeading(w, c.Name)
				for _, f := range c.Fields {
					keyColor.Fprintf(w, "  %s", f.Name)
					fmt.Fprintf(w, " %s", f.Type)
					if f.Hidden {
						fmt.Fprint(w, " (hidden)")
					}
					fmt.Fprintln(w)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(FormatPretty), "output format: pretty|json")
	return cmd
}
