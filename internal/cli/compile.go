package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/ops"
	"github.com/ministore/recordstore/recordstore/planner"
	"github.com/ministore/recordstore/recordstore/resolvers"
	"github.com/ministore/recordstore/recordstore/storage"
	"github.com/ministore/recordstore/recordstore/storage/sqlbuilder"
)

// collectionsFile is the YAML document read by compile and collections import.
type collectionsFile struct {
	Collections []*models.Collection `yaml:"collections"`
}

func loadCollectionsFile(path string) ([]*models.Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var doc collectionsFile
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for _, c := range doc.Collections {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return doc.Collections, nil
}

type compileOptions struct {
	collectionsPath string
	collection      string
	filter          string
	sort            string
	dialect         string
	hidden          bool
	maxExprLimit    int
	format          string
}

func newCompileCommand() *cobra.Command {
	var o compileOptions

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the SQL a filter and sort compile to",
		Long: `Compile a filter and sort against the collections of a YAML file and print
the generated statements and their bound parameters. No database is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompile(cmd, o)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&o.collectionsPath, "collections", "f", "", "YAML file with the collection definitions")
	fs.StringVar(&o.collection, "collection", "", "collection the filter runs against")
	fs.StringVarP(&o.filter, "filter", "w", "", "filter expression")
	fs.StringVarP(&o.sort, "sort", "s", "", "sort expression")
	fs.StringVar(&o.dialect, "dialect", string(storage.BackendSQLite), "SQL dialect: sqlite|postgres")
	fs.BoolVar(&o.hidden, "allow-hidden", false, "allow hidden fields, as rules do")
	fs.IntVar(&o.maxExprLimit, "max-expr-limit", planner.DefaultMaxExprLimit, "maximum comparisons per filter")
	fs.StringVar(&o.format, "format", string(FormatPretty), "output format: pretty|json")
	_ = cmd.MarkFlagRequired("collections")
	_ = cmd.MarkFlagRequired("collection")

	return cmd
}

func runCompile(cmd *cobra.Command, o compileOptions) error {
	backend := storage.Backend(o.dialect)
	if backend != storage.BackendSQLite && backend != storage.BackendPostgres {
		return fmt.Errorf("unknown dialect %q", o.dialect)
	}

	collections, err := loadCollectionsFile(o.collectionsPath)
	if err != nil {
		return err
	}
	provider := resolvers.StaticCollections(collections)
	base, err := provider.FindCollection(o.collection)
	if err != nil {
		return err
	}

	builder := sqlbuilder.New()
	resolver := resolvers.NewRecordFieldResolver(provider, base, nil, builder, backend, resolvers.WithAllowHiddenFields(o.hidden))
	plan, err := ops.NewProvider(backend, resolver, builder,
		ops.WithCompilerOptions(planner.WithMaxExprLimit(o.maxExprLimit)),
	).Build(base.TableName(), "", ops.SearchParams{
		Page:    1,
		PerPage: ops.DefaultPerPage,
		Filter:  o.filter,
		Sort:    o.sort,
	})
	if err != nil {
		return err
	}

	pageSQL, err := plan.PageSQL(plan.Page)
	if err != nil {
		return err
	}
	rendered, args, err := sqlbuilder.Render(pageSQL, plan.Params, backend.PlaceholderStyle())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if ParseOutputFormat(o.format) == FormatJSON {
		PrintJSON(w, map[string]any{
			"count":    plan.CountSQL,
			"data":     pageSQL,
			"params":   plan.Params,
			"rendered": rendered,
			"args":     args,
		})
		return nil
	}

	printHeading(w, "count")
	fmt.Fprintln(w, "  "+plan.CountSQL)
	printHeading(w, "data")
	fmt.Fprintln(w, "  "+pageSQL)
	printHeading(w, "params")
	printParams(w, plan.Params)
	printHeading(w, fmt.Sprintf("rendered (%s)", backend))
	fmt.Fprintln(w, "  "+rendered)
	return nil
}
