package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/rzpsarthak13/docbridge/internal/document"
	"github.com/rzpsarthak13/docbridge/internal/pgsql"
	"github.com/rzpsarthak13/docbridge/internal/pipeline"
)

// CompileOptions holds flags for the compile selector command.
type CompileOptions struct {
	*RootOptions
	Sort  string
	Limit int64
	Skip  int64
}

// CompiledQuery is the output of the compile commands.
type CompiledQuery struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// NewCompileCommand creates the compile command. Compiling needs only the
// collection schemas of the configuration, no connection.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile selectors, pipelines and tables to Postgres SQL",
	}
	cmd.AddCommand(newCompileSelectorCommand(rootOpts))
	cmd.AddCommand(newCompilePipelineCommand(rootOpts))
	cmd.AddCommand(newCompileTableCommand(rootOpts))
	return cmd
}

func newCompileSelectorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "selector <collection> <selector>",
		Short: "Compile a find selector given as extended JSON",
		Example: `  docbridge compile selector posts '{"score": {"$gt": 5}}' --sort '{"score": -1}' --limit 10`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := opts.table(args[0])
			if err != nil {
				return err
			}
			selector, err := parseDocument(args[1])
			if err != nil {
				return err
			}

			selectOpts := &pgsql.SelectOptions{Limit: opts.Limit, Skip: opts.Skip}
			if opts.Sort != "" {
				if selectOpts.Sort, err = parseDocument(opts.Sort); err != nil {
					return err
				}
			}

			q, err := pgsql.NewSelectQuery(table, document.Selector(selector), selectOpts, nil)
			if err != nil {
				return err
			}
			sql, sqlArgs := q.Compile()
			return writeQuery(cmd.OutOrStdout(), sql, sqlArgs)
		},
	}

	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort document as extended JSON")
	cmd.Flags().Int64Var(&opts.Limit, "limit", 0, "maximum number of documents")
	cmd.Flags().Int64Var(&opts.Skip, "skip", 0, "number of documents to skip")
	return cmd
}

func newCompilePipelineCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "pipeline <collection> <stages>",
		Short:   "Compile an aggregation pipeline given as an extended JSON array",
		Example: `  docbridge compile pipeline posts '[{"$match": {"status": "published"}}, {"$limit": 5}]'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := rootOpts.table(args[0])
			if err != nil {
				return err
			}
			stages, err := parseArray(args[1])
			if err != nil {
				return err
			}

			sql, sqlArgs, err := pipeline.New(table, stages).Compile()
			if err != nil {
				return err
			}
			return writeQuery(cmd.OutOrStdout(), sql, sqlArgs)
		},
	}
}

func newCompileTableCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "table <collection>",
		Short: "Print the CREATE TABLE and CREATE INDEX statements of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := rootOpts.table(args[0])
			if err != nil {
				return err
			}

			create, err := pgsql.NewCreateTableQuery(table, true)
			if err != nil {
				return err
			}
			sql, _ := create.Compile()
			statements := []string{sql}
			for _, idx := range table.Indexes() {
				q, err := pgsql.NewCreateIndexQuery(table, idx)
				if err != nil {
					return err
				}
				sql, _ := q.Compile()
				statements = append(statements, sql)
			}

			out := cmd.OutOrStdout()
			for _, s := range statements {
				fmt.Fprintf(out, "%s;\n", s)
			}
			return nil
		},
	}
}

// table builds the Postgres table of a configured collection.
func (o *RootOptions) table(name string) (*pgsql.Table, error) {
	configMgr, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := configMgr.GetCollectionConfig(name)
	if len(cfg.Schema) == 0 {
		return nil, fmt.Errorf("collection %q has no schema", name)
	}
	return pgsql.TableFromSchema(cfg.Table, cfg.Schema, cfg.Indexes)
}

func parseDocument(s string) (bson.D, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), false, &doc); err != nil {
		return nil, fmt.Errorf("invalid extended JSON document: %w", err)
	}
	return doc, nil
}

// parseArray decodes a top level extended JSON array by wrapping it in a
// document.
func parseArray(s string) ([]any, error) {
	var wrapper struct {
		Items bson.A `bson:"items"`
	}
	if err := bson.UnmarshalExtJSON([]byte(`{"items": `+s+`}`), false, &wrapper); err != nil {
		return nil, fmt.Errorf("invalid extended JSON array: %w", err)
	}
	return []any(wrapper.Items), nil
}

func writeQuery(w io.Writer, sql string, args []any) error {
	if args == nil {
		args = []any{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(CompiledQuery{SQL: sql, Args: args})
}
