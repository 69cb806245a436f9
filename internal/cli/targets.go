package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/docbridge/internal/client"
	"github.com/rzpsarthak13/docbridge/internal/collection"
	"github.com/rzpsarthak13/docbridge/internal/registry"
)

// NewTargetsCommand creates the targets command.
func NewTargetsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Show and switch the read and write targets of collections",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [collection...]",
		Short: "Print the targets of collections, all when none is named",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withClient(cmd.Context(), func(c Client) error {
				if _, err := c.RestoreTargets(cmd.Context()); err != nil && !errors.Is(err, client.ErrNoTargetStore) {
					return err
				}
				names := args
				if len(names) == 0 {
					names = c.Collections()
				}
				for _, name := range names {
					targets, err := c.Targets(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tread=%s\twrite=%s\n", name, targets.Read, targets.Write)
				}
				return nil
			})
		},
	})

	var read, write string
	set := &cobra.Command{
		Use:   "set <collection>",
		Short: "Switch a collection and persist its targets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			readTarget, err := collection.ParseReadTarget(read)
			if err != nil {
				return err
			}
			writeTarget, err := collection.ParseWriteTarget(write)
			if err != nil {
				return err
			}

			return rootOpts.withClient(cmd.Context(), func(c Client) error {
				to := registry.Targets{Read: readTarget, Write: writeTarget}
				if err := c.SetTargets(cmd.Context(), args[0], to); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tread=%s\twrite=%s\n", args[0], to.Read, to.Write)
				return nil
			})
		},
	}
	set.Flags().StringVar(&read, "read", string(collection.ReadMongo), "read target (mongo|pg)")
	set.Flags().StringVar(&write, "write", string(collection.WriteMongo), "write target (mongo|pg|both)")
	cmd.AddCommand(set)

	return cmd
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the Postgres tables of collections",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create the table and indexes of every collection with a schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withClient(cmd.Context(), func(c Client) error {
				if err := c.CreateTables(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "tables ready")
				return nil
			})
		},
	})
	return cmd
}
