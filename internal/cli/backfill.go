package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/docbridge/internal/collection"
	"github.com/rzpsarthak13/docbridge/pkg/docbridge"
)

// BackfillOptions holds flags for the backfill command.
type BackfillOptions struct {
	*RootOptions
	From  string
	Drain bool
}

// NewBackfillCommand creates the backfill command.
func NewBackfillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackfillOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backfill <collection>",
		Short: "Copy the documents of one store of a collection into the other",
		Long: `Enqueue every document of the --from store for copy into the other store.
With --drain the queue is applied before the command returns, at the
configured drain rate. Documents already present in the target are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := collection.ParseReadTarget(opts.From)
			if err != nil {
				return err
			}

			return opts.withClient(cmd.Context(), func(c Client) error {
				n, err := c.Backfill(cmd.Context(), args[0], from)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %d documents of %s\n", n, args[0])
				if !opts.Drain {
					return nil
				}

				configMgr, err := opts.loadConfig()
				if err != nil {
					return err
				}
				backfill := configMgr.GetConfig().Backfill
				drainer := docbridge.NewDrainer(c.Queue(), c, docbridge.DrainerConfig{
					DrainRate:       backfill.DrainRate,
					BatchSize:       backfill.BatchSize,
					MaxRetries:      backfill.MaxRetries,
					RetryBackoff:    backfill.RetryBackoffBase,
					RetryBackoffMax: backfill.RetryBackoffMax,
				})
				if _, err := drainer.Drain(cmd.Context()); err != nil {
					return err
				}
				stats := drainer.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "copied %d, already present %d, retried %d, dropped %d\n",
					stats.Copied, stats.Duplicates, stats.Retried, stats.Dropped)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", string(collection.ReadMongo), "source store (mongo|pg)")
	cmd.Flags().BoolVar(&opts.Drain, "drain", false, "apply the queued copies before returning")
	return cmd
}
