package commands

import (
	"context"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ledgerwatch/found"
	"github.com/ledgerwatch/found/tuple"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Print the estimated range size of a pstore index's token subspace (postings and counters are not listed)",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		_, err = found.Transactional(cmd.Context(), db, func(ctx context.Context, tx found.Transaction) (interface{}, error) {
			return nil, printStats(ctx, tx)
		})
		return err
	},
}

func printStats(ctx context.Context, tx found.Transaction) error {
	p := openPStore()
	subspaces := [][2][]byte{
		{[]byte("tokens"), p.Tokens.Prefix},
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"subspace", "estimated size"})
	for _, s := range subspaces {
		name, start := s[0], s[1]
		end, err := tuple.NextPrefix(start)
		if err != nil {
			return err
		}
		size, err := tx.GetEstimatedRangeSizeBytes(ctx, start, end)
		if err != nil {
			return err
		}
		table.Append([]string{string(name), datasize.ByteSize(size).String()})
	}
	table.Render()
	return nil
}
