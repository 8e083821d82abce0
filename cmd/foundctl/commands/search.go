package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ledgerwatch/found"
	"github.com/ledgerwatch/found/pstore"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <keyword>...",
	Short: "Search the pstore index for documents carrying every keyword",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		result, err := found.Transactional(cmd.Context(), db, func(ctx context.Context, tx found.Transaction) (interface{}, error) {
			return pstore.Search(ctx, tx, openPStore(), args, searchLimit)
		})
		if err != nil {
			return err
		}
		hits, _ := result.([]pstore.Hit)
		if len(hits) == 0 {
			fmt.Println("no matches")
			return nil
		}
		top := color.New(color.FgGreen, color.Bold)
		top.Printf("%s  score=%d\n", hits[0].DocUID, hits[0].Score)
		for _, hit := range hits[1:] {
			fmt.Printf("%s  score=%d\n", hit.DocUID, hit.Score)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 13, "maximum number of results")
}
