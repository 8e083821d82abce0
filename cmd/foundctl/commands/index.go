package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pborman/uuid"
	"github.com/spf13/cobra"

	"github.com/ledgerwatch/found"
	"github.com/ledgerwatch/found/pstore"
)

var indexCmd = &cobra.Command{
	Use:   "index <word:count>...",
	Short: "Index a document as a bag of word:count pairs, printing its fresh uid",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		counter := make(map[string]int, len(args))
		for _, arg := range args {
			parts := strings.SplitN(arg, ":", 2)
			if len(parts) != 2 {
				return fmt.Errorf("index: %q is not word:count", arg)
			}
			count, err := strconv.Atoi(parts[1])
			if err != nil {
				return fmt.Errorf("index: %q: %w", arg, err)
			}
			counter[parts[0]] = count
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		docUID := uuid.NewRandom()
		_, err = found.Transactional(cmd.Context(), db, func(ctx context.Context, tx found.Transaction) (interface{}, error) {
			return nil, pstore.Index(ctx, tx, openPStore(), docUID, counter)
		})
		if err != nil {
			return err
		}
		fmt.Println(docUID.String())
		return nil
	},
}
