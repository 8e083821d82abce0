// Package commands implements the foundctl operator CLI: a small cobra
// command tree exercising the stores in this module against a live
// cluster or, absent one, an in-memory database for local trials.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/ledgerwatch/found"
	"github.com/ledgerwatch/found/pstore"
)

var (
	clusterFile string
	prefix      string
)

// RootCommand builds the foundctl command tree.
func RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "foundctl",
		Short: "Operate on a found key-value store",
	}
	root.PersistentFlags().StringVar(&clusterFile, "cluster-file", "", "FoundationDB cluster file; empty uses an in-memory database")
	root.PersistentFlags().StringVar(&prefix, "prefix", "foundctl", "subspace prefix for the store this command operates on")

	root.AddCommand(statCmd)
	root.AddCommand(searchCmd)
	root.AddCommand(indexCmd)
	return root
}

// openDatabase opens the FoundationDB cluster named by --cluster-file, or
// an in-memory database when it is unset, mirroring the way the test
// suite and the production path share the same found.Database interface.
func openDatabase() (found.Database, error) {
	if clusterFile == "" {
		return found.NewMemDatabase(), nil
	}
	return found.OpenFDB(clusterFile)
}

func openPStore() *pstore.PStore {
	return pstore.Make(append([]byte(prefix), 0x10))
}
