// Command numstored is a one-shot CLI over the embedding API (spec
// §6's "process-level CLI"), grounded on the teacher's cmd/demo shape
// (a thin driver instantiating the engine and calling a handful of its
// verbs) but restructured around github.com/spf13/cobra subcommands
// instead of a single linear main, since the CLI now exposes more than
// one operation worth separate flags.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/intellect4all/numstore/metrics"
	"github.com/intellect4all/numstore/numstore"
	"github.com/intellect4all/numstore/pkgerr"
)

var (
	dataDir     string
	metricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "numstored",
		Short: "numstore embeddable storage engine CLI",
	}
	root.PersistentFlags().StringVar(&dataDir, "data", "./data", "database data directory")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve prometheus metrics for this invocation on this address")

	root.AddCommand(newOpenCmd(), newInsertCmd(), newReadCmd(), newRemoveCmd(), newStatCmd())

	if err := root.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to spec §6's CLI convention: 0 on success, the
// negative of the internal error kind on failure.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if kind, ok := pkgerr.CauseKind(err); ok {
		return -int(kind)
	}
	return -1
}

func openDB() (*numstore.DB, error) {
	cfg := numstore.DefaultConfig(dataDir)
	if metricsAddr != "" {
		reg := metrics.New()
		cfg = reg.Apply(cfg)
		srv := &http.Server{Addr: metricsAddr, Handler: reg.Handler()}
		go srv.ListenAndServe()
	}
	return numstore.Open(cfg)
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open NAME TYPE",
		Short: "create a new variable, running recovery first if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			tid, err := db.BeginTxn()
			if err != nil {
				return err
			}
			if err := db.NewVariable(tid, args[0], []byte(args[1])); err != nil {
				db.Rollback(tid)
				return err
			}
			return db.Commit(tid)
		},
	}
}

func newInsertCmd() *cobra.Command {
	var bofst, size int
	cmd := &cobra.Command{
		Use:   "insert NAME BYTES",
		Short: "insert raw bytes into a variable at an element offset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			src := []byte(args[1])
			tid, err := db.BeginTxn()
			if err != nil {
				return err
			}
			if err := db.Insert(tid, args[0], src, bofst, size, len(src)/size); err != nil {
				db.Rollback(tid)
				return err
			}
			return db.Commit(tid)
		},
	}
	cmd.Flags().IntVar(&bofst, "offset", 0, "element offset to insert at")
	cmd.Flags().IntVar(&size, "size", 1, "element size in bytes")
	return cmd
}

func newReadCmd() *cobra.Command {
	var start, end, stride uint64
	var size int
	cmd := &cobra.Command{
		Use:   "read NAME",
		Short: "read a strided element range from a variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			rng := numstore.Range{Start: start, End: end, Stride: stride}
			dest := make([]byte, size*int((end-start+stride-1)/stride))
			n, err := db.Read(args[0], dest, size, rng)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", dest[:n])
			return nil
		},
	}
	cmd.Flags().Uint64Var(&start, "start", 0, "first element index")
	cmd.Flags().Uint64Var(&end, "end", 0, "one past the last element index")
	cmd.Flags().Uint64Var(&stride, "stride", 1, "element stride")
	cmd.Flags().IntVar(&size, "size", 1, "element size in bytes")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var start, end, stride uint64
	var size int
	cmd := &cobra.Command{
		Use:   "remove NAME",
		Short: "remove a strided element range from a variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			tid, err := db.BeginTxn()
			if err != nil {
				return err
			}
			rng := numstore.Range{Start: start, End: end, Stride: stride}
			n, err := db.Remove(tid, args[0], nil, size, rng)
			if err != nil {
				db.Rollback(tid)
				return err
			}
			if err := db.Commit(tid); err != nil {
				return err
			}
			fmt.Printf("removed %d elements\n", n)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&start, "start", 0, "first element index")
	cmd.Flags().Uint64Var(&end, "end", 0, "one past the last element index")
	cmd.Flags().Uint64Var(&stride, "stride", 1, "element stride")
	cmd.Flags().IntVar(&size, "size", 1, "element size in bytes")
	return cmd
}

func newStatCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "stat",
		Short: "print database or variable statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if name != "" {
				size, err := db.Fsize(name)
				if err != nil {
					return err
				}
				fmt.Printf("%s: fsize=%d\n", name, size)
				return nil
			}
			stats := db.Stats()
			fmt.Printf("pages=%d flushed_lsn=%d\n", stats.NumPages, stats.FlushedLSN)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "var", "", "report fsize for a single variable instead of the database")
	return cmd
}
