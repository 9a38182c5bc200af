// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Command metasmctl opens a state machine tree on disk and drives it from
// the command line: replay a script of log entries, print the current
// value of a key, or force a snapshot. It exists for manual smoke tests
// and local debugging, not as a production client.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erigontech/metasm/config"
	"github.com/erigontech/metasm/kv"
	"github.com/erigontech/metasm/metrics"
	"github.com/erigontech/metasm/statemachine"
)

var (
	dbPath  string
	treePfx string
	smID    uint64
	verbose bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "metasmctl",
		Short: "Drive a metasm state machine tree from the command line",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "metasm.db", "path to the bbolt file backing the state machine")
	root.PersistentFlags().StringVar(&treePfx, "prefix", config.Default().TreePrefix, "tree-name prefix")
	root.PersistentFlags().Uint64Var(&smID, "sm-id", 0, "state machine id")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newApplyCmd(), newGetCmd(), newSnapshotCmd())
	return root
}

func newLogger() *zap.Logger {
	if verbose {
		l, _ := zap.NewDevelopment()
		return l
	}
	return zap.NewNop()
}

func openMachine() (*statemachine.StateMachine, func(), error) {
	log := newLogger()
	cfg := config.Config{TreePrefix: treePfx, StateMachineID: smID}
	store, err := kv.OpenBolt(dbPath, cfg.TreeName(), log)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	reg := prometheus.NewRegistry()
	sm, err := statemachine.Open(store,
		statemachine.WithLogger(log),
		statemachine.WithMetrics(metrics.New(reg)),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("open state machine: %w", err)
	}
	return sm, func() { _ = sm.Close() }, nil
}

func newApplyCmd() *cobra.Command {
	var scriptPath string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Replay a JSON script of log entries against the state machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			sm, closeFn, err := openMachine()
			if err != nil {
				return err
			}
			defer closeFn()

			f, err := os.Open(scriptPath)
			if err != nil {
				return fmt.Errorf("open script: %w", err)
			}
			defer f.Close()

			entries, err := readScript(f)
			if err != nil {
				return err
			}

			last, err := sm.LastApplied()
			if err != nil {
				return fmt.Errorf("read last applied: %w", err)
			}
			next := statemachine.LogId{Term: 1, Index: 1}
			if last != nil {
				next = statemachine.LogId{Term: last.Term, Index: last.Index + 1}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for i, se := range entries {
				logEntry, err := se.toLogEntry()
				if err != nil {
					return fmt.Errorf("entry %d: %w", i, err)
				}
				result, err := sm.Apply(statemachine.NormalEntry(next, logEntry))
				if err != nil {
					return fmt.Errorf("apply entry %d at %s: %w", i, next, err)
				}
				if err := enc.Encode(result); err != nil {
					return err
				}
				next.Index++
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&scriptPath, "file", "f", "", "path to the JSON script (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the current value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sm, closeFn, err := openMachine()
			if err != nil {
				return err
			}
			defer closeFn()

			v, err := sm.GetKV(args[0])
			if err != nil {
				return err
			}
			if v == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "<not found>")
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Build a snapshot of the current tree and write it to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			sm, closeFn, err := openMachine()
			if err != nil {
				return err
			}
			defer closeFn()

			snap, err := sm.BuildSnapshot()
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := os.WriteFile(outPath, snap.Bytes, 0o600); err != nil {
					return fmt.Errorf("write snapshot: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id=%s last_applied=%s bytes=%d\n", snap.ID, snap.LastApplied, len(snap.Bytes))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the snapshot bytes to this path")
	return cmd
}
