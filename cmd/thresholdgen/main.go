// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Command thresholdgen dumps the supervisor's default threshold table as
// yaml for operators to copy and override, and validates override files
// against the ordering rules the supervisor's startup self-check enforces.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shakebs/battsafe/threshold"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "thresholdgen",
		Short: "Generate and validate battsafe threshold override files",
	}
	root.AddCommand(newDumpCmd(), newValidateCmd())
	return root
}

func newDumpCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the default threshold table as yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := threshold.Marshal(threshold.Default())
			if err != nil {
				return fmt.Errorf("thresholdgen: marshaling defaults: %w", err)
			}
			if outPath == "" || outPath == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			return os.WriteFile(outPath, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output path (\"-\" for stdout)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a threshold override file's ordering rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("thresholdgen: opening %s: %w", args[0], err)
			}
			defer f.Close()

			if _, err := threshold.Load(f); err != nil {
				return err
			}
			fmt.Printf("%s: ok\n", args[0])
			return nil
		},
	}
	return cmd
}
