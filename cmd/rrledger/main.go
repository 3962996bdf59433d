/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"os"

	"github.com/reciprocalreviews/ledger/cmd/rrledger/cobra/serve"
	"github.com/reciprocalreviews/ledger/cmd/rrledger/cobra/version"
	"github.com/spf13/cobra"
)

// The main command describes the service and defaults to printing the
// help message.
var mainCmd = &cobra.Command{
	Use:   "rrledger",
	Short: "Token ledger for peer review reciprocity.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			os.Exit(1)
		}
	},
}

func main() {
	mainCmd.AddCommand(serve.Cmd())
	mainCmd.AddCommand(version.Cmd())

	if err := mainCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
