//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// resetCmd drops every pipeline table and re-runs the schema.
// Destructive; intended for test and development environments.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop all pipeline tables and re-create the schema",
	Long:  "Drops every known pipeline table from the store and re-runs the schema. All ingested data is lost.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}

		ctx := context.Background()

		if err := p.gw.Connect(ctx); err != nil {
			return err
		}
		defer p.gw.Disconnect()

		warnStatus("Dropping all pipeline tables...")

		if err := p.gw.Reset(ctx); err != nil {
			return err
		}

		status("Schema re-created")
		return nil
	},
}

// init registers the reset command.
func init() {
	rootCmd.AddCommand(resetCmd)
}
