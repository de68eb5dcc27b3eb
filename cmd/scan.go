/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// scanCommands runs a single settlement batch in the foreground, for cron or manual use.
func scanCommands(app *gateInstance) *cobra.Command {
	var limit int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "run one settlement batch",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app.mustSetupGate(ctx, dryRun)
			defer app.close()

			if dryRun {
				fmt.Println("DRY RUN: no transactions will be sent and no orders will be updated")
			}

			result, err := app.gate.Scan(ctx, limit)
			if err != nil {
				log.Fatalf("Error scanning orders: %v", err)
			}

			out, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(out))
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of orders to process (defaults to worker.max_orders_per_cycle)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would happen without sending transactions or saving state")

	return cmd
}
