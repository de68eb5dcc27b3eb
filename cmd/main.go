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
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vexogate/vexogate"
	"github.com/vexogate/vexogate/chain"
	"github.com/vexogate/vexogate/config"
	"github.com/vexogate/vexogate/database"
	"github.com/vexogate/vexogate/internal/notification"
	redis_db "github.com/vexogate/vexogate/internal/redis-db"
	"github.com/vexogate/vexogate/wallet"
)

// VexoGate represents the CLI application, encapsulating the root Cobra command.
type VexoGate struct {
	cmd *cobra.Command // Root command for the CLI application
}

// gateInstance holds the configuration loaded for the current command and the
// resources opened by setupGate.
type gateInstance struct {
	cnf   *config.Configuration
	gate  *vexogate.Gate
	redis *redis_db.Redis
	queue *vexogate.Queue
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec) // Log the recovered panic
		os.Exit(1)        // Exit the program with an error status
	}
}

// preRun loads the configuration before running any command.
func preRun(app *gateInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf
		return nil
	}
}

// setupGate connects the datasource, the chain, redis and the webhook queue, and builds the Gate.
// Commands that only need the configuration never call it.
func (app *gateInstance) setupGate(ctx context.Context, dryRun bool) error {
	cnf := app.cnf

	db, err := database.NewDataSource(cnf)
	if err != nil {
		return fmt.Errorf("error getting datasource: %v", err)
	}

	var gasWallet *wallet.Keypair
	if cnf.GasStation.MasterWalletPrivateKey != "" {
		gasWallet, err = wallet.FromPrivateKey(cnf.GasStation.MasterWalletPrivateKey)
		if err != nil {
			return fmt.Errorf("invalid master wallet key: %v", err)
		}
	} else {
		logrus.Warn("Master wallet key not configured, gas injection is disabled")
	}

	chainClient, err := chain.Dial(ctx, cnf.Chain.RPCURL, chain.Options{
		ChainID:               cnf.Chain.ChainID,
		TokenContract:         cnf.Chain.TokenContract,
		TokenDecimals:         cnf.Chain.TokenDecimals,
		GasWallet:             gasWallet,
		RequestTimeout:        cnf.Chain.RequestTimeout(),
		InboundLookbackBlocks: cnf.Chain.InboundLookbackBlocks,
	})
	if err != nil {
		return fmt.Errorf("error connecting to chain: %v", err)
	}

	opts := []vexogate.Option{vexogate.WithDryRun(dryRun)}
	var redisClient redis.UniversalClient
	if cnf.Redis.Dns != "" {
		app.redis, err = redis_db.NewRedisClient(redis_db.SplitAddresses(cnf.Redis.Dns), cnf.Redis.SkipTLSVerify)
		if err != nil {
			return fmt.Errorf("error connecting to redis: %v", err)
		}
		redisClient = app.redis.Client()

		app.queue, err = vexogate.NewQueue(cnf)
		if err != nil {
			return err
		}
		opts = append(opts, vexogate.WithNotifier(vexogate.NewWebhookNotifier(app.queue.Client, cnf)))
	}

	app.gate, err = vexogate.NewGate(db, chainClient, redisClient, cnf, opts...)
	if err != nil {
		return fmt.Errorf("error creating gate: %v", err)
	}
	return nil
}

func (app *gateInstance) close() {
	if app.queue != nil {
		if err := app.queue.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close queue client")
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close redis client")
		}
	}
}

// mustSetupGate is setupGate for long-running commands: failures are reported and fatal.
func (app *gateInstance) mustSetupGate(ctx context.Context, dryRun bool) {
	if err := app.setupGate(ctx, dryRun); err != nil {
		notification.NotifyError(err)
		log.Fatal(err)
	}
}

// NewCLI creates the command-line interface (CLI) for the VexoGate application.
func NewCLI() *VexoGate {
	var configFile string
	app := &gateInstance{}

	var rootCmd = &cobra.Command{
		Use:   "vexogate",
		Short: "Custodial stablecoin settlement bridge",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./vexogate.json", "Configuration file for vexogate")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(scanCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(walletCommands())
	rootCmd.AddCommand(configCommands(app))

	return &VexoGate{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (v VexoGate) executeCLI() {
	if err := v.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err) // Print any errors that occur
		os.Exit(1)                   // Exit the program with an error status
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
