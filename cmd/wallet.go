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
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/vexogate/vexogate/wallet"
)

// walletCommands groups wallet utilities. They run without a configuration file.
func walletCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "wallet utilities",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	cmd.AddCommand(walletGenerateCommand())
	return cmd
}

func walletGenerateCommand() *cobra.Command {
	var showPrivateKey bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "generate a new wallet, e.g. for the gas station master wallet",
		Run: func(cmd *cobra.Command, args []string) {
			if err := printNewWallet(os.Stdout, showPrivateKey); err != nil {
				log.Fatal(err)
			}
		},
	}

	cmd.Flags().BoolVar(&showPrivateKey, "show-private-key", false, "print the private key to stdout")
	return cmd
}

func printNewWallet(w io.Writer, showPrivateKey bool) error {
	kp, err := wallet.Generate()
	if err != nil {
		return err
	}
	defer kp.Zero()

	fmt.Fprintf(w, "Address:     %s\n", kp.Address)
	fmt.Fprintf(w, "Public key:  %s\n", kp.PublicKeyHex())
	if showPrivateKey {
		fmt.Fprintf(w, "Private key: %s\n", kp.PrivateKeyHex())
		fmt.Fprintln(w, "Store it in VEXOGATE_MASTER_WALLET_PRIVATE_KEY and clear your terminal history.")
	} else {
		fmt.Fprintln(w, "Private key hidden. Re-run with --show-private-key to print it.")
	}
	return nil
}
