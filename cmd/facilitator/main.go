// Command facilitator runs the x402 payment facilitator HTTP service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/x402rail/facilitator/evmchain"
	"github.com/x402rail/facilitator/facilitator"
)

var rootCmd = &cobra.Command{
	Use:   "facilitator",
	Short: "x402 payment facilitator",
	Long: `The x402 payment facilitator verifies signed EIP-3009
authorizations, settles the transfer, and mints a signed receipt.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg, err := facilitator.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	var executor facilitator.TransferExecutor
	if cfg.MockTransfers {
		executor = facilitator.MockExecutor{}
	} else {
		onChain, err := evmchain.NewOnChainExecutor(ctx, cfg.RPCURL, cfg.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to initialize on-chain executor: %w", err)
		}
		executor = facilitator.NewOnChainAdapter(onChain)
	}

	pipeline := facilitator.NewPipeline(cfg, executor)
	router := facilitator.NewServer(pipeline, cfg.MockTransfers)

	fmt.Printf("Starting x402 facilitator\n")
	fmt.Printf("   Port: %s\n", cfg.Port)
	fmt.Printf("   Fee: %.2f%%\n", cfg.FeePercent)
	if cfg.MockTransfers {
		fmt.Printf("   Mode: mock transfers (no chain calls)\n")
	} else {
		fmt.Printf("   Mode: on-chain via %s\n", cfg.RPCURL)
	}
	fmt.Println()

	return router.Run(":" + cfg.Port)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
