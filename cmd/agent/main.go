// Command agent is a small demo client for paying x402-gated resources.
package main

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	x402 "github.com/x402rail/facilitator"
	"github.com/x402rail/facilitator/agent"
	"github.com/x402rail/facilitator/evmchain"
)

var (
	privateKeyHex  string
	networkFlag    string
	facilitatorURL string
	maxPerRequest  string
	maxTotal       string
	allowedDomains string
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "x402 paying agent",
	Long:  `A client that fetches HTTP resources, paying via x402 when it hits a 402 response.`,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Fetch a URL, paying for it automatically if required",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFetch(cmd, args[0])
	},
}

func runFetch(cmd *cobra.Command, target string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	if privateKeyHex == "" {
		privateKeyHex = os.Getenv("AGENT_PRIVATE_KEY")
	}
	if privateKeyHex == "" {
		return fmt.Errorf("a private key is required: pass --private-key or set AGENT_PRIVATE_KEY")
	}

	wallet, err := evmchain.NewWallet(privateKeyHex)
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}

	policy := agent.SpendingPolicy{
		MaxPerRequest: maxPerRequest,
		MaxTotal:      maxTotal,
	}
	if allowedDomains != "" {
		policy.AllowedDomains = strings.Split(allowedDomains, ",")
		for i, d := range policy.AllowedDomains {
			policy.AllowedDomains[i] = strings.TrimSpace(d)
		}
	}

	budget, err := agent.NewBudget(policy, func(spent, max *big.Int) {
		fmt.Fprintf(os.Stderr, "warning: spending has crossed 80%% of budget (%s / %s)\n", spent, max)
	})
	if err != nil {
		return fmt.Errorf("invalid spending policy: %w", err)
	}

	client := agent.NewClient(wallet, x402.Network(networkFlag), budget, facilitatorURL)
	client.Events.On(agent.EventPaymentStarted, func(payload map[string]interface{}) {
		fmt.Fprintf(os.Stderr, "paying for %v\n", payload["contentId"])
	})
	client.Events.On(agent.EventPaymentSuccess, func(payload map[string]interface{}) {
		fmt.Fprintf(os.Stderr, "payment settled: tx %v\n", payload["txHash"])
	})

	resp, err := client.Fetch(cmd.Context(), target, agent.FetchOptions{Method: "GET"})
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	fmt.Fprintf(os.Stderr, "status: %d\n", resp.StatusCode)
	fmt.Println(string(body))
	return nil
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&privateKeyHex, "private-key", "", "Agent's secp256k1 private key (hex, defaults to AGENT_PRIVATE_KEY)")
	fetchCmd.Flags().StringVar(&networkFlag, "network", string(x402.NetworkBaseMainnet), "Network key (base-mainnet or base-sepolia)")
	fetchCmd.Flags().StringVar(&facilitatorURL, "facilitator-url", "http://localhost:4020", "Facilitator settlement endpoint")
	fetchCmd.Flags().StringVar(&maxPerRequest, "max-per-request", "", "Maximum spend per request, e.g. \"1.00\"")
	fetchCmd.Flags().StringVar(&maxTotal, "max-total", "", "Maximum cumulative spend for this process, e.g. \"10.00\"")
	fetchCmd.Flags().StringVar(&allowedDomains, "allowed-domains", "", "Comma-separated allow-list of domains to pay")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
