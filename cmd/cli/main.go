package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/playerbank/internal/adapter/http/dto"
)

var (
	baseURL string
	timeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "playerbank-cli",
		Short: "PlayerBank CLI tool",
		Long:  `A command line interface for interacting with the PlayerBank API.`,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the PlayerBank API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	balanceCmd := &cobra.Command{
		Use:   "balance <player>",
		Short: "Show a player's balances",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			showBalance(args[0])
		},
	}

	currenciesCmd := &cobra.Command{
		Use:   "currencies",
		Short: "List registered currencies",
		Run: func(cmd *cobra.Command, args []string) {
			listCurrencies()
		},
	}

	topCmd := &cobra.Command{
		Use:   "top <currency>",
		Short: "Show the wealth ranking for a currency",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			showTop(args[0])
		},
	}

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent transactions",
		Run: func(cmd *cobra.Command, args []string) {
			showAudit(auditLimit)
		},
	}
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Number of records to show")

	invalidateCmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Clear the server's account cache",
		Run: func(cmd *cobra.Command, args []string) {
			invalidateCache()
		},
	}

	rootCmd.AddCommand(balanceCmd, currenciesCmd, topCmd, auditCmd, invalidateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var auditLimit int

// get fetches a JSON document and decodes it into out, exiting on any
// transport or API error.
func get(path string, out any) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(baseURL + path)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var apiErr dto.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			fmt.Printf("Request failed (Status: %d): %s\n", resp.StatusCode, apiErr.Error)
		} else {
			fmt.Printf("Request failed (Status: %d)\nResponse: %s\n", resp.StatusCode, string(body))
		}
		os.Exit(1)
	}

	if err := json.Unmarshal(body, out); err != nil {
		fmt.Printf("Failed to parse response: %v\n", err)
		os.Exit(1)
	}
}

func showBalance(player string) {
	var account dto.AccountResponse
	get("/api/v1/accounts/"+player, &account)

	fmt.Printf("Account: %s (%s)\n", account.Name, account.UUID)
	if len(account.Balances) == 0 {
		fmt.Println("No balances")
		return
	}

	ids := make([]string, 0, len(account.Balances))
	for id := range account.Balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  %-16s %s\n", id, account.Balances[id])
	}
}

func listCurrencies() {
	var currencies []dto.CurrencyResponse
	get("/api/v1/currencies", &currencies)

	for _, c := range currencies {
		remote := c.Remote
		if remote == "" {
			remote = "(default)"
		}
		fmt.Printf("%-16s %s/%s  decimal=%v  remote=%s\n",
			c.ID, c.NameSingular, c.NamePlural, c.AllowDecimal, remote)
	}
}

func showTop(currency string) {
	var entries []dto.WealthyEntry
	get("/api/v1/wealthy/"+currency, &entries)

	if len(entries) == 0 {
		fmt.Println("No accounts hold this currency")
		return
	}
	for _, e := range entries {
		fmt.Printf("%3d. %-20s %s\n", e.Rank, e.Name, e.Formatted)
	}
}

func showAudit(limit int) {
	var entries []dto.AuditEntry
	get(fmt.Sprintf("/api/v1/audit?limit=%d", limit), &entries)

	for _, e := range entries {
		line := fmt.Sprintf("%s  %-8s %-12s %s %s -> %s",
			e.Time, e.Op, e.Initiator, e.Amount, e.Currency, e.Result)
		if e.Receiver != "" {
			line += fmt.Sprintf("  (to %s)", e.Receiver)
		}
		fmt.Println(line)
	}
}

func invalidateCache() {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Post(baseURL+"/api/v1/cache/invalidate", "application/json", nil)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		fmt.Printf("Request failed (Status: %d)\nResponse: %s\n", resp.StatusCode, string(body))
		os.Exit(1)
	}
	fmt.Println("Account cache invalidated")
}
