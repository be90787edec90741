package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/reconledger/internal/adapter/http/dto"
	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/infrastructure/logger"
	"github.com/iho/reconledger/internal/infrastructure/postgres"
	"github.com/iho/reconledger/internal/usecase"
)

var (
	baseURL string
	timeout time.Duration
)

// migrator is the part of postgres.Migrator the migrate command drives.
type migrator interface {
	Up() error
	Down() error
}

var newMigrator = func(databaseURL, migrationsPath string, out io.Writer) migrator {
	return postgres.NewMigrator(databaseURL, migrationsPath, logger.New(logger.Config{Format: "console", Output: out}))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "reconledger-cli",
		Short:         "Reconledger CLI tool",
		Long:          `A command line interface for running classification, inspecting the consolidated ledger and migrating the schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the reconledger API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Request timeout")

	rootCmd.AddCommand(reparseCmd(), reportCmd(), ledgerCmd(), batchCmd(), migrateCmd())
	return rootCmd
}

func reparseCmd() *cobra.Command {
	var (
		tables         []string
		ids            []string
		paymentID      string
		idempotencyKey string
	)

	cmd := &cobra.Command{
		Use:   "reparse",
		Short: "Reclassify stored transactions",
		Long:  `Runs the classifier over the selected records. Without filters every source table is processed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.RunClassificationRequest{Tables: tables, IDs: ids, PaymentID: paymentID}
			var report map[string]any
			header := http.Header{}
			if idempotencyKey != "" {
				header.Set("Idempotency-Key", idempotencyKey)
			}
			if err := newAPIClient().do(cmd.Context(), http.MethodPost, "/api/v1/classification/runs", header, req, &report); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringSliceVar(&tables, "table", nil, "Source table to reclassify (repeatable)")
	cmd.Flags().StringSliceVar(&ids, "id", nil, "Raw transaction id to reclassify (repeatable)")
	cmd.Flags().StringVar(&paymentID, "payment-id", "", "Reclassify records carrying this payment id")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key for the run request")
	return cmd
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report [run-id]",
		Short: "Show a classification run report, the latest by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/classification/runs/latest"
			if len(args) == 1 {
				path = "/api/v1/classification/runs/" + url.PathEscape(args[0])
			}
			var report map[string]any
			if err := newAPIClient().do(cmd.Context(), http.MethodGet, path, nil, nil, &report); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func ledgerCmd() *cobra.Command {
	var (
		from, to string
		ids      []int64
		limit    int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show the consolidated ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if from != "" {
				q.Set("from", from)
			}
			if to != "" {
				q.Set("to", to)
			}
			if len(ids) > 0 {
				parts := make([]string, len(ids))
				for i, id := range ids {
					parts[i] = strconv.FormatInt(id, 10)
				}
				q.Set("ids", strings.Join(parts, ","))
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}

			path := "/api/v1/ledger"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var ledger dto.LedgerResponse
			if err := newAPIClient().do(cmd.Context(), http.MethodGet, path, nil, nil, &ledger); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), ledger)
			}
			return printLedger(cmd.OutOrStdout(), &ledger)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First value date, YYYY-MM-DD or DD.MM.YYYY")
	cmd.Flags().StringVar(&to, "to", "", "Last value date, YYYY-MM-DD or DD.MM.YYYY")
	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "Restrict to ledger row ids")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to return, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")
	return cmd
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Batch partition operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <raw-transaction-id>",
		Short: "Show the partitions of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var batch dto.BatchResponse
			if err := newAPIClient().do(cmd.Context(), http.MethodGet, batchPath(args[0]), nil, nil, &batch); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), batch)
		},
	})

	cmd.AddCommand(batchSaveCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <raw-transaction-id>",
		Short: "Remove the partitions of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().do(cmd.Context(), http.MethodDelete, batchPath(args[0]), nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "batch deleted")
			return nil
		},
	})

	return cmd
}

func batchSaveCmd() *cobra.Command {
	var (
		total      string
		parts      []string
		paymentIDs []string
		amounts    []string
	)

	cmd := &cobra.Command{
		Use:   "save <raw-transaction-id>",
		Short: "Replace the partitions of a transaction",
		Long: `Replace the partitions of a transaction.

Partitions are given either as --part AMOUNT[:PAYMENT_ID[:NOTE]] (a trailing part with an
empty amount receives the unallocated remainder) or as --payments with matching --amounts
(a single payment id receives the whole total). Amounts are positive magnitudes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(total)
			if err != nil {
				return fmt.Errorf("invalid --total %q: %w", total, err)
			}

			composer, err := composePartitions(amount, parts, paymentIDs, amounts)
			if err != nil {
				return err
			}

			req := dto.SaveBatchRequest{}
			for _, d := range composer.Drafts() {
				req.Partitions = append(req.Partitions, dto.PartitionRequest{Amount: d.Amount, PaymentID: d.PaymentID, Note: d.Note})
			}

			var batch dto.BatchResponse
			if err := newAPIClient().do(cmd.Context(), http.MethodPut, batchPath(args[0]), nil, req, &batch); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), batch)
		},
	}

	cmd.Flags().StringVar(&total, "total", "", "Absolute amount of the transaction")
	cmd.Flags().StringArrayVar(&parts, "part", nil, "Partition as AMOUNT[:PAYMENT_ID[:NOTE]], repeatable")
	cmd.Flags().StringSliceVar(&paymentIDs, "payments", nil, "One partition per payment id")
	cmd.Flags().StringSliceVar(&amounts, "amounts", nil, "Amounts for --payments, in order")
	_ = cmd.MarkFlagRequired("total")
	cmd.MarkFlagsMutuallyExclusive("part", "payments")
	cmd.MarkFlagsOneRequired("part", "payments")
	return cmd
}

// composePartitions drafts the partitions of a transaction from the save flags and
// checks them against its total before anything is sent.
func composePartitions(total decimal.Decimal, parts, paymentIDs, amounts []string) (*usecase.PartitionComposer, error) {
	composer := usecase.NewPartitionComposer(total)

	if len(paymentIDs) > 0 {
		composer.FromPaymentIDs(paymentIDs)
		if len(amounts) > 0 && len(amounts) != len(composer.Drafts()) {
			return nil, fmt.Errorf("got %d amounts for %d payment ids", len(amounts), len(composer.Drafts()))
		}
		for i, a := range amounts {
			amount, err := decimal.NewFromString(strings.TrimSpace(a))
			if err != nil {
				return nil, fmt.Errorf("invalid amount %q: %w", a, err)
			}
			composer.SetAmount(i, amount)
		}
	} else {
		for _, part := range parts {
			fields := strings.SplitN(part, ":", 3)
			draft := domain.PartitionInput{}
			if a := strings.TrimSpace(fields[0]); a != "" {
				amount, err := decimal.NewFromString(a)
				if err != nil {
					return nil, fmt.Errorf("invalid part %q: %w", part, err)
				}
				draft.Amount = amount
			}
			if len(fields) > 1 {
				draft.PaymentID = strings.TrimSpace(fields[1])
			}
			if len(fields) > 2 {
				draft.Note = fields[2]
			}
			composer.Add(draft)
		}
		composer.AutoFillRemaining()
	}

	if err := composer.Validate(); err != nil {
		return nil, err
	}
	return composer, nil
}

func batchPath(rawID string) string {
	return "/api/v1/transactions/" + url.PathEscape(rawID) + "/batch"
}

func migrateCmd() *cobra.Command {
	var databaseURL, migrationsPath string

	cmd := &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errors.New("database URL is required (--database-url or DATABASE_URL)")
			}
			m := newMigrator(databaseURL, migrationsPath, cmd.ErrOrStderr())
			if args[0] == "down" {
				return m.Down()
			}
			return m.Up()
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	cmd.Flags().StringVar(&migrationsPath, "path", "internal/infrastructure/postgres/migrations", "Migrations directory")
	return cmd
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// do sends a JSON request and decodes a 2xx response into out. Other statuses become
// errors carrying the server's error message.
func (c *apiClient) do(ctx context.Context, method, path string, header http.Header, in, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr dto.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg := apiErr.Error
			if apiErr.Message != "" {
				msg += ": " + apiErr.Message
			}
			if apiErr.Remainder != nil {
				msg += " (remainder " + apiErr.Remainder.String() + ")"
			}
			return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func printLedger(w io.Writer, ledger *dto.LedgerResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSOURCE\tCCY\tAMOUNT\tDESCRIPTION")
	for _, e := range ledger.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Date, e.Source, e.CurrencyCode, e.Amount.StringFixed(2), truncate(e.Description, 48))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CCY\tOPENING\tINFLOW\tOUTFLOW\tCLOSING")
	for _, s := range ledger.Summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.CurrencyCode, s.Opening.StringFixed(2), s.Inflow.StringFixed(2), s.Outflow.StringFixed(2), s.Closing.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d of %d matching rows, %d undated rows skipped\n", len(ledger.Entries), ledger.Matched, ledger.Undated)
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate shortens s to n runes; bank descriptions are often Georgian.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
