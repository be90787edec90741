package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/infrastructure/logger"
	"github.com/iho/reconledger/internal/infrastructure/metrics"
)

// LedgerSources is everything the consolidated ledger merges, loaded unpaged.
type LedgerSources struct {
	// Tables orders the raw source tables; a table's position selects its id range.
	Tables       []string
	Transactions []*domain.RawTransaction
	Batches      []*domain.Batch
	Conversions  []domain.FXConversion
	Accounts     []domain.BankAccount
}

// LedgerQuery selects the page of the consolidated ledger to return.
type LedgerQuery struct {
	// From and To bound the value date, inclusive. Both accept YYYY-MM-DD and DD.MM.YYYY.
	From string
	To   string
	// IDs restricts the page to flattened synthetic ids.
	IDs   []int64
	Limit int
}

// Ledger is one consolidated ledger page with per-currency totals.
type Ledger struct {
	Entries   []domain.LedgerEntry
	Summaries []domain.CurrencySummary
	// Matched is the number of rows that passed the filters before Limit applied.
	Matched int
	// Undated counts source rows kept off the page because their value date cannot be
	// parsed. Their amounts are part of the opening balance.
	Undated int
}

// Consolidate merges raw transactions, batch partitions, FX legs and balance rows into
// one ordered page. Opening balances cover every row outside the page plus the standing
// balances of active accounts; inflow and outflow cover the page.
func Consolidate(src *LedgerSources, q LedgerQuery) (*Ledger, error) {
	from, err := parseDateFilter(q.From)
	if err != nil {
		return nil, err
	}
	to, err := parseDateFilter(q.To)
	if err != nil {
		return nil, err
	}

	all, undatedRows, undated := projectEntries(src)

	// Select the page
	var wanted map[int64]struct{}
	if len(q.IDs) > 0 {
		wanted = make(map[int64]struct{}, len(q.IDs))
		for _, id := range q.IDs {
			wanted[id] = struct{}{}
		}
	}

	inPage := make([]bool, len(all))
	page := make([]int, 0)
	for i := range all {
		e := &all[i]
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		if !to.IsZero() && e.Date.After(to) {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[e.ID.Flatten()]; !ok {
				continue
			}
		}
		page = append(page, i)
	}
	matched := len(page)
	if q.Limit > 0 && len(page) > q.Limit {
		page = page[:q.Limit]
	}
	for _, i := range page {
		inPage[i] = true
	}

	// Totals per currency
	totals := make(map[string]*domain.CurrencySummary)
	summary := func(code string) *domain.CurrencySummary {
		code = strings.ToUpper(code)
		s, ok := totals[code]
		if !ok {
			s = &domain.CurrencySummary{
				CurrencyCode: code,
				Opening:      decimal.Zero,
				Inflow:       decimal.Zero,
				Outflow:      decimal.Zero,
			}
			totals[code] = s
		}
		return s
	}

	for i := range all {
		e := &all[i]
		s := summary(e.CurrencyCode)
		switch {
		case !inPage[i]:
			s.Opening = s.Opening.Add(e.Amount)
		case e.Amount.IsPositive():
			s.Inflow = s.Inflow.Add(e.Amount)
		case e.Amount.IsNegative():
			s.Outflow = s.Outflow.Add(e.Amount.Abs())
		}
	}
	for i := range undatedRows {
		s := summary(undatedRows[i].CurrencyCode)
		s.Opening = s.Opening.Add(undatedRows[i].Amount)
	}

	entries := make([]domain.LedgerEntry, 0, len(page)+len(src.Accounts))
	for _, i := range page {
		entries = append(entries, all[i])
	}

	accounts := make([]domain.BankAccount, 0, len(src.Accounts))
	for _, acc := range src.Accounts {
		if acc.HasStandingBalance() {
			accounts = append(accounts, acc)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	for i := range accounts {
		s := summary(accounts[i].CurrencyCode)
		s.Opening = s.Opening.Add(accounts[i].Balance.Decimal)

		row := accounts[i].DepictionEntry()
		if wanted != nil {
			if _, ok := wanted[row.ID.Flatten()]; !ok {
				continue
			}
		}
		entries = append(entries, row)
	}

	summaries := make([]domain.CurrencySummary, 0, len(totals))
	for _, s := range totals {
		s.Closing = s.Opening.Add(s.Inflow).Sub(s.Outflow)
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].CurrencyCode < summaries[j].CurrencyCode })

	return &Ledger{
		Entries:   entries,
		Summaries: summaries,
		Matched:   matched,
		Undated:   undated,
	}, nil
}

// projectEntries maps raw transactions, partitions and FX legs into ledger rows sorted by
// date and flattened id. Rows from sources without a parseable value date are returned
// separately, with skipped counting those sources.
func projectEntries(src *LedgerSources) ([]domain.LedgerEntry, []domain.LedgerEntry, int) {
	tableIndex := make(map[string]int, len(src.Tables))
	for i, t := range src.Tables {
		tableIndex[strings.ToLower(t)] = i
	}
	tableOf := func(name string) int {
		key := strings.ToLower(name)
		if i, ok := tableIndex[key]; ok {
			return i
		}
		i := len(tableIndex)
		tableIndex[key] = i
		return i
	}

	batches := make(map[uuid.UUID]*domain.Batch, len(src.Batches))
	for _, b := range src.Batches {
		batches[b.RawTransactionID] = b
	}

	paired := make(map[uuid.UUID]struct{}, len(src.Conversions)*2)
	for _, c := range src.Conversions {
		paired[c.FromRawID] = struct{}{}
		paired[c.ToRawID] = struct{}{}
	}

	var (
		out     []domain.LedgerEntry
		undated []domain.LedgerEntry
		skipped int
	)
	// Rows without a parseable value date never reach a page, but their amounts still
	// belong to the opening balance.
	place := func(ok bool, rows ...domain.LedgerEntry) {
		if ok {
			out = append(out, rows...)
		} else {
			undated = append(undated, rows...)
		}
	}

	for _, rec := range src.Transactions {
		// FX legs stand in for both sides of a pairing, batch or not
		if _, ok := paired[rec.ID]; ok {
			continue
		}
		date, err := domain.ParseDate(rec.ValueDate)
		dated := err == nil
		if !dated {
			skipped++
		}
		table := tableOf(rec.SourceTable)

		if b, ok := batches[rec.ID]; ok {
			for _, p := range b.Partitions {
				place(dated, partitionEntry(rec, b, p, date))
			}
			continue
		}

		cl := rec.Classification
		place(dated, domain.LedgerEntry{
			ID:                domain.SyntheticID{Kind: domain.SourceRaw, Table: table, LocalID: rec.LocalID},
			RawTransactionID:  rec.ID,
			Date:              date,
			Description:       description(rec),
			Amount:            rec.Amount(),
			CurrencyCode:      rec.AccountCurrency,
			BankAccountID:     rec.BankAccountID,
			CounteragentID:    cl.CounteragentID,
			ProjectID:         cl.ProjectID,
			FinancialCodeID:   cl.FinancialCodeID,
			NominalCurrencyID: cl.NominalCurrencyID,
			NominalAmount:     cl.NominalAmount,
			PaymentID:         cl.PaymentID,
			ProcessingCase:    cl.ProcessingCase,
		})
	}

	for i := range src.Conversions {
		c := &src.Conversions[i]
		date, err := domain.ParseDate(c.ValueDate)
		if err != nil {
			skipped++
		}
		legs := c.Legs(date)
		place(err == nil, legs[0], legs[1])
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID.Flatten() < out[j].ID.Flatten()
	})

	return out, undated, skipped
}

// partitionEntry presents one partition in place of its raw transaction. A payment
// reference following the batch id pattern is a placeholder, so the classification
// fields it would carry are masked.
func partitionEntry(rec *domain.RawTransaction, b *domain.Batch, p domain.Partition, date time.Time) domain.LedgerEntry {
	ref := p.PaymentID
	if ref == "" {
		ref = rec.Classification.PaymentID
	}

	e := domain.LedgerEntry{
		ID:                domain.SyntheticID{Kind: domain.SourceBatch, LocalID: p.ID},
		RawTransactionID:  rec.ID,
		BatchID:           b.ID,
		Date:              date,
		Description:       firstNonEmpty(p.Note, description(rec)),
		Amount:            p.Amount,
		CurrencyCode:      rec.AccountCurrency,
		BankAccountID:     rec.BankAccountID,
		CounteragentID:    p.CounteragentID,
		ProjectID:         p.ProjectID,
		FinancialCodeID:   p.FinancialCodeID,
		NominalCurrencyID: p.NominalCurrencyID,
		NominalAmount:     p.NominalAmount,
		PaymentID:         ref,
		ProcessingCase:    rec.Classification.ProcessingCase,
	}

	if domain.IsBatchID(ref) {
		e.CounteragentID = ""
		e.ProjectID = ""
		e.FinancialCodeID = ""
		e.NominalCurrencyID = ""
		e.NominalAmount = decimal.NullDecimal{}
	}

	return e
}

func description(rec *domain.RawTransaction) string {
	return firstNonEmpty(strings.TrimSpace(rec.Nomination), strings.TrimSpace(rec.Information))
}

func parseDateFilter(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{domain.DateLayoutISO, domain.DateLayoutDot} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidDateFilter, s)
}

// LedgerUseCase serves consolidated ledger queries.
type LedgerUseCase struct {
	ledgerRepo LedgerRepository
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(ledgerRepo LedgerRepository, m *metrics.Metrics, logger zerolog.Logger) *LedgerUseCase {
	return &LedgerUseCase{
		ledgerRepo: ledgerRepo,
		metrics:    m,
		logger:     logger,
	}
}

// Query loads every source once and consolidates the requested page in process. Value
// dates are stored as free text, so date filtering happens here rather than in SQL.
func (uc *LedgerUseCase) Query(ctx context.Context, q LedgerQuery) (*Ledger, error) {
	if err := domain.ValidateLedgerLimit(q.Limit); err != nil {
		return nil, err
	}
	if _, err := parseDateFilter(q.From); err != nil {
		return nil, err
	}
	if _, err := parseDateFilter(q.To); err != nil {
		return nil, err
	}

	start := time.Now()

	src, err := uc.ledgerRepo.LoadSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger sources: %w", err)
	}

	ledger, err := Consolidate(src, q)
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.LedgerQueries.Inc()
		uc.metrics.LedgerQueryDuration.Observe(time.Since(start).Seconds())
		uc.metrics.LedgerRows.Observe(float64(len(ledger.Entries)))
	}

	if ledger.Undated > 0 {
		logger.Ctx(ctx, uc.logger).Warn().Int("undated", ledger.Undated).Msg("ledger rows without a parseable value date were kept off the page")
	}

	return ledger, nil
}
