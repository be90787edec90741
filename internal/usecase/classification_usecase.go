package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/infrastructure/logger"
	"github.com/iho/reconledger/internal/infrastructure/metrics"
)

// Scope narrows a classification run. An empty scope selects every raw transaction.
type Scope struct {
	Tables    []string    `json:"tables,omitempty"`
	IDs       []uuid.UUID `json:"ids,omitempty"`
	PaymentID string      `json:"payment_id,omitempty"`
}

// ClassificationUpdate is the recomputed classification of one raw transaction.
type ClassificationUpdate struct {
	ID             uuid.UUID
	SourceTable    string
	Classification domain.Classification
}

// MissingCounteragent is one line of the missing-counteragent report.
type MissingCounteragent struct {
	TaxID string `json:"tax_id"`
	Count int    `json:"count"`
}

// RunReport summarizes one classification run for operator follow-up.
type RunReport struct {
	RunID                string                `json:"run_id"`
	StartedAt            time.Time             `json:"started_at"`
	FinishedAt           time.Time             `json:"finished_at"`
	Scope                Scope                 `json:"scope"`
	Total                int                   `json:"total"`
	Classified           int                   `json:"classified"`
	Skipped              int                   `json:"skipped"`
	PaymentMatches       int                   `json:"payment_matches"`
	RateMissing          int                   `json:"rate_missing"`
	ChunksWritten        int                   `json:"chunks_written"`
	CaseCounts           map[string]int        `json:"case_counts"`
	MissingCounteragents []MissingCounteragent `json:"missing_counteragents"`
	InvalidRules         []int64               `json:"invalid_rules,omitempty"`
	Error                string                `json:"error,omitempty"`
}

// CaseKey is the key a case is counted under in RunReport.CaseCounts.
func CaseKey(c domain.Case) string {
	return "case_" + strconv.Itoa(int(c))
}

// ClassificationUseCase runs the classifier over stored raw transactions.
type ClassificationUseCase struct {
	txManager   TransactionManager
	rawRepo     RawTransactionRepository
	dictRepo    DictionaryRepository
	reportStore ReportStore
	retrier     Retrier
	idGen       IDGenerator
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	chunkSize   int
	reportTTL   time.Duration
}

// NewClassificationUseCase creates a new ClassificationUseCase. A non-positive chunk
// size selects DefaultChunkSize.
func NewClassificationUseCase(
	txManager TransactionManager,
	rawRepo RawTransactionRepository,
	dictRepo DictionaryRepository,
	reportStore ReportStore,
	retrier Retrier,
	idGen IDGenerator,
	m *metrics.Metrics,
	logger zerolog.Logger,
	chunkSize int,
	reportTTL time.Duration,
) *ClassificationUseCase {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if reportTTL <= 0 {
		reportTTL = DefaultReportTTL
	}
	return &ClassificationUseCase{
		txManager:   txManager,
		rawRepo:     rawRepo,
		dictRepo:    dictRepo,
		reportStore: reportStore,
		retrier:     retrier,
		idGen:       idGen,
		metrics:     m,
		logger:      logger,
		chunkSize:   chunkSize,
		reportTTL:   reportTTL,
	}
}

// Run recomputes the classification of every record in scope against one dictionary
// snapshot and writes it back in chunks, one transaction per chunk. The first failing
// chunk aborts the run; chunks already committed stay, and the recovery is to run again.
func (uc *ClassificationUseCase) Run(ctx context.Context, scope Scope) (*RunReport, error) {
	report := &RunReport{
		RunID:      uc.idGen.Generate(),
		StartedAt:  time.Now().UTC(),
		Scope:      scope,
		CaseCounts: make(map[string]int),
	}
	log := logger.Ctx(ctx, uc.logger).With().Str("run_id", report.RunID).Logger()

	// 1. Snapshot dictionaries once for the whole run
	src, err := uc.dictRepo.Load(ctx)
	if err != nil {
		return uc.fail(ctx, report, fmt.Errorf("load dictionaries: %w", err))
	}
	dict := NewDictionaries(src, log)
	report.InvalidRules = dict.InvalidRules()
	classifier := NewClassifier(dict)

	// 2. Classify every record in scope
	records, err := uc.rawRepo.ListForClassification(ctx, scope)
	if err != nil {
		return uc.fail(ctx, report, fmt.Errorf("list raw transactions: %w", err))
	}
	report.Total = len(records)

	missing := make(map[string]int)
	updates := make([]ClassificationUpdate, 0, len(records))
	for _, rec := range records {
		result, obs := classifier.Classify(rec)
		if obs.Skipped {
			report.Skipped++
			log.Debug().Str("raw_transaction_id", rec.ID.String()).Err(obs.SkipReason).Msg("record skipped")
			continue
		}

		for _, c := range domain.AllCases() {
			if result.Cases.Has(c) {
				report.CaseCounts[CaseKey(c)]++
			}
		}
		if obs.MissingTaxID != "" {
			missing[obs.MissingTaxID]++
		}
		if obs.PaymentMatched {
			report.PaymentMatches++
		}
		if obs.RateMissing {
			report.RateMissing++
		}

		updates = append(updates, ClassificationUpdate{
			ID:             rec.ID,
			SourceTable:    rec.SourceTable,
			Classification: result,
		})
	}
	report.MissingCounteragents = missingReport(missing)

	// 3. Persist in chunks
	for start := 0; start < len(updates); start += uc.chunkSize {
		end := min(start+uc.chunkSize, len(updates))
		chunk := updates[start:end]

		if err := uc.writeChunk(ctx, chunk); err != nil {
			uc.observeChunk("error")
			report.Classified = start
			return uc.fail(ctx, report, fmt.Errorf("write chunk %d: %w", report.ChunksWritten+1, err))
		}
		uc.observeChunk("ok")
		report.ChunksWritten++
	}
	report.Classified = len(updates)
	report.FinishedAt = time.Now().UTC()

	uc.observeRun(report, "ok")
	uc.saveReport(ctx, report)

	log.Info().
		Int("total", report.Total).
		Int("classified", report.Classified).
		Int("skipped", report.Skipped).
		Int("payment_matches", report.PaymentMatches).
		Int("rate_missing", report.RateMissing).
		Int("missing_counteragents", len(report.MissingCounteragents)).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("classification run finished")

	return report, nil
}

// LatestReport returns the report of the most recent run.
func (uc *ClassificationUseCase) LatestReport(ctx context.Context) (*RunReport, error) {
	return uc.reportStore.Latest(ctx)
}

// Report returns the report of one run.
func (uc *ClassificationUseCase) Report(ctx context.Context, runID string) (*RunReport, error) {
	return uc.reportStore.Get(ctx, runID)
}

func (uc *ClassificationUseCase) writeChunk(ctx context.Context, chunk []ClassificationUpdate) error {
	return uc.retrier.Retry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.txManager.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := uc.rawRepo.UpdateClassifications(ctx, tx, chunk); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}

func (uc *ClassificationUseCase) fail(ctx context.Context, report *RunReport, err error) (*RunReport, error) {
	report.Error = err.Error()
	report.FinishedAt = time.Now().UTC()

	uc.observeRun(report, "error")
	uc.saveReport(ctx, report)

	logger.Ctx(ctx, uc.logger).Error().Err(err).Str("run_id", report.RunID).Int("chunks_written", report.ChunksWritten).
		Msg("classification run aborted")

	return report, err
}

func (uc *ClassificationUseCase) saveReport(ctx context.Context, report *RunReport) {
	if uc.reportStore == nil {
		return
	}
	if err := uc.reportStore.Save(ctx, report, uc.reportTTL); err != nil {
		logger.Ctx(ctx, uc.logger).Warn().Err(err).Str("run_id", report.RunID).Msg("failed to store run report")
	}
}

func (uc *ClassificationUseCase) observeChunk(status string) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.ChunkWrites.WithLabelValues(status).Inc()
}

func (uc *ClassificationUseCase) observeRun(report *RunReport, status string) {
	if uc.metrics == nil {
		return
	}
	m := uc.metrics
	m.ClassificationRuns.WithLabelValues(status).Inc()
	m.ClassificationDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	m.RecordsClassified.Add(float64(report.Classified))
	m.RecordsSkipped.Add(float64(report.Skipped))
	m.PaymentMatches.Add(float64(report.PaymentMatches))
	m.FXRateMissing.WithLabelValues("classification").Add(float64(report.RateMissing))
	m.MissingCounteragents.Set(float64(len(report.MissingCounteragents)))
	for key, n := range report.CaseCounts {
		m.CaseTotal.WithLabelValues(key).Add(float64(n))
	}
}

// missingReport orders the missing tax ids by descending count, then by tax id.
func missingReport(counts map[string]int) []MissingCounteragent {
	out := make([]MissingCounteragent, 0, len(counts))
	for taxID, n := range counts {
		out = append(out, MissingCounteragent{TaxID: taxID, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].TaxID < out[j].TaxID
	})
	return out
}
