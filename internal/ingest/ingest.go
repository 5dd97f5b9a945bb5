// Package ingest persists validated crash reports: report bookkeeping,
// executable counts, and the deduplicated backtrace skeleton with its
// strategy-tagged fingerprints.
package ingest

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"coretriage/internal/config"
	"coretriage/internal/hash"
	"coretriage/internal/model"
	"coretriage/internal/report"
	"coretriage/internal/store"
)

// Ingestor writes repaired, validated reports into the store.
type Ingestor struct {
	store *store.Store
	cfg   *config.Config
	log   *zap.Logger
}

func New(s *store.Store, cfg *config.Config, log *zap.Logger) *Ingestor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingestor{store: s, cfg: cfg, log: log}
}

// Save stores one report occurrence and returns the fingerprints it was
// stored under along with the bounded crash-thread grouping hash. The report
// must already have passed the repair and validation passes. Hashes are
// computed first: a report that cannot be fingerprinted is rejected before
// anything is written.
//
// Report-level bookkeeping (error name, executable count) is updated on
// every call; the backtrace skeleton is stored only once per report ID.
func (i *Ingestor) Save(ctx context.Context, reportID int64, r *report.RawReport) ([]hash.Fingerprint, string, error) {
	fingerprints, err := hash.Backtrace(r)
	if err != nil {
		return nil, "", err
	}

	short, err := hash.Short(r, i.cfg.Processing.HashFrames)
	if err != nil {
		return nil, "", err
	}

	var errName string
	if r.Signal != nil {
		errName = strconv.FormatInt(*r.Signal, 10)
	}
	if err := i.store.EnsureReport(ctx, reportID, errName); err != nil {
		return nil, "", fmt.Errorf("ensure report: %w", err)
	}

	if r.Executable != nil {
		if err := i.store.UpsertExecutable(ctx, reportID, *r.Executable, 1); err != nil {
			return nil, "", fmt.Errorf("record executable: %w", err)
		}
	}

	has, err := i.store.HasBacktrace(ctx, reportID)
	if err != nil {
		return nil, "", err
	}
	if has {
		i.log.Debug("backtrace already stored, skipping",
			zap.Int64("report_id", reportID))
		return fingerprints, short, nil
	}

	batch := i.store.NewBatch()
	bt, err := i.store.CreateBacktrace(ctx, reportID)
	if err != nil {
		return nil, "", fmt.Errorf("create backtrace: %w", err)
	}

	for _, fp := range fingerprints {
		if err := i.store.AddBacktraceHash(ctx, bt.ID, string(fp.Strategy), fp.Hash); err != nil {
			return nil, "", fmt.Errorf("store %s hash: %w", fp.Strategy, err)
		}
	}

	frames := 0
	for n, rawThread := range r.Stacktrace {
		thread, err := i.store.CreateThread(ctx, bt.ID, int64(n+1), rawThread.CrashThread)
		if err != nil {
			return nil, "", fmt.Errorf("create thread %d: %w", n+1, err)
		}

		order := int64(0)
		for _, f := range rawThread.Frames {
			order += model.FrameStride
			if err := i.saveFrame(ctx, batch, thread.ID, f, order); err != nil {
				return nil, "", err
			}
			frames++
		}
	}

	i.log.Info("backtrace stored",
		zap.Int64("report_id", reportID),
		zap.String("batch", batch.ID()),
		zap.Int("threads", len(r.Stacktrace)),
		zap.Int("frames", frames),
		zap.Int("hashes", len(fingerprints)))

	return fingerprints, short, nil
}

// saveFrame resolves the frame's symbol and location through the batch cache
// and links them into the thread at the given order.
func (i *Ingestor) saveFrame(ctx context.Context, batch *store.Batch, threadID int64, f *report.RawFrame, order int64) error {
	var filePath string
	if f.FileName != nil {
		filePath = model.AbsPath(*f.FileName)
	}
	normalized := model.NormalizePath(filePath)

	var symbolID *int64
	if f.HasFunctionName() {
		sym, err := batch.GetOrCreateSymbol(ctx, *f.FunctionName, normalized)
		if err != nil {
			return fmt.Errorf("symbol %q: %w", *f.FunctionName, err)
		}
		symbolID = &sym.ID
	}

	var offset int64
	if f.BuildIDOffset != nil {
		offset = int64(*f.BuildIDOffset)
	}

	loc, err := batch.GetOrCreateLocation(ctx, f.BuildID, filePath, offset, symbolID, f.Fingerprint)
	if err != nil {
		return fmt.Errorf("location %s+%d: %w", filePath, offset, err)
	}

	if _, err := i.store.CreateFrame(ctx, threadID, loc.ID, order, false); err != nil {
		return fmt.Errorf("frame at order %d: %w", order, err)
	}
	return nil
}
