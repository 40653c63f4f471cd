package ingest

import (
	"context"
	"fmt"

	"voice-pipeline-go/internal/logger"
	"voice-pipeline-go/internal/types"
)

// Inserter stores new records without touching existing ones.
type Inserter interface {
	InsertMany(ctx context.Context, metas []types.CallMeta) (int, error)
}

// Report summarizes one sync run.
type Report struct {
	Fetched  int
	Inserted int
	Pages    int
	Reason   StopReason
	// PageErr is the listing failure, if any; the partial listing was still stored.
	PageErr error
}

// Syncer copies the provider listing into the store.
type Syncer struct {
	lister   PageLister
	store    Inserter
	pageSize int
	log      *logger.Logger
}

func NewSyncer(lister PageLister, store Inserter, pageSize int, log *logger.Logger) *Syncer {
	return &Syncer{lister: lister, store: store, pageSize: pageSize, log: log.Component("ingest")}
}

// Sync collects the listing and inserts unseen calls. A partial listing is
// stored before the page error is reported, including a cancelled walk; only
// store failures return an error.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	res := CollectAll(ctx, s.lister, s.pageSize)
	rep := Report{Fetched: len(res.Calls), Pages: res.Pages, Reason: res.Reason, PageErr: res.Err}
	if res.Err != nil {
		s.log.WithError(res.Err).WithField("pages", res.Pages).Warn("bulk listing stopped early")
	}

	inserted, err := s.store.InsertMany(context.WithoutCancel(ctx), res.Calls)
	rep.Inserted = inserted
	if err != nil {
		return rep, fmt.Errorf("store listing: %w", err)
	}
	s.log.WithFields(map[string]any{
		"fetched":  rep.Fetched,
		"inserted": rep.Inserted,
		"pages":    rep.Pages,
		"reason":   rep.Reason,
	}).Info("bulk listing synced")
	return rep, nil
}
