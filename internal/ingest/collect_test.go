package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"voice-pipeline-go/internal/logger"
	"voice-pipeline-go/internal/store"
	"voice-pipeline-go/internal/telephony"
	"voice-pipeline-go/internal/types"
)

type scriptedLister struct {
	pages map[int]telephony.Page
	errAt int
	calls []int
}

func (l *scriptedLister) ListCalls(_ context.Context, page, _ int) (telephony.Page, error) {
	l.calls = append(l.calls, page)
	if page == l.errAt {
		return telephony.Page{}, errors.New("upstream unavailable")
	}
	return l.pages[page], nil
}

func callRange(from, to int) []types.CallMeta {
	var out []types.CallMeta
	for i := from; i < to; i++ {
		out = append(out, types.CallMeta{SID: fmt.Sprintf("CA%03d", i)})
	}
	return out
}

func TestCollectAllStopsOnDuplicatePage(t *testing.T) {
	// Page 2 carries 80 new ids plus 20 from page 1; page 3 only repeats 20 ids
	// from page 2. The provider keeps claiming 300 results.
	page2 := append(callRange(100, 180), callRange(0, 20)...)
	var page3 []types.CallMeta
	for len(page3) < 100 {
		page3 = append(page3, callRange(150, 170)...)
	}
	lister := &scriptedLister{pages: map[int]telephony.Page{
		1: {Calls: callRange(0, 100), Total: 300},
		2: {Calls: page2, Total: 300},
		3: {Calls: page3, Total: 300},
		4: {Calls: callRange(500, 600), Total: 300},
	}}

	res := CollectAll(context.Background(), lister, 100)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Calls) != 180 {
		t.Fatalf("expected 180 unique calls, got %d", len(res.Calls))
	}
	if len(lister.calls) != 3 {
		t.Fatalf("expected exactly 3 page fetches, got %v", lister.calls)
	}
	if res.Reason != StopNoNewIDs {
		t.Fatalf("reason = %s", res.Reason)
	}
	seen := map[string]bool{}
	for _, c := range res.Calls {
		if seen[c.SID] {
			t.Fatalf("duplicate sid %s", c.SID)
		}
		seen[c.SID] = true
	}
}

func TestCollectAllStopsAtTotal(t *testing.T) {
	lister := &scriptedLister{pages: map[int]telephony.Page{
		1: {Calls: callRange(0, 2), Total: 3},
		2: {Calls: callRange(2, 4), Total: 3},
		3: {Calls: callRange(4, 6), Total: 3},
	}}
	res := CollectAll(context.Background(), lister, 2)
	if res.Reason != StopTotalReached || len(lister.calls) != 2 || len(res.Calls) != 4 {
		t.Fatalf("unexpected result %+v after pages %v", res, lister.calls)
	}
}

func TestCollectAllZeroTotalKeepsPaging(t *testing.T) {
	lister := &scriptedLister{pages: map[int]telephony.Page{
		1: {Calls: callRange(0, 2)},
		2: {Calls: callRange(2, 4)},
	}}
	res := CollectAll(context.Background(), lister, 2)
	if res.Reason != StopEmptyPage || len(res.Calls) != 4 || len(lister.calls) != 3 {
		t.Fatalf("unexpected result %+v after pages %v", res, lister.calls)
	}
}

func TestCollectAllReturnsPartialOnError(t *testing.T) {
	lister := &scriptedLister{
		pages: map[int]telephony.Page{1: {Calls: callRange(0, 5), Total: 50}},
		errAt: 2,
	}
	res := CollectAll(context.Background(), lister, 5)
	if res.Err == nil || res.Reason != StopPageError {
		t.Fatalf("expected page error, got %+v", res)
	}
	if len(res.Calls) != 5 {
		t.Fatalf("expected partial results, got %d calls", len(res.Calls))
	}
}

func TestSyncStoresPartialListing(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()
	if _, err := st.Insert(ctx, types.CallMeta{SID: "CA000", Status: "completed"}); err != nil {
		t.Fatal(err)
	}

	lister := &scriptedLister{
		pages: map[int]telephony.Page{1: {Calls: callRange(0, 3), Total: 10}},
		errAt: 2,
	}
	rep, err := NewSyncer(lister, st, 3, logger.Discard()).Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.Fetched != 3 || rep.Inserted != 2 || rep.PageErr == nil {
		t.Fatalf("unexpected report %+v", rep)
	}
	stats, _ := st.Stats(ctx)
	if stats.Total != 3 {
		t.Fatalf("expected 3 stored records, got %+v", stats)
	}
	rec, _ := st.Get(ctx, "CA000")
	if rec.Status != "completed" {
		t.Fatalf("existing record was overwritten: %+v", rec.CallMeta)
	}
}

type cancelOnFirstPage struct {
	cancel context.CancelFunc
	calls  int
	ctxErr error
}

func (l *cancelOnFirstPage) ListCalls(ctx context.Context, page, _ int) (telephony.Page, error) {
	l.calls++
	l.cancel()
	l.ctxErr = ctx.Err()
	return telephony.Page{Calls: callRange((page-1)*10, page*10), Total: 500}, nil
}

func TestCollectAllFinishesPageThenStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := &cancelOnFirstPage{cancel: cancel}

	res := CollectAll(ctx, l, 10)
	if l.calls != 1 || res.Pages != 1 {
		t.Fatalf("calls=%d pages=%d", l.calls, res.Pages)
	}
	if l.ctxErr != nil {
		t.Fatalf("page fetch saw cancelled context: %v", l.ctxErr)
	}
	if res.Reason != StopCancelled || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("reason=%s err=%v", res.Reason, res.Err)
	}
	if len(res.Calls) != 10 {
		t.Fatalf("kept %d calls from the finished page, want 10", len(res.Calls))
	}
}
