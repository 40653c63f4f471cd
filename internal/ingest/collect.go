// Package ingest pulls the provider's bulk call listing into the record
// store as new eligible records.
package ingest

import (
	"context"
	"fmt"

	"voice-pipeline-go/internal/telephony"
	"voice-pipeline-go/internal/types"
)

// PageLister returns one page of the bulk listing. Pages start at 1.
type PageLister interface {
	ListCalls(ctx context.Context, page, pageSize int) (telephony.Page, error)
}

// StopReason records why pagination ended.
type StopReason string

const (
	StopNoNewIDs     StopReason = "no_new_ids"
	StopTotalReached StopReason = "total_reached"
	StopPageError    StopReason = "page_error"
	StopEmptyPage    StopReason = "empty_page"
	StopCancelled    StopReason = "cancelled"
)

// Result is the deduplicated listing. Err is set when a page fetch failed;
// Calls still holds everything gathered before the failure.
type Result struct {
	Calls  []types.CallMeta
	Pages  int
	Total  int
	Reason StopReason
	Err    error
}

// CollectAll walks the listing page by page, keeping the first occurrence of
// each sid. It stops on a page with no new sids, when the unique count
// reaches a positive reported total, on an empty page, or on a fetch error.
// It never returns an error directly; failures are reported in Result.Err.
//
// A page already being fetched runs to completion; cancelling ctx stops the
// walk before the next page.
func CollectAll(ctx context.Context, lister PageLister, pageSize int) Result {
	if pageSize <= 0 {
		pageSize = 100
	}
	var (
		res  Result
		seen = make(map[string]struct{})
	)
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			res.Reason = StopCancelled
			res.Err = err
			return res
		}
		p, err := lister.ListCalls(context.WithoutCancel(ctx), page, pageSize)
		res.Pages++
		if err != nil {
			res.Reason = StopPageError
			res.Err = fmt.Errorf("page %d: %w", page, err)
			return res
		}
		if p.Total > 0 {
			res.Total = p.Total
		}
		if len(p.Calls) == 0 {
			res.Reason = StopEmptyPage
			return res
		}

		added := 0
		for _, call := range p.Calls {
			if call.SID == "" {
				continue
			}
			if _, dup := seen[call.SID]; dup {
				continue
			}
			seen[call.SID] = struct{}{}
			res.Calls = append(res.Calls, call)
			added++
		}
		if added == 0 {
			res.Reason = StopNoNewIDs
			return res
		}
		if res.Total > 0 && len(res.Calls) >= res.Total {
			res.Reason = StopTotalReached
			return res
		}
	}
}
