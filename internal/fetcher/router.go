// Package fetcher selects between the static and headless page fetchers.
package fetcher

import (
	"context"
	"fmt"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

// Promoter decides whether a static page should be re-rendered headlessly.
type Promoter interface {
	ShouldPromote(page lead.Page) bool
}

// Router sends UseHeadless requests to the headless fetcher when one is
// configured and everything else to the static fetcher. Static pages the
// promoter flags are rendered again headlessly.
type Router struct {
	static   lead.PageFetcher
	headless lead.PageFetcher
	promoter Promoter
}

// NewRouter builds a Router. headless and promoter may be nil.
func NewRouter(static, headless lead.PageFetcher, promoter Promoter) *Router {
	return &Router{static: static, headless: headless, promoter: promoter}
}

// Fetch implements lead.PageFetcher. A failed headless render falls back to a static fetch.
func (r *Router) Fetch(ctx context.Context, request lead.FetchRequest) (lead.Page, error) {
	if request.UseHeadless && r.headless != nil {
		page, err := r.headless.Fetch(ctx, request)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return lead.Page{}, fmt.Errorf("headless fetch: %w", err)
		}
	}
	page, err := r.static.Fetch(ctx, request)
	if err != nil {
		return page, fmt.Errorf("static fetch: %w", err)
	}
	if request.UseHeadless || r.headless == nil || r.promoter == nil || !r.promoter.ShouldPromote(page) {
		return page, nil
	}
	rendered, err := r.headless.Fetch(ctx, request)
	if err != nil {
		return page, nil
	}
	return rendered, nil
}
