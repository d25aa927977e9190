package dashboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/adeilh/aura/httpx"
	"github.com/adeilh/aura/marketing"
	"github.com/adeilh/aura/query"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Overview counts the records behind the dashboard's home cards. Counts
// whose lookup failed are omitted and reported in Errors.
type Overview struct {
	Counts map[string]int `json:"counts"`
	Errors []string       `json:"errors,omitempty"`
}

type counter func(ctx context.Context) (int, error)

func countOf[T any](open func(context.Context) (*query.Query[[]T], error)) counter {
	return func(ctx context.Context) (int, error) {
		q, err := open(ctx)
		if err != nil {
			return 0, err
		}
		items, err := settled(ctx, q)
		return len(items), err
	}
}

func (h *Handler) counters() map[string]counter {
	out := map[string]counter{
		"campaigns":       countOf(h.svc.Campaigns),
		"knowledge_files": countOf(h.svc.KnowledgeFiles),
	}
	for _, kind := range marketing.AssetKinds() {
		out[string(kind)] = countOf(func(ctx context.Context) (*query.Query[[]marketing.Asset], error) {
			return h.svc.Assets(ctx, kind)
		})
	}
	return out
}

func (h *Handler) overview(c httpx.Context) error {
	ctx := c.Request().Context()
	var (
		mu   sync.Mutex
		errs *multierror.Error
		out  = Overview{Counts: map[string]int{}}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for name, count := range h.counters() {
		g.Go(func() error {
			n, err := count(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
				return nil
			}
			out.Counts[name] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return h.fail(c, err)
	}

	if err := errs.ErrorOrNil(); err != nil {
		if len(out.Counts) == 0 {
			return h.fail(c, errs.Errors[0])
		}
		for _, e := range errs.Errors {
			out.Errors = append(out.Errors, e.Error())
		}
	}
	return c.JSON(httpx.StatusOK, out)
}
