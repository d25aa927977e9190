package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/contentapi"
	"github.com/adeilh/aura/httpx"
	"github.com/adeilh/aura/internal/logctx"
	"github.com/adeilh/aura/marketing"
	"github.com/adeilh/aura/query"
)

// Snapshot is the JSON form of query.State.
type Snapshot[T any] struct {
	Data      T          `json:"data"`
	Loading   bool       `json:"loading"`
	Error     string     `json:"error,omitempty"`
	Cached    bool       `json:"cached"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func snapshotOf[T any](st query.State[T]) Snapshot[T] {
	out := Snapshot[T]{
		Data:    st.Data,
		Loading: st.Loading,
		Cached:  st.HasData && st.UpdatedAt.IsZero(),
	}
	if st.Err != nil {
		out.Error = st.Err.Error()
	}
	if !st.UpdatedAt.IsZero() {
		t := st.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

// queryContext detaches fetches from the request so a revalidation started
// by a read still writes through after the response is sent.
func queryContext(c httpx.Context) context.Context {
	return context.WithoutCancel(c.Request().Context())
}

func wantsWait(c httpx.Context) bool {
	v := c.QueryParam("wait")
	if v == "" {
		return false
	}
	ok, err := strconv.ParseBool(v)
	return err == nil && ok
}

func respond[T any](h *Handler, c httpx.Context, q *query.Query[T], err error) error {
	if err != nil {
		return h.fail(c, err)
	}
	defer q.Close()
	if wantsWait(c) {
		ctx, cancel := context.WithTimeout(c.Request().Context(), h.waitLimit)
		defer cancel()
		if err := q.Wait(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return c.JSON(httpx.StatusOK, snapshotOf(q.State()))
}

// settled waits for the query's first fetch and returns its outcome.
func settled[T any](ctx context.Context, q *query.Query[T]) (T, error) {
	defer q.Close()
	var zero T
	if err := q.Wait(ctx); err != nil {
		return zero, err
	}
	st := q.State()
	if st.Err != nil && !errors.Is(st.Err, query.ErrPersist) {
		return zero, st.Err
	}
	return st.Data, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, marketing.ErrNotFound):
		return httpx.StatusNotFound
	case errors.Is(err, marketing.ErrConflict):
		return httpx.StatusConflict
	case errors.Is(err, marketing.ErrInvalidInput):
		return httpx.StatusBadRequest
	case errors.Is(err, marketing.ErrNoOwner), errors.Is(err, auth.ErrNoSession), errors.Is(err, query.ErrInactive):
		return httpx.StatusUnauthorized
	case errors.Is(err, contentapi.ErrEmptyResponse), httpx.StatusCode(err) != 0:
		return httpx.StatusBadGateway
	case errors.Is(err, errGenerationDisabled):
		return httpx.StatusServiceUnavailable
	default:
		return httpx.StatusInternalError
	}
}

func (h *Handler) fail(c httpx.Context, err error) error {
	code := statusFor(err)
	if code >= httpx.StatusInternalError {
		logctx.FromContext(c.Request().Context()).Error("dashboard request failed",
			slog.String("method", c.Request().Method), slog.String("path", c.Path()), slog.Any("error", err))
	}
	return httpx.HTTPError(code, err.Error())
}
