package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/adeilh/aura/query"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// show prints the persisted snapshot of q when there is one, marked stale,
// then waits for the revalidation and prints the fresh value. A failed
// revalidation leaves the stale output as the answer.
func show[T any](ctx context.Context, w io.Writer, q *query.Query[T], render func(io.Writer, T) error) error {
	defer q.Close()

	if st := q.State(); st.HasData && st.UpdatedAt.IsZero() {
		fmt.Fprintln(w, "# cached (stale)")
		if err := render(w, st.Data); err != nil {
			return err
		}
	}
	if err := q.Wait(ctx); err != nil {
		return err
	}
	st := q.State()
	if st.Err != nil && !errors.Is(st.Err, query.ErrPersist) {
		if st.HasData {
			fmt.Fprintf(w, "# refresh failed: %v\n", st.Err)
			return nil
		}
		return st.Err
	}
	fmt.Fprintln(w, "# fresh")
	return render(w, st.Data)
}

func renderJSON[T any](w io.Writer, v T) error { return printJSON(w, v) }
