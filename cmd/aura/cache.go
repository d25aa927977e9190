package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/cache"
	"github.com/adeilh/aura/marketing"
	"github.com/adeilh/aura/query"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

// keyLister is implemented by stores that can enumerate their keys.
type keyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear locally cached query results",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "clear [key...]",
			Short: "Drop cached query results; the session is kept",
			Long: `Drop the named cache entries, or every cached query result when no key
is given. The next read of a cleared key starts without stale data.`,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.cacheStore(cmd.Context())
				if err != nil {
					return err
				}
				keys := args
				if len(keys) == 0 {
					if keys, err = cachedKeys(cmd.Context(), store); err != nil {
						return err
					}
				}
				n, err := clearKeys(cmd.Context(), store, keys)
				fmt.Fprintf(a.out, "cleared %d of %d keys\n", n, len(keys))
				return err
			},
		},
		&cobra.Command{
			Use:   "keys [prefix]",
			Short: "List cached keys (sqlite backend)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.cacheStore(cmd.Context())
				if err != nil {
					return err
				}
				lister, ok := store.(keyLister)
				if !ok {
					return fmt.Errorf("cache backend %q cannot list keys", a.cfg.Cache.Backend)
				}
				prefix := ""
				if len(args) == 1 {
					prefix = args[0]
				}
				keys, err := lister.Keys(cmd.Context(), prefix)
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(a.out, k)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "purge",
			Short: "Remove expired entries (sqlite backend)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := a.cacheStore(cmd.Context())
				if err != nil {
					return err
				}
				p, ok := store.(purger)
				if !ok {
					return fmt.Errorf("cache backend %q expires entries on its own", a.cfg.Cache.Backend)
				}
				n, err := p.Purge(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "purged %d expired entries\n", n)
				return nil
			},
		},
	)
	return cmd
}

// cachedKeys lists every query key in store. Stores that cannot enumerate
// get the keys the CLI and dashboard read.
func cachedKeys(ctx context.Context, store cache.Store) ([]string, error) {
	if lister, ok := store.(keyLister); ok {
		all, err := lister.Keys(ctx, "aura_")
		if err != nil {
			return nil, err
		}
		keys := all[:0]
		for _, k := range all {
			if k != auth.DefaultSessionKey {
				keys = append(keys, k)
			}
		}
		return keys, nil
	}
	keys := []string{query.KeyCampaigns, query.KeyBrainVoice, query.KeyBrainFiles, query.KeyProfile}
	for _, k := range marketing.AssetKinds() {
		keys = append(keys, query.AssetsKey(string(k)))
	}
	for _, t := range []marketing.ContentType{
		marketing.ContentEmail, marketing.ContentMessage, marketing.ContentStatic,
		marketing.ContentUGC, marketing.ContentGeneric,
	} {
		keys = append(keys, query.ContentKey(string(t)))
	}
	return keys, nil
}

// clearKeys deletes keys and reports how many existed.
func clearKeys(ctx context.Context, store cache.Store, keys []string) (int, error) {
	var (
		n      int
		result *multierror.Error
	)
	for _, k := range keys {
		err := store.Delete(ctx, k)
		switch {
		case err == nil:
			n++
		case errors.Is(err, cache.ErrNotFound):
		default:
			result = multierror.Append(result, fmt.Errorf("clear %s: %w", k, err))
		}
	}
	return n, result.ErrorOrNil()
}
