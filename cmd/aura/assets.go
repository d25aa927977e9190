package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/adeilh/aura/marketing"
	"github.com/spf13/cobra"
)

func newAssetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List and manage products, audiences and experts",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:       "list <kind>",
			Short:     "List assets of one kind",
			Args:      cobra.ExactArgs(1),
			ValidArgs: assetKindNames(),
			RunE: func(cmd *cobra.Command, args []string) error {
				kind, err := marketing.ParseAssetKind(args[0])
				if err != nil {
					return err
				}
				svc, err := a.signedIn(cmd.Context())
				if err != nil {
					return err
				}
				q, err := svc.Assets(cmd.Context(), kind)
				if err != nil {
					return err
				}
				return show(cmd.Context(), a.out, q, renderAssets)
			},
		},
		newAssetAddCmd(a),
		&cobra.Command{
			Use:   "delete <kind> <id>",
			Short: "Delete an asset",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				kind, err := marketing.ParseAssetKind(args[0])
				if err != nil {
					return err
				}
				svc, err := a.signedIn(cmd.Context())
				if err != nil {
					return err
				}
				if err := svc.DeleteAsset(cmd.Context(), kind, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "deleted %s %s\n", kind, args[1])
				return nil
			},
		},
	)
	return cmd
}

func newAssetAddCmd(a *app) *cobra.Command {
	var (
		id    string
		name  string
		attrs []string
	)
	cmd := &cobra.Command{
		Use:   "add <kind>",
		Short: "Create an asset, or update it when --id is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := marketing.ParseAssetKind(args[0])
			if err != nil {
				return err
			}
			attributes, err := parseAttrs(attrs)
			if err != nil {
				return err
			}
			svc, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			saved, err := svc.SaveAsset(cmd.Context(), marketing.Asset{
				ID:         id,
				Kind:       kind,
				Name:       name,
				Attributes: attributes,
			})
			if err != nil {
				return err
			}
			return printJSON(a.out, saved)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "update the asset with this id")
	cmd.Flags().StringVar(&name, "name", "", "asset name")
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "extra column as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// parseAttrs turns key=value pairs into asset attributes.
func parseAttrs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --attr %q: want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func assetKindNames() []string {
	kinds := marketing.AssetKinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func renderAssets(w io.Writer, list []marketing.Asset) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tATTRIBUTES")
	for _, asset := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", asset.ID, asset.Name, formatAttrs(asset))
	}
	return tw.Flush()
}

func formatAttrs(asset marketing.Asset) string {
	keys := make([]string, 0, len(asset.Attributes))
	for k := range asset.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := asset.Attr(k); v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, " ")
}
