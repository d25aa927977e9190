package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/adeilh/aura/marketing"
	"github.com/spf13/cobra"
)

func newContentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Browse the library of generated content",
	}

	var campaignID string
	list := &cobra.Command{
		Use:   "list <type>",
		Short: "List saved content of one type (email, message, static, ugc, content)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := marketing.ParseContentType(args[0])
			if err != nil {
				return err
			}
			svc, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			q, err := svc.Content(cmd.Context(), typ)
			if err != nil {
				return err
			}
			return show(cmd.Context(), a.out, q, renderContent)
		},
	}

	var full bool
	campaign := &cobra.Command{
		Use:   "campaign <campaign-id>",
		Short: "List content saved against a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			q, err := svc.CampaignContent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if full {
				return show(cmd.Context(), a.out, q, renderJSON[[]marketing.GeneratedContent])
			}
			return show(cmd.Context(), a.out, q, renderContent)
		},
	}
	campaign.Flags().BoolVar(&full, "full", false, "print the generated documents as JSON")

	del := &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete saved content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := marketing.ParseContentType(args[0])
			if err != nil {
				return err
			}
			svc, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			item := marketing.GeneratedContent{ID: args[1], Type: typ}
			if campaignID != "" {
				item.CampaignID = &campaignID
			}
			if err := svc.DeleteContent(cmd.Context(), item); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s %s\n", typ, args[1])
			return nil
		},
	}
	del.Flags().StringVar(&campaignID, "campaign", "", "campaign the content belongs to")

	cmd.AddCommand(list, campaign, del)
	return cmd
}

func renderContent(w io.Writer, list []marketing.GeneratedContent) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tTITLE\tCAMPAIGN\tCREATED")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.Type, c.Title, c.CampaignName, c.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
