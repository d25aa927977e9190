package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/adeilh/aura/marketing"
	"github.com/spf13/cobra"
)

func newCampaignsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "campaigns",
		Aliases: []string{"campaign"},
		Short:   "List and manage campaigns",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List campaigns, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := a.signedIn(cmd.Context())
				if err != nil {
					return err
				}
				q, err := svc.Campaigns(cmd.Context())
				if err != nil {
					return err
				}
				return show(cmd.Context(), a.out, q, renderCampaigns)
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show a campaign with its assets",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.signedIn(cmd.Context())
				if err != nil {
					return err
				}
				q, err := svc.Campaign(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return show(cmd.Context(), a.out, q, renderJSON[marketing.CampaignDetail])
			},
		},
		newCampaignCreateCmd(a),
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a campaign",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.signedIn(cmd.Context())
				if err != nil {
					return err
				}
				if err := svc.DeleteCampaign(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "deleted campaign %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func newCampaignCreateCmd(a *app) *cobra.Command {
	var c marketing.Campaign
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign from existing assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			created, err := svc.CreateCampaign(cmd.Context(), c)
			if err != nil {
				return err
			}
			return printJSON(a.out, created)
		},
	}
	cmd.Flags().StringVar(&c.Name, "name", "", "campaign name")
	cmd.Flags().StringVar(&c.Objective, "objective", "", "campaign objective")
	cmd.Flags().StringVar(&c.ProductID, "product", "", "product id")
	cmd.Flags().StringVar(&c.AudienceID, "audience", "", "audience id")
	cmd.Flags().StringVar(&c.ExpertID, "expert", "", "expert id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func renderCampaigns(w io.Writer, list []marketing.Campaign) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPRODUCT\tAUDIENCE\tEXPERT\tCREATED")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.Name, c.Status, c.ProductName, c.AudienceName, c.ExpertName,
			c.CreatedAt.Local().Format("2006-01-02"))
	}
	return tw.Flush()
}
