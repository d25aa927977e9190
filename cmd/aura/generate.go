package main

import (
	"github.com/adeilh/aura/dashboard"
	"github.com/spf13/cobra"
)

func newGenerateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate content with the AI content service and save it",
	}
	cmd.AddCommand(
		generateCmd(a, dashboard.GenerateUGC, "UGC video script for a campaign", func(cmd *cobra.Command, req *dashboard.GenerateRequest) {
			campaignFlag(cmd, req)
			cmd.Flags().StringVar(&req.Style, "style", "", "script style (default Viral)")
		}),
		generateCmd(a, dashboard.GenerateEmail, "marketing e-mail for a campaign", func(cmd *cobra.Command, req *dashboard.GenerateRequest) {
			campaignFlag(cmd, req)
			cmd.Flags().StringVar(&req.Objective, "objective", "", "e-mail objective (defaults to the campaign's)")
		}),
		generateCmd(a, dashboard.GenerateStaticAd, "static ad for a campaign", func(cmd *cobra.Command, req *dashboard.GenerateRequest) {
			campaignFlag(cmd, req)
			cmd.Flags().StringVar(&req.Offer, "offer", "", "offer to feature")
		}),
		generateCmd(a, dashboard.GenerateMessage, "short message from free-form context", func(cmd *cobra.Command, req *dashboard.GenerateRequest) {
			cmd.Flags().StringVar(&req.Context, "context", "", "what the message is about")
			cmd.Flags().StringVar(&req.Tone, "tone", "", "tone of voice")
			cmd.Flags().StringVar(&req.CampaignID, "campaign", "", "attach to this campaign")
			_ = cmd.MarkFlagRequired("context")
		}),
		generateCmd(a, dashboard.GenerateContent, "free-form content from a prompt", func(cmd *cobra.Command, req *dashboard.GenerateRequest) {
			cmd.Flags().StringVar(&req.Message, "prompt", "", "prompt for the content agent")
			cmd.Flags().StringVar(&req.CampaignID, "campaign", "", "attach to this campaign")
			_ = cmd.MarkFlagRequired("prompt")
		}),
	)
	return cmd
}

func generateCmd(a *app, kind, short string, flags func(*cobra.Command, *dashboard.GenerateRequest)) *cobra.Command {
	var req dashboard.GenerateRequest
	cmd := &cobra.Command{
		Use:   kind,
		Short: "Generate a " + short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := a.signedIn(ctx)
			if err != nil {
				return err
			}
			gen, err := a.contentAPI()
			if err != nil {
				return err
			}
			var userID string
			if ident := a.provider.CurrentIdentity(); ident != nil {
				userID = ident.ID
			}
			saved, err := dashboard.Generate(ctx, svc, gen, userID, kind, req)
			if err != nil {
				return err
			}
			return printJSON(a.out, saved)
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "title to save the content under")
	flags(cmd, &req)
	return cmd
}

func campaignFlag(cmd *cobra.Command, req *dashboard.GenerateRequest) {
	cmd.Flags().StringVar(&req.CampaignID, "campaign", "", "campaign id")
	_ = cmd.MarkFlagRequired("campaign")
}
