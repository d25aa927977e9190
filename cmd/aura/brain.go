package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/adeilh/aura/contentapi"
	"github.com/adeilh/aura/marketing"
	"github.com/spf13/cobra"
)

func newBrainCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brain",
		Short: "Manage the brand voice and the knowledge base",
	}

	voice := &cobra.Command{
		Use:   "voice",
		Short: "Show the brand voice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			q, err := svc.BrandVoice(cmd.Context())
			if err != nil {
				return err
			}
			return show(cmd.Context(), a.out, q, renderJSON[marketing.BrandVoice])
		},
	}

	var (
		tags        string
		description string
	)
	setVoice := &cobra.Command{
		Use:   "set",
		Short: "Replace the brand voice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			saved, err := svc.SaveBrandVoice(cmd.Context(), marketing.BrandVoice{
				Tags:        marketing.SplitTags(tags),
				Description: description,
			})
			if err != nil {
				return err
			}
			return printJSON(a.out, saved)
		},
	}
	setVoice.Flags().StringVar(&tags, "tags", "", "comma separated voice tags")
	setVoice.Flags().StringVar(&description, "description", "", "free-form description of the voice")
	voice.AddCommand(setVoice)

	files := &cobra.Command{
		Use:   "files",
		Short: "List documents in the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			q, err := svc.KnowledgeFiles(cmd.Context())
			if err != nil {
				return err
			}
			return show(cmd.Context(), a.out, q, renderFiles)
		},
	}

	var name string
	upload := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a text document to the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(string(body)) == "" {
				return fmt.Errorf("%s is empty", args[0])
			}
			if name == "" {
				name = filepath.Base(args[0])
			}
			svc, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			gen, err := a.contentAPI()
			if err != nil {
				return err
			}
			res, err := gen.UploadKnowledge(cmd.Context(), contentapi.Document{
				Content:  string(body),
				Metadata: map[string]any{"name": name},
			})
			if err != nil {
				return err
			}
			f, err := svc.AddKnowledgeFile(cmd.Context(), marketing.KnowledgeFile{
				Name:      name,
				SizeBytes: int64(len(body)),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "uploaded %s (%s)\n", f.Name, res.Message)
			return nil
		},
	}
	upload.Flags().StringVar(&name, "name", "", "name to list the document under (default the file name)")

	var analytics bool
	ask := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask the assistant, or the analytics agent with --analytics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := a.contentAPI()
			if err != nil {
				return err
			}
			message := strings.Join(args, " ")
			var answer string
			if analytics {
				answer, err = gen.Analytics(cmd.Context(), message)
			} else {
				answer, err = gen.Chat(cmd.Context(), message)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, answer)
			return nil
		},
	}
	ask.Flags().BoolVar(&analytics, "analytics", false, "route the question to the analytics agent")

	cmd.AddCommand(voice, files, upload, ask)
	return cmd
}

func renderFiles(w io.Writer, list []marketing.KnowledgeFile) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tUPLOADED")
	for _, f := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.ID, f.Name, f.SizeBytes, f.CreatedAt.Local().Format("2006-01-02"))
	}
	return tw.Flush()
}
