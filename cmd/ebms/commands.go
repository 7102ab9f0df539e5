package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"EBMS/internal/app"
	"EBMS/internal/domain"
	"EBMS/internal/usecase"
)

func importCommand(get func() *app.Application) *cobra.Command {
	var (
		req   usecase.ImportRequest
		kind  string
		cycle string
	)
	cmd := &cobra.Command{
		Use:   "import PMID...",
		Short: "Import PubMed articles into a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.PMIDs = args
			req.ImportType = domain.ImportType(kind)
			if cycle != "" {
				t, err := time.Parse("2006-01", cycle)
				if err != nil {
					return fmt.Errorf("parse cycle %q: %w", cycle, err)
				}
				req.Cycle = t
			}
			batch, err := get().Importer.Run(cmd.Context(), req)
			for _, action := range batch.Actions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", action.SourceID, action.Disposition, action.Message)
			}
			for _, msg := range batch.Messages {
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&req.TopicID, "topic", 0, "Topic to link the articles to")
	cmd.Flags().Int64Var(&req.UserID, "user", 1, "User recorded as the importer")
	cmd.Flags().StringVar(&kind, "type", string(domain.ImportRegular), "Import type (R, F, D, S or I)")
	cmd.Flags().StringVar(&cycle, "cycle", "", "Review cycle as YYYY-MM")
	cmd.Flags().StringVar(&req.Comment, "comment", "", "Comment recorded with the initial state")
	cmd.Flags().StringVar(&req.FastTrackState, "fast-track-state", "", "State for fast-track imports")
	return cmd
}

func refreshCommand(get func() *app.Application) *cobra.Command {
	var stale bool
	cmd := &cobra.Command{
		Use:   "refresh [PMID...]",
		Short: "Replace stored PubMed XML with fresh copies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stale {
				return get().Refresher.RunScheduled(cmd.Context())
			}
			report, err := get().Refresher.Refresh(cmd.Context(), args)
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return err
		},
	}
	cmd.Flags().BoolVar(&stale, "stale", false, "Ask NLM which stored articles changed and refresh those")
	return cmd
}

func datesCommand(get func() *app.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "dates",
		Short: "Print the import date of every stored article",
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().Refresher.ImportDates(cmd.Context(), cmd.OutOrStdout())
		},
	}
}
