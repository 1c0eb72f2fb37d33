package cmd

import (
	"fmt"

	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var generateRequest domainGenerator.GenerateRequest

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate drafts and schedule them on the earliest free slots",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().IntVarP(&generateRequest.Count, "count", "n", 3, "number of drafts to generate (max 20)")
	generateCmd.Flags().StringVar(&generateRequest.Stage, "stage", "S1", "target stage S1..S5")
	generateCmd.Flags().StringVar(&generateRequest.Memo, "memo", "", "extra context passed to the prompt and stored on each post")
	generateCmd.Flags().StringVar(&generateRequest.StartDate, "start-date", "", `first civil date to fill, YYYY/MM/DD | example: --start-date="2026/03/01"`)
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	initApp(ctx)
	defer StopApp()

	res, err := draftsUsecase.GenerateAndSchedule(ctx, generateRequest)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s scheduled, %s skipped, %s left without a slot\n",
		humanize.Comma(int64(len(res.Created))), humanize.Comma(int64(len(res.Skipped))), humanize.Comma(int64(res.Unscheduled)))
	for _, p := range res.Created {
		fmt.Fprintf(out, "  #%s  %s  [%s/%s]  %s\n", p.ID, p.ScheduledAt, p.Stage, p.ABVersion, preview(p.Draft, 40))
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(out, "  skipped %s: %s\n", s.PostID, s.Reason)
	}
	return nil
}

func preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}
