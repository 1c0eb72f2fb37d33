package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cronCmd = &cobra.Command{
	Use:   "cron [action]",
	Short: "Run cron actions once",
	Long: `Runs the same sequence as GET /api/cron. Without an action, or with "all",
every action runs. Any other action runs after scheduled_post.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCron,
}

func init() {
	rootCmd.AddCommand(cronCmd)
}

func runCron(cmd *cobra.Command, args []string) error {
	requested := ""
	if len(args) > 0 {
		requested = args[0]
	}
	actions, err := domainCron.Sequence(requested)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	initApp(ctx)
	defer StopApp()

	failed := false
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, action := range actions {
		entry, locked, err := schedulerUsecase.RunCronSequence(ctx, action)
		if err != nil {
			logrus.WithError(err).Errorf("[SCHEDULER] %s could not run", action)
			failed = true
			continue
		}
		if locked {
			logrus.Warnf("[SCHEDULER] %s is locked by another run", action)
		}
		if entry.Status == domainCron.LogFatalError {
			failed = true
		}
		_ = enc.Encode(entry)
	}
	if failed {
		return fmt.Errorf("one or more cron actions failed")
	}
	return nil
}
