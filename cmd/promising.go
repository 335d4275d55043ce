package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/spotter"
	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

const (
	PromptYes    = "Yes"
	PromptNo     = "No"
	PromptReport = "Report by credit type"
	PromptDump   = "Print as json"
)

var errExit = errors.New("exit requested")

var promisingPrompt = promptui.Select{
	Label: "Send the webhook?",
	Items: []string{PromptYes, PromptNo, PromptReport, PromptDump},
}

var promisingCmd = &cobra.Command{
	Use:   "promising <user-id>",
	Short: "List the funding requests matching the user's configurations and optionally notify them",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		autoApprove, _ := cmd.Flags().GetBool("auto-approve")
		promising(args[0], autoApprove)
	},
}

func init() {
	rootCmd.AddCommand(promisingCmd)

	promisingCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before sending the webhook")
}

func promising(userID string, autoApprove bool) {
	ctx, stop := signalContext()
	defer stop()

	d := mustDeps()
	defer d.Close(context.Background())
	logger := d.logger

	svc, st, queue, err := d.service(ctx)
	if err != nil {
		logger.Fatal("building the service", zap.Error(err))
	}
	defer d.flush(ctx, queue)

	user, err := st.GetUser(ctx, userID)
	if err != nil {
		logger.Fatal("getting the user", zap.String("user", userID), zap.Error(err))
	}

	available, err := svc.FetchAvailable(ctx)
	if err != nil {
		logger.Fatal("getting available funding requests", zap.Error(err))
	}

	found := svc.Promising(user, available)
	logger.Info("promising funding requests",
		zap.Int("available", len(available)),
		zap.Int("promising", len(found)),
		zap.Ints("ids", funding.IDs(found)),
	)

	if len(found) == 0 {
		logger.Info("exiting", zap.String("reason", "no promising funding requests"))
		return
	}

	action := PromptYes
	for {
		if !autoApprove {
			_, action, err = promisingPrompt.Run()
			if err != nil {
				logger.Fatal("exiting", zap.Error(err))
			}
		}

		err := handlePromisingAction(ctx, action, svc, logger, user, found)
		if errors.Is(err, errExit) {
			return
		}
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if autoApprove {
			return
		}
	}
}

func handlePromisingAction(ctx context.Context, action string, svc *spotter.Service, logger *zap.Logger, user *users.User, found []*funding.Request) error {
	switch action {
	case PromptYes:
		n, err := svc.Notify(ctx, user, found)
		if err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		logger.Info("webhook scheduled", zap.Int("funding requests", n))
		return errExit
	case PromptNo:
		logger.Info("exiting", zap.String("reason", "got no from prompt"))
		return errExit
	case PromptReport:
		report := make(map[funding.CreditType][]int)
		for _, r := range found {
			report[r.CreditType] = append(report[r.CreditType], r.ID)
		}
		pretty, _ := json.MarshalIndent(report, "", "  ")
		logger.Info(string(pretty), zap.Int("funding requests count", len(found)))
		return nil
	case PromptDump:
		pretty, err := json.MarshalIndent(found, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(pretty))
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}
