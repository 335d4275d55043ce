package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

var configureCmd = &cobra.Command{
	Use:   "configure <user-file>",
	Short: "Validate a user definition (yaml or json) and save it with its filter configurations",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		configure(args[0], dryRun)
	},
}

func init() {
	rootCmd.AddCommand(configureCmd)

	configureCmd.Flags().Bool("dry-run", false, "only validate the definition")
}

// loadDefinition reads a user definition with its own viper instance so it never mixes with the app config.
func loadDefinition(path string) (*users.User, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	def, err := users.DecodeDefinition(v.AllSettings())
	if err != nil {
		return nil, err
	}

	user := def.User()
	if err := user.Validate(); err != nil {
		return nil, err
	}
	return user, nil
}

func configure(path string, dryRun bool) {
	ctx, stop := signalContext()
	defer stop()

	d := mustDeps()
	defer d.Close(context.Background())
	logger := d.logger

	user, err := loadDefinition(path)
	if err != nil {
		logger.Fatal("loading the user definition", zap.String("file", path), zap.Error(err))
	}

	logger.Info("user definition is valid",
		zap.String("user", user.ID),
		zap.Ints("configurations", user.ConfigurationIDs()),
	)
	if dryRun {
		return
	}

	st, err := d.userStore(ctx)
	if err != nil {
		logger.Fatal("building the store", zap.Error(err))
	}
	if err := st.SaveUser(ctx, user); err != nil {
		logger.Fatal("saving the user", zap.String("user", user.ID), zap.Error(err))
	}
	logger.Info("user saved", zap.String("user", user.ID), zap.String("store", d.cfg.Store.Driver))
}
