// larder is the operator CLI of the recipe store.
//
// # Commands
//
//	larder import FILE...       Load users, recipes, meal plans and collections from YAML
//	larder recipes              List or search recipes
//	larder shopping-list        Build the shopping list of a user's meal plan
//	larder schema               Print the table layout
//	larder version              Print the version
//
// Configuration is read from the nearest larder.yaml, see package config.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/acksell/larder/config"
)

const version = "0.1.0"

type cliContext struct {
	configPath  string
	userID      string
	format      string
	showMetrics bool

	// app, when set, is used instead of one built from the config.
	app *app
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "larder: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&cliContext{})
}

func newRootCmdWith(cc *cliContext) *cobra.Command {
	root := &cobra.Command{
		Use:           "larder",
		Short:         "recipe store operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&cc.configPath, "config", "", "path to larder.yaml (default: nearest larder.yaml upwards)")
	pf.StringVar(&cc.userID, "user", "", "id of the user the command acts for")
	pf.StringVarP(&cc.format, "output", "o", "text", "output format: text, json or yaml")
	pf.BoolVar(&cc.showMetrics, "metrics", false, "print metrics to stderr when done")

	root.AddCommand(
		newImportCmd(cc),
		newRecipesCmd(cc),
		newShoppingListCmd(cc),
		newSchemaCmd(cc),
		&cobra.Command{
			Use:   "version",
			Short: "print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "larder version %s\n", version)
			},
		},
	)
	return root
}

func (cc *cliContext) loadConfig() (config.Config, error) {
	return config.Load(cc.configPath)
}

// open builds the app for commands that touch the store. The returned
// func closes it and prints metrics if asked.
func (cc *cliContext) open(cmd *cobra.Command) (*app, func(), error) {
	if cc.app != nil {
		return cc.app, func() {}, nil
	}
	cfg, err := cc.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := cfg.Logger()
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	done := func() {
		if cc.showMetrics {
			if err := a.metrics.WriteSummary(cmd.ErrOrStderr()); err != nil {
				log.Warn("write metrics", zap.Error(err))
			}
		}
		if err := a.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
		_ = log.Sync()
	}
	return a, done, nil
}

func (cc *cliContext) requireUser() error {
	if cc.userID == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}
