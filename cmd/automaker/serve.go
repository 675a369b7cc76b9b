package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahmedshikashaker/automaker/internal/kernel"
	"github.com/ahmedshikashaker/automaker/pkg/config"
	"github.com/ahmedshikashaker/automaker/pkg/logx"
)

// passwordEnvVar lets operators skip the interactive password prompt.
const passwordEnvVar = "AUTOMAKER_PASSWORD"

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the automaker daemon",
		Long:  "Loads project config, starts the run loop, and serves the control API until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path (default: search for .automaker/config.yaml)")
	return cmd
}

func runServe(configPath string) error {
	logger := logx.NewLogger("serve")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	secrets, err := loadSecretsForProject(cfg.Project.Path)
	if err != nil {
		return err
	}

	k, err := kernel.New(cfg, secrets)
	if err != nil {
		return fmt.Errorf("initialize kernel: %w", err)
	}
	if err := k.Start(); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- k.API.Start(cfg.HTTP.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received %s, shutting down", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("control API failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	return k.Stop(ctx)
}

// loadSecretsForProject decrypts the project secrets file when one
// exists. Without a secrets file (or password) providers fall back to
// environment variables.
func loadSecretsForProject(projectDir string) (*config.Secrets, error) {
	if !config.SecretsFileExists(projectDir) {
		return config.NewSecrets(), nil
	}

	password := os.Getenv(passwordEnvVar)
	if password == "" {
		var err error
		password, err = promptPassword("Enter project password: ")
		if err != nil {
			return nil, err
		}
	}

	secrets, err := config.LoadSecrets(projectDir, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt secrets: %w", err)
	}
	return secrets, nil
}
