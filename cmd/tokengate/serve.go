// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openchami/tokengate/pkg/tokenservice"
)

var (
	listenAddr       string
	secretFile       string
	policyEngineType string
	profilesFile     string
	reloadInterval   string
	routePolicyFile  string
	routePolicyModel string
	metricsEnabled   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the token service",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyServeFlags(cmd, config); err != nil {
			return err
		}

		service, err := tokenservice.NewTokenService(config)
		if err != nil {
			return fmt.Errorf("failed to create token service: %w", err)
		}
		defer service.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return service.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address")
	serveCmd.Flags().StringVar(&secretFile, "secret-file", "", "Path to the HMAC signing secret")
	serveCmd.Flags().BoolVar(&metricsEnabled, "metrics", true, "Serve Prometheus metrics on /actuator/prometheus")

	// Policy engine flags
	serveCmd.Flags().StringVar(&policyEngineType, "policy-engine", "static", "Policy engine type (static, file-based)")
	serveCmd.Flags().StringVar(&profilesFile, "profiles", "", "Path to the token profile catalog (for file-based engine)")
	serveCmd.Flags().StringVar(&reloadInterval, "reload-interval", "", "How often the profile catalog is checked for changes, e.g. 30s")
	serveCmd.Flags().StringVar(&routePolicyFile, "route-policy", "", "Path to a casbin policy guarding the cache endpoints")
	serveCmd.Flags().StringVar(&routePolicyModel, "route-model", "", "Path to a casbin model; the built-in route model is used when empty")

	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags overlays the flags the user set explicitly; flags take precedence over every other source
func applyServeFlags(cmd *cobra.Command, config *tokenservice.Config) error {
	flags := cmd.Flags()

	if flags.Changed("listen") {
		config.ListenAddr = listenAddr
	}
	if flags.Changed("secret-file") {
		config.Token.SecretFile = secretFile
	}
	if flags.Changed("metrics") {
		config.MetricsEnabled = metricsEnabled
	}
	if flags.Changed("route-policy") {
		config.RoutePolicyFile = routePolicyFile
	}
	if flags.Changed("route-model") {
		config.RoutePolicyModel = routePolicyModel
	}

	if flags.Changed("policy-engine") || flags.Changed("profiles") || flags.Changed("reload-interval") {
		engine := ""
		if flags.Changed("policy-engine") {
			engine = policyEngineType
		}
		fc := &tokenservice.FileConfig{Policy: tokenservice.PolicyFileConfig{
			Engine:         engine,
			ProfilesFile:   profilesFile,
			ReloadInterval: reloadInterval,
		}}
		if err := fc.Apply(config); err != nil {
			return fmt.Errorf("failed to create policy engine config: %w", err)
		}
	}

	return nil
}
