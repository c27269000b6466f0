package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openchami/tokengate/pkg/keys"
	"github.com/openchami/tokengate/pkg/token"
	"github.com/openchami/tokengate/pkg/tokenservice"
)

var (
	issueSubject     string
	issueRoles       []string
	issuePermissions []string
	issueAuthLevel   string
	issueIDP         string
	issueProfile     string
	issueLifetime    time.Duration

	secretOut    string
	secretLength int
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Mint a token offline with the configured secret",
	Example: `  tokengate issue --subject alice --roles USER --permissions CACHE_READ,CACHE_WRITE
  tokengate issue --profile cache-admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		tm, err := token.NewTokenManagerFromConfig(&config.Token)
		if err != nil {
			return err
		}

		subject, roles, permissions := issueSubject, issueRoles, issuePermissions
		level, idp, lifetime := issueAuthLevel, issueIDP, issueLifetime

		if issueProfile != "" {
			engine, err := tokenservice.NewPolicyEngine(config.PolicyEngine)
			if err != nil {
				return err
			}
			decision, err := engine.EvaluatePolicy(context.Background(), issueProfile)
			if err != nil {
				return fmt.Errorf("%w (known profiles: %s)", err, strings.Join(engine.Profiles(), ", "))
			}
			roles, permissions = decision.Roles, decision.Permissions
			if !cmd.Flags().Changed("subject") {
				subject = decision.Subject
			}
			if decision.AuthLevel != "" && !cmd.Flags().Changed("auth-level") {
				level = decision.AuthLevel
			}
			if decision.IdentityProvider != "" && !cmd.Flags().Changed("idp") {
				idp = decision.IdentityProvider
			}
			if decision.TokenLifetime != nil && !cmd.Flags().Changed("lifetime") {
				lifetime = *decision.TokenLifetime
			}
		}
		if subject == "" {
			return fmt.Errorf("--subject or --profile is required")
		}

		authLevel, err := token.ParseAuthLevel(level)
		if err != nil {
			return err
		}
		opts := []token.IssueOption{token.WithAuthLevel(authLevel), token.WithIdentityProvider(idp)}
		if lifetime > 0 {
			opts = append(opts, token.WithLifetime(lifetime))
		}

		signed, err := tm.Issue(subject, roles, permissions, opts...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate TOKEN",
	Short: "Verify a token offline and print its claims",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		tm, err := token.NewTokenManagerFromConfig(&config.Token)
		if err != nil {
			return err
		}

		claims, err := tm.Verify(strings.TrimSpace(args[0]))
		if err != nil {
			return fmt.Errorf("token is not valid (%s): %w", token.Reason(err), err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"valid":       true,
			"sub":         claims.Subject(),
			"roles":       claims.Roles(),
			"permissions": claims.Permissions(),
			"auth_level":  claims.AuthLevel(),
			"idp":         claims.IdentityProvider(),
			"jti":         claims.ID(),
			"iat":         claims.IssuedAt().UTC().Format(time.RFC3339),
			"exp":         claims.ExpiresAt().UTC().Format(time.RFC3339),
		})
	},
}

var generateSecretCmd = &cobra.Command{
	Use:   "generate-secret",
	Short: "Generate a random signing secret and write it to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		km := keys.NewKeyManager()
		if err := km.GenerateSecret(secretLength); err != nil {
			return err
		}
		if err := km.SaveSecret(secretOut); err != nil {
			return err
		}
		fmt.Printf("Generated signing secret at: %s\n", secretOut)
		fmt.Printf("Use it with --secret-file %s or JWT_SECRET_FILE=%s\n", secretOut, secretOut)
		return nil
	},
}

func init() {
	issueCmd.Flags().StringVar(&issueSubject, "subject", "", "Subject (sub claim)")
	issueCmd.Flags().StringSliceVar(&issueRoles, "roles", []string{"USER"}, "Roles")
	issueCmd.Flags().StringSliceVar(&issuePermissions, "permissions", []string{"CACHE_READ"}, "Permissions")
	issueCmd.Flags().StringVar(&issueAuthLevel, "auth-level", string(token.AAL1), "Authentication assurance level (AAL1, AAL2, AAL3)")
	issueCmd.Flags().StringVar(&issueIDP, "idp", token.DefaultIdentityProvider, "Identity provider claim")
	issueCmd.Flags().StringVar(&issueProfile, "profile", "", "Mint a predefined token profile instead")
	issueCmd.Flags().DurationVar(&issueLifetime, "lifetime", 0, "Token lifetime; the configured jwt expiration when zero")

	generateSecretCmd.Flags().StringVar(&secretOut, "out", "secret.key", "File to write the secret to")
	generateSecretCmd.Flags().IntVar(&secretLength, "length", 64, "Random bytes before encoding")

	rootCmd.AddCommand(issueCmd, validateCmd, generateSecretCmd)
}
