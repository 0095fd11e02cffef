package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/display"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var (
	userID       string
	userEmail    string
	userRole     string
	userKeywords []string
	userContext  string
	userStatus   string
	userExpires  time.Duration
	tokenFile    string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user profiles",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or replace a user profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := &core.UserProfile{
			ID:       userID,
			Email:    userEmail,
			Role:     core.ParseRole(userRole),
			Keywords: core.NormalizeKeywords(userKeywords),
			Context:  userContext,
			Subscription: core.SubscriptionState{
				Status: core.SubscriptionStatus(userStatus),
			},
		}
		if userExpires > 0 {
			profile.Subscription.ExpiresAt = time.Now().Add(userExpires)
		}
		if err := profile.Validate(); err != nil {
			return err
		}

		return container.Invoke(func(s core.Store) error {
			if existing, err := s.GetProfile(cmd.Context(), userID); err == nil {
				profile.CreatedAt = existing.CreatedAt
				profile.Subscription.FreeScanUsed = existing.Subscription.FreeScanUsed
			}
			if err := s.SaveProfile(cmd.Context(), profile); err != nil {
				return err
			}
			display.SuccessMsg(cmd.OutOrStdout(), "saved profile %s (%s)", profile.ID, profile.Role)
			return nil
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return container.Invoke(func(s core.Store) error {
			profiles, err := s.ListProfiles(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), profiles)
			}
			for _, p := range profiles {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-30s %-9s %-10s %v\n",
					p.ID, p.Email, p.Role, p.Subscription.Status, p.Keywords)
			}
			return nil
		})
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Store a user's Gmail OAuth token",
	Long:  "Connect reads an OAuth2 token JSON file (access_token, refresh_token, expiry) and stores it as the user's mailbox credential.",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return fmt.Errorf("failed to read token file: %w", err)
		}
		var tok oauth2.Token
		if err := json.Unmarshal(data, &tok); err != nil {
			return fmt.Errorf("failed to parse token file: %w", err)
		}
		if tok.AccessToken == "" && tok.RefreshToken == "" {
			return fmt.Errorf("token file has neither access_token nor refresh_token")
		}

		return container.Invoke(func(s core.Store) error {
			if _, err := s.GetProfile(cmd.Context(), userID); err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}
			cred := &core.Credential{
				UserID:       userID,
				AccessToken:  tok.AccessToken,
				RefreshToken: tok.RefreshToken,
				Expiry:       tok.Expiry,
			}
			if err := s.ReplaceCredential(cmd.Context(), cred); err != nil {
				return err
			}
			display.SuccessMsg(cmd.OutOrStdout(), "connected mailbox for %s", userID)
			return nil
		})
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Remove a user's stored mailbox credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		return container.Invoke(func(s core.Store) error {
			if err := s.DeleteCredential(cmd.Context(), userID); err != nil {
				return err
			}
			display.SuccessMsg(cmd.OutOrStdout(), "disconnected %s", userID)
			return nil
		})
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userID, "id", "", "User id")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Mailbox address")
	userAddCmd.Flags().StringVar(&userRole, "role", "other", "investor, operator or other")
	userAddCmd.Flags().StringSliceVar(&userKeywords, "keywords", nil, "Comma-separated focus keywords")
	userAddCmd.Flags().StringVar(&userContext, "context", "", "Free-text context for the classifier")
	userAddCmd.Flags().StringVar(&userStatus, "status", string(core.SubscriptionTrial), "trial, active, expired or cancelled")
	userAddCmd.Flags().DurationVar(&userExpires, "expires-in", 0, "Subscription lifetime from now (0 never expires)")
	userAddCmd.MarkFlagRequired("id")
	userCmd.AddCommand(userAddCmd, userListCmd)

	connectCmd.Flags().StringVar(&userID, "user", "", "User id")
	connectCmd.Flags().StringVar(&tokenFile, "token-file", "", "OAuth2 token JSON file")
	connectCmd.MarkFlagRequired("user")
	connectCmd.MarkFlagRequired("token-file")

	disconnectCmd.Flags().StringVar(&userID, "user", "", "User id")
	disconnectCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(userCmd, connectCmd, disconnectCmd)
}
