/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/slotkeeper/internal/auth"
	"github.com/friendsincode/slotkeeper/internal/db"
	"github.com/friendsincode/slotkeeper/internal/models"
	"github.com/friendsincode/slotkeeper/internal/store"
)

var (
	userEmail     string
	userFirstName string
	userLastName  string
	userRole      string
	userPassword  string
	tokenTTL      time.Duration
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a client or provider account",
	Long: `Create an account that can log in through /api/v1/auth/login.

Examples:
  slotkeeper user add --email pat@example.com --first Pat --last Smith --role provider --password secret
  slotkeeper user add --email alex@example.com --role client --password secret`,
	RunE: runUserAdd,
}

var tokenCmd = &cobra.Command{
	Use:   "token <email>",
	Short: "Issue an API token for an existing account",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Account email (required)")
	userAddCmd.Flags().StringVar(&userFirstName, "first", "", "First name")
	userAddCmd.Flags().StringVar(&userLastName, "last", "", "Last name")
	userAddCmd.Flags().StringVar(&userRole, "role", "client", "Account role: client or provider")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "Login password (required)")
	_ = userAddCmd.MarkFlagRequired("email")
	_ = userAddCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userAddCmd)

	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to SLOTKEEPER_JWT_TTL)")

	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	user, err := auth.NewUser(userEmail, userFirstName, userLastName, models.Role(strings.ToUpper(userRole)), userPassword)
	if err != nil {
		return err
	}
	if err := store.NewGorm(database).CreateUser(cmd.Context(), user); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", strings.ToLower(string(user.Role)), user.Email, user.ID)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	user, err := store.NewGorm(database).GetUserByEmail(cmd.Context(), strings.ToLower(strings.TrimSpace(args[0])))
	if err != nil {
		return err
	}
	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.JWTTTL
	}
	token, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.Claims{UserID: user.ID, Role: user.Role}, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
