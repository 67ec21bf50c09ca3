package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/auth"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/config"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/db"
)

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage sensor API keys",
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Issue a new API key",
	Long: `Issue a new API key signed with the newest BM_HMAC_SECRET.
The key is printed once; only its HMAC is stored. Keep the printed ID to
revoke the key later.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secrets, err := config.HMACSecrets()
		if err != nil {
			return fmt.Errorf("failed to load HMAC secrets: %w", err)
		}
		queries, closeDB, err := openQueries()
		if err != nil {
			return err
		}
		defer closeDB()

		id, key, err := auth.CreateKey(cmd.Context(), queries, secrets, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "id:  %s\nkey: %s\n", id, key)
		return nil
	},
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke ID",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		queries, closeDB, err := openQueries()
		if err != nil {
			return err
		}
		defer closeDB()

		if err := auth.RevokeKey(cmd.Context(), queries, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
		return nil
	},
}

// openQueries opens the database and loads the named queries.
func openQueries() (*db.Queries, func() error, error) {
	database, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return queries, database.Close, nil
}

func init() {
	apiKeyCmd.AddCommand(apiKeyCreateCmd, apiKeyRevokeCmd)
	rootCmd.AddCommand(apiKeyCmd)
}
