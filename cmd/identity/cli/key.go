package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/curadesk/identity/internal/secret"
	"github.com/curadesk/identity/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke API keys. The raw key is shown once at creation and cannot be retrieved again.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

func newKeyCreateCmd() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create an API key for a user",
		Example: `  identity key create --user-id 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(userID)
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "Owning user id (required)")
	cmd.MarkFlagRequired("user-id")

	return cmd
}

func runKeyCreate(userID int64) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	user, err := st.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}

	gen, err := secret.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if _, err := st.InsertAPIKey(ctx, gen.Hash, gen.Prefix, user.ID); err != nil {
		return fmt.Errorf("store key: %w", err)
	}

	fmt.Println("==============================================")
	fmt.Println("API KEY CREATED (save this - shown only once!)")
	fmt.Printf("Key:    %s\n", gen.Secret)
	fmt.Printf("Prefix: %s\n", gen.Prefix)
	fmt.Printf("User:   %s (id=%d)\n", user.Email, user.ID)
	fmt.Println("==============================================")
	return nil
}

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys (prefix and status only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	keys, err := st.ListAPIKeys(context.Background())
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	type keyRow struct {
		ID      int64  `json:"id"`
		Prefix  string `json:"prefix"`
		UserID  int64  `json:"user_id"`
		Active  bool   `json:"active"`
		Created string `json:"created"`
	}
	rows := make([]keyRow, len(keys))
	for i, k := range keys {
		rows[i] = keyRow{
			ID:      k.ID,
			Prefix:  k.KeyPrefix,
			UserID:  k.UserID,
			Active:  k.Active(),
			Created: k.CreatedAt.Format("2006-01-02 15:04"),
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No API keys. Use 'identity key create' to create one.")
		return nil
	}

	fmt.Printf("%-5s %-14s %-8s %-8s %s\n", "ID", "PREFIX", "USER", "ACTIVE", "CREATED")
	for _, k := range rows {
		active := "yes"
		if !k.Active {
			active = "no"
		}
		fmt.Printf("%-5d %-14s %-8d %-8s %s\n", k.ID, k.Prefix, k.UserID, active, k.Created)
	}
	return nil
}

func newKeyRevokeCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:     "revoke",
		Short:   "Revoke API keys by prefix",
		Example: `  identity key revoke --prefix sk_a1B2c3D4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(prefix)
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix, e.g. sk_a1B2c3D4 (required)")
	cmd.MarkFlagRequired("prefix")

	return cmd
}

func runKeyRevoke(prefix string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	n, err := st.RevokeKeyByPrefix(context.Background(), prefix)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no active key found with prefix %s", prefix)
		}
		return fmt.Errorf("revoke key: %w", err)
	}

	fmt.Printf("Revoked %d key(s) with prefix %s\n", n, prefix)
	return nil
}
