package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/curadesk/identity/internal/secret"
)

func newCodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Manage activation codes",
		Long: `Create and list one-time activation codes. Issuing a code supersedes all
of the user's previously unissued codes; the raw code is shown once.`,
	}

	cmd.AddCommand(newCodeCreateCmd())
	cmd.AddCommand(newCodeListCmd())

	return cmd
}

func newCodeCreateCmd() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create an activation code for a user",
		Example: `  identity code create --user-id 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCodeCreate(userID)
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "Owning user id (required)")
	cmd.MarkFlagRequired("user-id")

	return cmd
}

func runCodeCreate(userID int64) error {
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

	gen, err := secret.GenerateActivationCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	if _, err := st.IssueActivationCode(ctx, user.ID, gen.Hash, gen.Prefix); err != nil {
		return fmt.Errorf("store code: %w", err)
	}

	fmt.Println("==============================================")
	fmt.Println("ACTIVATION CODE (save this - shown only once!)")
	fmt.Printf("Code:   %s\n", gen.Secret)
	fmt.Printf("Prefix: %s\n", gen.Prefix)
	fmt.Printf("User:   %s (id=%d)\n", user.Email, user.ID)
	fmt.Println("==============================================")
	return nil
}

func newCodeListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all activation codes (prefix and status only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCodeList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runCodeList(jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	codes, err := st.ListActivationCodes(context.Background())
	if err != nil {
		return fmt.Errorf("list codes: %w", err)
	}

	type codeRow struct {
		ID      int64  `json:"id"`
		Prefix  string `json:"prefix"`
		UserID  int64  `json:"user_id"`
		Unused  bool   `json:"unused"`
		Created string `json:"created"`
	}
	rows := make([]codeRow, len(codes))
	for i, c := range codes {
		rows[i] = codeRow{
			ID:      c.ID,
			Prefix:  c.CodePrefix,
			UserID:  c.UserID,
			Unused:  c.Unused(),
			Created: c.CreatedAt.Format("2006-01-02 15:04"),
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No activation codes.")
		return nil
	}

	fmt.Printf("%-5s %-10s %-8s %-8s %s\n", "ID", "PREFIX", "USER", "UNUSED", "CREATED")
	for _, c := range rows {
		unused := "yes"
		if !c.Unused {
			unused = "no"
		}
		fmt.Printf("%-5d %-10s %-8d %-8s %s\n", c.ID, c.Prefix, c.UserID, unused, c.Created)
	}
	return nil
}
