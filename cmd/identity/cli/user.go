package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/curadesk/identity/internal/model"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
		Long:  "Create and list user accounts in the identity store.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())

	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var (
		emailAddr string
		roleName  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user",
		Example: `  identity user create --email alice@example.com --role customer
  identity user create --email ops@example.com --role admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(emailAddr, roleName)
		},
	}

	cmd.Flags().StringVar(&emailAddr, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&roleName, "role", "", "Role: admin, support, or customer (required)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("role")

	return cmd
}

func runUserCreate(emailAddr, roleName string) error {
	role, err := model.ParseRole(roleName)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	user, err := st.CreateUser(context.Background(), emailAddr, role, model.SubscriptionActive)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("Created user %q with id %d\n", user.Email, user.ID)
	return nil
}

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	users, err := st.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Println("No users. Use 'identity user create' to add one.")
		return nil
	}

	fmt.Printf("%-5s %-32s %-10s %-10s %s\n", "ID", "EMAIL", "ROLE", "STATUS", "CREATED")
	for _, u := range users {
		fmt.Printf("%-5d %-32s %-10s %-10s %s\n",
			u.ID, u.Email, u.Role, u.SubscriptionStatus, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
