package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/curadesk/identity/internal/model"
	"github.com/curadesk/identity/internal/secret"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed development data",
		Long:  "Create one user per role with an API key each. For local development only.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed()
		},
	}
}

func runSeed() error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	seeds := []struct {
		email string
		role  model.Role
	}{
		{"admin@curadesk.local", model.RoleAdmin},
		{"support@curadesk.local", model.RoleSupport},
		{"customer@curadesk.local", model.RoleCustomer},
	}

	for _, s := range seeds {
		user, err := st.CreateUser(ctx, s.email, s.role, model.SubscriptionActive)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", s.email, err)
		}
		gen, err := secret.GenerateAPIKey()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		if _, err := st.InsertAPIKey(ctx, gen.Hash, gen.Prefix, user.ID); err != nil {
			return fmt.Errorf("seed key for %s: %w", s.email, err)
		}
		fmt.Printf("%-10s %s\n           key: %s\n", s.role, s.email, gen.Secret)
	}

	fmt.Println("\nSeed complete. The keys above are shown only once.")
	return nil
}
