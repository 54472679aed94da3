package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"prompt-chaining/backend/internal/auth"
	"prompt-chaining/backend/internal/config"
	"prompt-chaining/backend/internal/logging"
	"prompt-chaining/backend/internal/repository"
	"prompt-chaining/backend/internal/services"
	"prompt-chaining/backend/pkg/models"
)

type cli struct {
	configFile   string
	envFile      string
	email        string
	password     string
	workflowFile string
}

func (c *cli) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := logging.NewLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadConfig(c.configFile, c.envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := repository.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(context.Background()) }()

	if cfg.Store.Driver == config.DriverMemory {
		logger.Warn("seeding the memory store has no lasting effect")
	}

	// 1. Ensure the administrator exists
	if c.email != "" {
		if err := c.seedAdmin(ctx, cfg, store, logger); err != nil {
			return err
		}
	}

	// 2. Replace the stored workflow
	if c.workflowFile != "" {
		nodes, err := loadDefinition(c.workflowFile)
		if err != nil {
			return err
		}
		svc := services.NewWorkflowService(store, nil, logger)
		wf, err := svc.CreateWorkflow(ctx, nodes)
		if err != nil {
			return fmt.Errorf("workflow %s rejected: %w", c.workflowFile, err)
		}
		logger.Info("Seeded workflow", "id", wf.ID, "nodes", len(wf.Nodes))
	}

	logger.Info("Seeding complete!")
	return nil
}

func (c *cli) seedAdmin(ctx context.Context, cfg *config.Config, store repository.Repository, logger *logging.Logger) error {
	password := c.password
	if password == "" {
		password = os.Getenv("SEED_ADMIN_PASSWORD")
	}
	if password == "" {
		return errors.New("admin password is required (--password or SEED_ADMIN_PASSWORD)")
	}

	secret := cfg.JWT.Secret
	if secret == "" {
		secret = "seed-unused"
	}
	tokens, err := auth.NewTokenIssuer(secret, time.Hour)
	if err != nil {
		return err
	}
	accounts := services.NewAuthService(store, tokens, cfg.JWT.RefreshTTL, logger)

	user, err := accounts.SignUp(ctx, services.SignUpInput{
		Email:     c.email,
		Password:  password,
		FirstName: "Admin",
		LastName:  "User",
		Role:      string(models.RoleAdmin),
	})
	if errors.Is(err, services.ErrEmailInUse) {
		logger.Info("Skipping existing admin", "email", c.email)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	logger.Info("Created admin", "id", user.ID, "email", user.Email)
	return nil
}

func main() {
	c := &cli{}

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Create the administrator account and load a workflow definition",
		RunE:         c.run,
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&c.configFile, "config", "", "Path to config file")
	cmd.Flags().StringVar(&c.envFile, "env", "", "Path to .env file")
	cmd.Flags().StringVar(&c.email, "email", "admin@localhost.dev", "Administrator email; empty skips the account")
	cmd.Flags().StringVar(&c.password, "password", "", "Administrator password")
	cmd.Flags().StringVar(&c.workflowFile, "workflow", "", "Workflow definition file (.json, .yaml or .yml)")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
