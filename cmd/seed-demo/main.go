// seed-demo creates a demo tenant with two users and a project holding a full
// reserve, so offers can be exercised against a fresh database.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alicesolutions/equity_backend/config"
	"github.com/alicesolutions/equity_backend/models"
	"github.com/alicesolutions/equity_backend/utils"
	"github.com/shopspring/decimal"
)

const demoBusinessId = "demo"

func main() {
	ctx := context.Background()
	db := config.ConnectDatabase()
	models.MigrateTable(db)

	ctx = utils.SetBusinessIdInContext(ctx, demoBusinessId)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	founder, err := models.CreateUser(db, ctx, &models.NewUser{
		Username: "founder",
		Password: "founder-pass-1",
		Role:     "admin",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create founder: %v\n", err)
		os.Exit(1)
	}
	contributor, err := models.CreateUser(db, ctx, &models.NewUser{
		Username: "contributor",
		Password: "contributor-pass-1",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create contributor: %v\n", err)
		os.Exit(1)
	}

	project, err := models.CreateProject(db, ctx, &models.NewProject{
		Name:         "SmartStart Platform",
		Category:     "SaaS",
		Summary:      "Venture management and umbrella revenue platform",
		ProjectValue: decimal.NewFromInt(500000),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create project: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("seeded business=%s founder=%d contributor=%d project=%d\n",
		demoBusinessId, founder.ID, contributor.ID, project.ID)
}
