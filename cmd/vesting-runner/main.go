// vesting-runner executes one vesting batch pass and exits. Intended to be
// invoked by an external scheduler (cron, Cloud Scheduler); the run is
// idempotent per calendar day.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/vesting-runner
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alicesolutions/equity_backend/config"
	"github.com/alicesolutions/equity_backend/models"
	"github.com/alicesolutions/equity_backend/workflow"
)

func main() {
	logger := config.GetLogger()
	db := config.ConnectDatabase()
	models.MigrateTable(db)

	audit := workflow.NewAuditRecorder(db, logger)
	defer audit.Close()
	engine := workflow.NewEngine(db, logger, workflow.RealClock{}, audit)

	result, err := engine.ProcessVestingEvents(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "vesting run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("vesting run complete: processed=%d vested=%d expired=%d\n",
		result.Processed, result.Vested, result.Expired)
}
