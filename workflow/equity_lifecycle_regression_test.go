package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicesolutions/equity_backend/config"
	"github.com/alicesolutions/equity_backend/models"
	"github.com/alicesolutions/equity_backend/utils"
	"github.com/alicesolutions/equity_backend/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Covers the offer lifecycle end to end against a real MySQL: accept posts to
// the cap table and decrements the reserve, terminal offers refuse a second
// action, creation fails against an exhausted reserve, and expiry is enforced
// lazily at accept time. Redis stays unset; the engine runs without it.
func TestOfferLifecycle_AcceptPostsEquityAndGuards(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "equity_test")

	db := config.ConnectDatabase()
	models.MigrateTable(db)

	logger := config.GetLogger()
	audit := workflow.NewAuditRecorder(db, logger)

	now := time.Now().UTC().Truncate(24 * time.Hour)
	engine := workflow.NewEngine(db, logger, workflow.FixedClock{T: now}, audit)

	businessId := uuid.NewString()
	founderCtx := utils.SetBusinessIdInContext(context.Background(), businessId)

	founder, err := models.CreateUser(db, founderCtx, &models.NewUser{Username: "founder", Password: "password123"})
	if err != nil {
		t.Fatalf("CreateUser(founder): %v", err)
	}
	contributor, err := models.CreateUser(db, founderCtx, &models.NewUser{Username: "contributor", Password: "password123"})
	if err != nil {
		t.Fatalf("CreateUser(contributor): %v", err)
	}
	founderCtx = utils.SetUserIdInContext(founderCtx, founder.ID)
	contributorCtx := utils.SetUserIdInContext(
		utils.SetBusinessIdInContext(context.Background(), businessId), contributor.ID)

	// A partial reserve must leave a balanced pool: the creator holds the
	// remainder, nothing is seeded by hand.
	project, err := models.CreateProject(db, founderCtx, &models.NewProject{
		Name:              "SmartStart Platform",
		Category:          "SaaS",
		ProjectValue:      decimal.NewFromInt(500000),
		ReservePercentage: decimal.NewFromInt(20),
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	founderEntry, err := models.GetHolderEntry(db, founderCtx, businessId, project.ID, founder.ID)
	if err != nil {
		t.Fatalf("GetHolderEntry(founder): %v", err)
	}
	if !founderEntry.Percentage.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("founder remainder: expected 80, got %s", founderEntry.Percentage)
	}
	assertCapTableSums100(t, db, founderCtx, businessId, project.ID)

	offer, err := engine.CreateOffer(founderCtx, &models.NewContractOffer{
		ProjectId:        project.ID,
		RecipientId:      contributor.ID,
		EquityPercentage: decimal.NewFromInt(5),
		VestingSchedule:  models.VestingScheduleImmediate,
		ContributionType: models.ContributionTypeDevelopment,
		EffortHours:      120,
	})
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.Status != models.ContractStatusPending {
		t.Fatalf("new offer must be PENDING, got %s", offer.Status)
	}
	if !offer.ExpiresAt.Equal(now.AddDate(0, 0, models.OfferExpiryDays)) {
		t.Fatalf("expiry: expected %s, got %s", now.AddDate(0, 0, models.OfferExpiryDays), offer.ExpiresAt)
	}

	// Only the recipient may accept.
	if _, err := engine.AcceptOffer(founderCtx, offer.ID, founder.ID); !utils.IsKind(err, utils.ErrorKindAuthorization) {
		t.Fatalf("non-recipient accept: expected AUTHORIZATION, got %v", err)
	}

	accepted, err := engine.AcceptOffer(contributorCtx, offer.ID, contributor.ID)
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	if accepted.Status != models.ContractStatusAccepted || accepted.AcceptedAt == nil {
		t.Fatalf("accepted offer not terminal: %+v", accepted)
	}

	entry, err := models.GetHolderEntry(db, contributorCtx, businessId, project.ID, contributor.ID)
	if err != nil {
		t.Fatalf("GetHolderEntry: %v", err)
	}
	if !entry.Percentage.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("holder entry: expected 5, got %s", entry.Percentage)
	}
	reserve, err := models.GetReserveEntry(db, contributorCtx, businessId, project.ID)
	if err != nil {
		t.Fatalf("GetReserveEntry: %v", err)
	}
	if !reserve.Percentage.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("reserve: expected 15, got %s", reserve.Percentage)
	}
	assertCapTableSums100(t, db, contributorCtx, businessId, project.ID)

	// IMMEDIATE vests in full at acceptance with its initial event.
	var vesting models.EquityVesting
	if err := db.WithContext(contributorCtx).Where("contract_id = ?", offer.ID).First(&vesting).Error; err != nil {
		t.Fatalf("fetch vesting: %v", err)
	}
	if !vesting.VestedEquity.Equal(vesting.TotalEquity) {
		t.Fatalf("IMMEDIATE must vest in full, got %s of %s", vesting.VestedEquity, vesting.TotalEquity)
	}
	var initialEvents int64
	if err := db.WithContext(contributorCtx).Model(&models.VestingEvent{}).
		Where("vesting_id = ? AND event_type = ?", vesting.ID, models.VestingEventTypeInitial).
		Count(&initialEvents).Error; err != nil {
		t.Fatalf("count vesting events: %v", err)
	}
	if initialEvents != 1 {
		t.Fatalf("expected 1 INITIAL event, got %d", initialEvents)
	}
	var signatures int64
	if err := db.WithContext(contributorCtx).Model(&models.ContractSignature{}).
		Where("contract_id = ?", offer.ID).Count(&signatures).Error; err != nil {
		t.Fatalf("count signatures: %v", err)
	}
	if signatures != 1 {
		t.Fatalf("expected 1 signature, got %d", signatures)
	}

	// A second accept is refused and posts nothing.
	if _, err := engine.AcceptOffer(contributorCtx, offer.ID, contributor.ID); !utils.IsKind(err, utils.ErrorKindInvalidState) {
		t.Fatalf("double accept: expected INVALID_STATE, got %v", err)
	}
	entry, err = models.GetHolderEntry(db, contributorCtx, businessId, project.ID, contributor.ID)
	if err != nil {
		t.Fatalf("GetHolderEntry after double accept: %v", err)
	}
	if !entry.Percentage.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("double accept changed the cap table: %s", entry.Percentage)
	}

	// Offers beyond the remaining reserve are refused at creation.
	tight, err := models.CreateProject(db, founderCtx, &models.NewProject{
		Name:              "Tight Pool",
		Category:          "SaaS",
		ReservePercentage: decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("CreateProject(tight): %v", err)
	}
	_, err = engine.CreateOffer(founderCtx, &models.NewContractOffer{
		ProjectId:        tight.ID,
		RecipientId:      contributor.ID,
		EquityPercentage: decimal.NewFromInt(3),
		ContributionType: models.ContributionTypeDesign,
	})
	if !utils.IsKind(err, utils.ErrorKindInsufficientReserve) {
		t.Fatalf("over-reserve offer: expected INSUFFICIENT_RESERVE, got %v", err)
	}
	var tightOffers int64
	if err := db.WithContext(founderCtx).Model(&models.ContractOffer{}).
		Where("project_id = ?", tight.ID).Count(&tightOffers).Error; err != nil {
		t.Fatalf("count tight offers: %v", err)
	}
	if tightOffers != 0 {
		t.Fatalf("refused offer must not persist, found %d rows", tightOffers)
	}

	// Expiry is enforced lazily: no sweeper has run, the row still says
	// PENDING, and accept must still refuse it.
	stale, err := engine.CreateOffer(founderCtx, &models.NewContractOffer{
		ProjectId:        project.ID,
		RecipientId:      contributor.ID,
		EquityPercentage: decimal.NewFromInt(1),
		ContributionType: models.ContributionTypeAdvisory,
	})
	if err != nil {
		t.Fatalf("CreateOffer(stale): %v", err)
	}
	lateEngine := workflow.NewEngine(db, logger, workflow.FixedClock{T: now.AddDate(0, 0, 31)}, audit)
	if _, err := lateEngine.AcceptOffer(contributorCtx, stale.ID, contributor.ID); !utils.IsKind(err, utils.ErrorKindExpired) {
		t.Fatalf("stale accept: expected EXPIRED, got %v", err)
	}
	refetched, err := engine.GetOffer(contributorCtx, stale.ID)
	if err != nil {
		t.Fatalf("GetOffer(stale): %v", err)
	}
	if refetched.Status != models.ContractStatusPending {
		t.Fatalf("lazy expiry must not flip the row, got %s", refetched.Status)
	}
	assertCapTableSums100(t, db, contributorCtx, businessId, project.ID)

	// Reject works past expiry and leaves the cap table alone.
	reason := "scope changed"
	rejected, err := lateEngine.RejectOffer(contributorCtx, stale.ID, contributor.ID, reason)
	if err != nil {
		t.Fatalf("RejectOffer: %v", err)
	}
	if rejected.Status != models.ContractStatusRejected || rejected.RejectedAt == nil {
		t.Fatalf("reject not terminal: %+v", rejected)
	}
	if rejected.RejectionReason == nil || *rejected.RejectionReason != reason {
		t.Fatalf("rejection reason not stored: %v", rejected.RejectionReason)
	}
	assertCapTableSums100(t, db, contributorCtx, businessId, project.ID)

	// Close drains the fire-and-forget queue, so the trail is complete here.
	audit.Close()
	for _, action := range []models.AuditAction{models.AuditActionCreate, models.AuditActionAccept, models.AuditActionReject} {
		var n int64
		if err := db.WithContext(founderCtx).Model(&models.AuditEvent{}).
			Where("action = ?", action).Count(&n).Error; err != nil {
			t.Fatalf("count audit %s: %v", action, err)
		}
		if n == 0 {
			t.Fatalf("expected at least one %s audit event", action)
		}
	}
}

// Covers the daily batch: monthly schedules credit the owed delta exactly
// once, a same-day rerun is a no-op, and stale PENDING offers are swept to
// EXPIRED.
func TestVestingBatch_CreditsDeltaOncePerDay(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "equity_test")

	db := config.ConnectDatabase()
	models.MigrateTable(db)

	logger := config.GetLogger()
	audit := workflow.NewAuditRecorder(db, logger)
	defer audit.Close()

	start := time.Now().UTC().Truncate(24 * time.Hour)
	engine := workflow.NewEngine(db, logger, workflow.FixedClock{T: start}, audit)

	businessId := uuid.NewString()
	founderCtx := utils.SetBusinessIdInContext(context.Background(), businessId)

	founder, err := models.CreateUser(db, founderCtx, &models.NewUser{Username: "founder", Password: "password123"})
	if err != nil {
		t.Fatalf("CreateUser(founder): %v", err)
	}
	contributor, err := models.CreateUser(db, founderCtx, &models.NewUser{Username: "contributor", Password: "password123"})
	if err != nil {
		t.Fatalf("CreateUser(contributor): %v", err)
	}
	founderCtx = utils.SetUserIdInContext(founderCtx, founder.ID)
	contributorCtx := utils.SetUserIdInContext(
		utils.SetBusinessIdInContext(context.Background(), businessId), contributor.ID)

	project, err := models.CreateProject(db, founderCtx, &models.NewProject{
		Name:              "Vesting Pool",
		Category:          "Fintech",
		ReservePercentage: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	total := decimal.NewFromFloat(4.8)
	offer, err := engine.CreateOffer(founderCtx, &models.NewContractOffer{
		ProjectId:        project.ID,
		RecipientId:      contributor.ID,
		EquityPercentage: total,
		VestingSchedule:  models.VestingScheduleMonthly,
		ContributionType: models.ContributionTypeDevelopment,
	})
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if _, err := engine.AcceptOffer(contributorCtx, offer.ID, contributor.ID); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}

	// A second accepted offer re-stamps the holder's entry with its own
	// contract id; the batch must still flag that entry when the FIRST
	// contract's schedule vests.
	followUp, err := engine.CreateOffer(founderCtx, &models.NewContractOffer{
		ProjectId:        project.ID,
		RecipientId:      contributor.ID,
		EquityPercentage: decimal.NewFromInt(1),
		VestingSchedule:  models.VestingScheduleImmediate,
		ContributionType: models.ContributionTypeOperations,
	})
	if err != nil {
		t.Fatalf("CreateOffer(follow-up): %v", err)
	}
	if _, err := engine.AcceptOffer(contributorCtx, followUp.ID, contributor.ID); err != nil {
		t.Fatalf("AcceptOffer(follow-up): %v", err)
	}

	// A second PENDING offer left to rot; the sweep must expire it.
	doomed, err := engine.CreateOffer(founderCtx, &models.NewContractOffer{
		ProjectId:        project.ID,
		RecipientId:      contributor.ID,
		EquityPercentage: decimal.NewFromInt(1),
		ContributionType: models.ContributionTypeMarketing,
	})
	if err != nil {
		t.Fatalf("CreateOffer(doomed): %v", err)
	}

	var vesting models.EquityVesting
	if err := db.WithContext(contributorCtx).Where("contract_id = ?", offer.ID).First(&vesting).Error; err != nil {
		t.Fatalf("fetch vesting: %v", err)
	}
	if !vesting.VestedEquity.IsZero() {
		t.Fatalf("MONTHLY must start unvested, got %s", vesting.VestedEquity)
	}

	// Six months later: exactly half the grant is owed.
	halfway := start.AddDate(0, 6, 0)
	runner := workflow.NewEngine(db, logger, workflow.FixedClock{T: halfway}, audit)
	result, err := runner.ProcessVestingEvents(context.Background())
	if err != nil {
		t.Fatalf("ProcessVestingEvents: %v", err)
	}
	if result.Vested != 1 {
		t.Fatalf("expected 1 schedule to vest, got %+v", result)
	}
	if result.Expired != 1 {
		t.Fatalf("expected the stale offer to expire, got %+v", result)
	}

	expectedVested := total.Div(decimal.NewFromInt(2))
	if err := db.WithContext(contributorCtx).Where("contract_id = ?", offer.ID).First(&vesting).Error; err != nil {
		t.Fatalf("refetch vesting: %v", err)
	}
	if !vesting.VestedEquity.Equal(expectedVested) {
		t.Fatalf("halfway vested: expected %s, got %s", expectedVested, vesting.VestedEquity)
	}
	var timeBased []models.VestingEvent
	if err := db.WithContext(contributorCtx).
		Where("vesting_id = ? AND event_type = ?", vesting.ID, models.VestingEventTypeTimeBased).
		Find(&timeBased).Error; err != nil {
		t.Fatalf("fetch time-based events: %v", err)
	}
	if len(timeBased) != 1 || !timeBased[0].Amount.Equal(expectedVested) {
		t.Fatalf("expected one TIME_BASED event of %s, got %+v", expectedVested, timeBased)
	}
	entry, err := models.GetHolderEntry(db, contributorCtx, businessId, project.ID, contributor.ID)
	if err != nil {
		t.Fatalf("GetHolderEntry: %v", err)
	}
	if entry.IsVested == nil || !*entry.IsVested {
		t.Fatalf("cap table entry not flagged vested")
	}

	swept, err := runner.GetOffer(contributorCtx, doomed.ID)
	if err != nil {
		t.Fatalf("GetOffer(doomed): %v", err)
	}
	if swept.Status != models.ContractStatusExpired {
		t.Fatalf("sweep must flip stale offers to EXPIRED, got %s", swept.Status)
	}

	// Same-day rerun is idempotent: the whole pass is skipped.
	again, err := runner.ProcessVestingEvents(context.Background())
	if err != nil {
		t.Fatalf("ProcessVestingEvents(rerun): %v", err)
	}
	if again.Processed != 0 || again.Vested != 0 {
		t.Fatalf("rerun must be a no-op, got %+v", again)
	}
	if err := db.WithContext(contributorCtx).Where("contract_id = ?", offer.ID).First(&vesting).Error; err != nil {
		t.Fatalf("refetch vesting after rerun: %v", err)
	}
	if !vesting.VestedEquity.Equal(expectedVested) {
		t.Fatalf("rerun credited extra equity: %s", vesting.VestedEquity)
	}

	// The next day lands mid-period: examined but nothing new owed.
	nextDay := workflow.NewEngine(db, logger, workflow.FixedClock{T: halfway.AddDate(0, 0, 1)}, audit)
	third, err := nextDay.ProcessVestingEvents(context.Background())
	if err != nil {
		t.Fatalf("ProcessVestingEvents(next day): %v", err)
	}
	if third.Processed == 0 || third.Vested != 0 {
		t.Fatalf("mid-period day must credit nothing, got %+v", third)
	}
}

func assertCapTableSums100(t *testing.T, db *gorm.DB, ctx context.Context, businessId string, projectId int) {
	t.Helper()
	sum, err := models.SumProjectPercentages(db, ctx, businessId, projectId)
	if err != nil {
		t.Fatalf("SumProjectPercentages: %v", err)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("cap table must sum to 100, got %s", sum)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("equity-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=equity_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
