package models

import (
	"database/sql/driver"
	"errors"
)

type ContractStatus string

const (
	ContractStatusPending  ContractStatus = "PENDING"
	ContractStatusAccepted ContractStatus = "ACCEPTED"
	ContractStatusRejected ContractStatus = "REJECTED"
	// ContractStatusExpired is written by the batch sweep; acceptance also
	// rejects lazily on expires_at regardless of the stored status.
	ContractStatusExpired ContractStatus = "EXPIRED"
)

func (s ContractStatus) IsTerminal() bool {
	return s == ContractStatusAccepted || s == ContractStatusRejected || s == ContractStatusExpired
}

func (s *ContractStatus) Scan(value interface{}) error {
	str, ok := coerceString(value)
	if !ok {
		return errors.New("contract status must be string")
	}
	switch ContractStatus(str) {
	case ContractStatusPending, ContractStatusAccepted, ContractStatusRejected, ContractStatusExpired:
		*s = ContractStatus(str)
	default:
		return errors.New("invalid contract status")
	}
	return nil
}

func (s ContractStatus) Value() (driver.Value, error) {
	return string(s), nil
}

type VestingSchedule string

const (
	VestingScheduleImmediate VestingSchedule = "IMMEDIATE"
	VestingScheduleMonthly   VestingSchedule = "MONTHLY"
	VestingScheduleQuarterly VestingSchedule = "QUARTERLY"
	VestingScheduleAnnual    VestingSchedule = "ANNUAL"
	VestingScheduleCliff     VestingSchedule = "CLIFF"
	VestingScheduleMilestone VestingSchedule = "MILESTONE"
)

func (v *VestingSchedule) Scan(value interface{}) error {
	str, ok := coerceString(value)
	if !ok {
		return errors.New("vesting schedule must be string")
	}
	switch VestingSchedule(str) {
	case VestingScheduleImmediate, VestingScheduleMonthly, VestingScheduleQuarterly,
		VestingScheduleAnnual, VestingScheduleCliff, VestingScheduleMilestone:
		*v = VestingSchedule(str)
	default:
		return errors.New("invalid vesting schedule")
	}
	return nil
}

func (v VestingSchedule) Value() (driver.Value, error) {
	return string(v), nil
}

type ContributionType string

const (
	ContributionTypeDevelopment ContributionType = "DEVELOPMENT"
	ContributionTypeDesign      ContributionType = "DESIGN"
	ContributionTypeMarketing   ContributionType = "MARKETING"
	ContributionTypeOperations  ContributionType = "OPERATIONS"
	ContributionTypeAdvisory    ContributionType = "ADVISORY"
	ContributionTypeCapital     ContributionType = "CAPITAL"
)

type HolderType string

const (
	HolderTypeUser    HolderType = "USER"
	HolderTypeReserve HolderType = "RESERVE"
)

type VestingEventType string

const (
	VestingEventTypeInitial   VestingEventType = "INITIAL"
	VestingEventTypeTimeBased VestingEventType = "TIME_BASED"
)

type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionAccept AuditAction = "ACCEPT"
	AuditActionReject AuditAction = "REJECT"
	AuditActionVest   AuditAction = "VEST"
	AuditActionExpire AuditAction = "EXPIRE"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

func coerceString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}
