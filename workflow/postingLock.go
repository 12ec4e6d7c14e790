package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireCapTablePostingLock serializes cap-table mutation per project across
// instances using MySQL advisory locks. Two concurrent accepts against the
// same reserve must not interleave between the reserve read and the decrement.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB transaction that will do the posting.
func AcquireCapTablePostingLock(tx *gorm.DB, businessId string, projectId int) error {
	lockName := fmt.Sprintf("captable:%s:%d", businessId, projectId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire cap table lock for project_id=%d", projectId)
	}
	return nil
}

func ReleaseCapTablePostingLock(tx *gorm.DB, businessId string, projectId int) {
	lockName := fmt.Sprintf("captable:%s:%d", businessId, projectId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
