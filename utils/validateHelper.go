package utils

import (
	"context"
	"reflect"

	"gorm.io/gorm"
)

// check if id exists, using businessId in WHERE, returns RecordNotFound error
func ValidateResourceId[T any](db *gorm.DB, ctx context.Context, businessId string, id interface{}) error {

	count, err := ResourceCountWhere[T](db, ctx, businessId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

func ValidateUnique[T any](db *gorm.DB, ctx context.Context, businessId string, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](db, ctx, businessId, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](db, ctx, businessId, column+" = ? AND id <> ?", value, exceptId)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return E(ErrorKindValidation, column+" already exists")
	}
	return nil
}
