package database

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

var (
	ErrDatabaseTimeout   = errors.New("timeout")
	ErrDuplicate         = errors.New("duplicate")
	ErrConnection        = errors.New("connection_error")
	ErrNotFound          = errors.New("not_found")
	ErrServerUnavailable = errors.New("server_unavailable")
)

// HandleMongoError converts MongoDB errors to standardized errors
func HandleMongoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsTimeout(err) {
		return ErrDatabaseTimeout
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if mongo.IsNetworkError(err) {
		return ErrConnection
	}
	if errors.Is(err, context.Canceled) {
		return ErrServerUnavailable
	}
	return err
}

// HandleGormError converts gorm/sqlite errors to standardized errors
func HandleGormError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case errors.Is(err, context.DeadlineExceeded):
		return ErrDatabaseTimeout
	case errors.Is(err, context.Canceled):
		return ErrServerUnavailable
	}
	return err
}
