package stores

import (
	"context"
	"fmt"
	"notes-server/config"
	"notes-server/core"
	"notes-server/stores/aws"
	"notes-server/stores/badger"
	"notes-server/stores/filesystem"
	"notes-server/stores/memory"
	"notes-server/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetStore builds the note store selected by cfg.StorageType.
func GetStore(ctx context.Context, cfg config.Config) (core.NoteStore, error) {
	var (
		store core.NoteStore
		err   error
	)

	storageField := logrus.Fields{
		"storageType": cfg.StorageType,
	}

	switch cfg.StorageType {
	case "filesystem":
		storageField["basePath"] = cfg.LocalStoragePath
		store, err = filesystem.NewNoteStore(cfg.LocalStoragePath)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		store, err = sqlite.NewNoteStore(cfg.DataSourceName)
	case "badger":
		storageField["badgerPath"] = cfg.BadgerPath
		store, err = badger.NewNoteStore(cfg.BadgerPath)
	case "s3":
		storageField["bucketName"] = cfg.S3BucketName
		storageField["prefix"] = cfg.S3Prefix
		store, err = aws.NewNoteStore(ctx, cfg.S3BucketName, cfg.S3Prefix)
	default:
		store = memory.NewNoteStore()
		storageField["storageType"] = "in-memory"
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.StorageType, err)
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
