package storage

import (
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/commitguru/internal/config"
	apperrors "github.com/rohankatakam/commitguru/internal/errors"
)

// Open connects the store selected by cfg.Type
func Open(cfg config.StorageConfig, logger logrus.FieldLogger) (Store, error) {
	switch cfg.Type {
	case "postgres":
		s, err := NewPostgresStore(cfg.PostgresDSN, logger)
		if err != nil {
			return nil, apperrors.DatabaseError(err, "open postgres store")
		}
		return s, nil
	case "sqlite", "":
		s, err := NewSQLiteStore(cfg.LocalPath, logger)
		if err != nil {
			return nil, apperrors.DatabaseError(err, "open sqlite store")
		}
		return s, nil
	default:
		return nil, apperrors.ConfigErrorf("unknown storage type %q", cfg.Type)
	}
}
