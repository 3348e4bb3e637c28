package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/cache"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const maintenanceCacheKey = "maintenance"

// MaintenanceService holds the storefront maintenance flag. Writes are
// optimistic: readers see the new flag at once while the store write runs
// on the background writer.
type MaintenanceService struct {
	store port.MaintenanceStore
	cache *cache.Cache[string, domain.MaintenanceStatus]
	now   func() time.Time
	log   *logrus.Entry
}

func NewMaintenanceService(store port.MaintenanceStore, writer *cache.Writer, ttl time.Duration, log *logrus.Logger) *MaintenanceService {
	entry := log.WithField("component", "maintenance_service")
	return &MaintenanceService{
		store: store,
		cache: cache.New[string, domain.MaintenanceStatus](ttl, cache.WithWriter(writer), cache.WithLogger(entry)),
		now:   time.Now,
		log:   entry,
	}
}

func (s *MaintenanceService) Get(ctx context.Context) (domain.MaintenanceStatus, error) {
	return s.cache.Read(ctx, maintenanceCacheKey, s.store.GetMaintenance)
}

// Set returns the new status together with the background persist task.
func (s *MaintenanceService) Set(ctx context.Context, enabled bool, message string) (domain.MaintenanceStatus, *cache.Task, error) {
	status := domain.MaintenanceStatus{
		Enabled:   enabled,
		Message:   message,
		UpdatedAt: s.now().UTC(),
	}
	task, err := s.cache.OptimisticWrite(ctx, maintenanceCacheKey, status, func(ctx context.Context) error {
		return s.store.SaveMaintenance(ctx, status)
	})
	if err != nil {
		return domain.MaintenanceStatus{}, nil, err
	}
	s.log.WithFields(logrus.Fields{"enabled": enabled}).Info("maintenance flag changed")
	return status, task, nil
}
