package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"clinical-dss-be/internal/guard"
	"clinical-dss-be/internal/session"
)

// HealthReport is the admission-gating view of dependency health.
type HealthReport struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	Sessions     int               `json:"active_sessions"`
	CheckedAt    time.Time         `json:"checked_at"`
}

type IHealthService interface {
	Check(ctx context.Context) HealthReport
}

type healthService struct {
	db       *gorm.DB
	rdb      *redis.Client
	guards   map[string]*guard.Guard
	registry *session.Registry
}

func NewHealthService(db *gorm.DB, rdb *redis.Client, guards map[string]*guard.Guard, registry *session.Registry) IHealthService {
	return &healthService{
		db:       db,
		rdb:      rdb,
		guards:   guards,
		registry: registry,
	}
}

func (s *healthService) Check(ctx context.Context) HealthReport {
	deps := make(map[string]string)
	healthy := true

	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil && sqlDB.PingContext(ctx) == nil {
			deps["database"] = "up"
		} else {
			deps["database"] = "down"
			healthy = false
		}
	}

	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err == nil {
			deps["redis"] = "up"
		} else {
			deps["redis"] = "down"
			healthy = false
		}
	}

	// A guard with an open circuit means its collaborator is shedding load.
	for name, g := range s.guards {
		if g.Healthy() {
			deps[name] = "up"
		} else {
			deps[name] = "degraded"
			healthy = false
		}
	}

	status := "ok"
	if !healthy {
		status = "degraded"
	}

	return HealthReport{
		Status:       status,
		Dependencies: deps,
		Sessions:     s.registry.ActiveSessions(),
		CheckedAt:    time.Now().UTC(),
	}
}
