// Package storetest provides a throwaway SQLite-backed store for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Shivamkadam692/WorkConnect/internal/ids"
	"github.com/Shivamkadam692/WorkConnect/internal/models"
	"github.com/Shivamkadam692/WorkConnect/internal/store"
)

// NewSQLite opens a fresh SQLite store in the test's temp dir and closes it on cleanup.
func NewSQLite(t testing.TB) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "workconnect.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// Fixture holds the parties of one seeded request.
type Fixture struct {
	Client  models.Actor
	Worker  models.Actor
	Profile *models.WorkerProfile
	Request *models.Request
}

// SeedProfile creates an available worker profile for a new worker.
func SeedProfile(t testing.TB, s store.DataStore) (models.Actor, *models.WorkerProfile) {
	t.Helper()
	worker := models.Actor{UserID: ids.NewUUIDv7(), Role: models.RoleWorker}
	profile, err := s.CreateWorkerProfile(context.Background(), worker.UserID, "Test Worker")
	if err != nil {
		t.Fatalf("create worker profile: %v", err)
	}
	return worker, profile
}

// SeedRequest inserts a pending request between a new client and a new worker.
func SeedRequest(t testing.TB, s store.DataStore) Fixture {
	t.Helper()
	worker, profile := SeedProfile(t, s)
	client := models.Actor{UserID: ids.NewUUIDv7(), Role: models.RoleClient}

	now := time.Now().UTC()
	req := &models.Request{
		ID:              ids.NewUUIDv7(),
		ClientID:        client.UserID,
		WorkerID:        worker.UserID,
		WorkerProfileID: profile.ID,
		Status:          models.StatusPending,
		Price:           decimal.RequireFromString("1500.50"),
		Message:         "Move a sofa",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("create request: %v", err)
	}
	return Fixture{Client: client, Worker: worker, Profile: profile, Request: req}
}

// Stranger returns an actor bound to no request.
func Stranger(role models.Role) models.Actor {
	return models.Actor{UserID: uuid.New(), Role: role}
}
