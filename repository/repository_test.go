package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/camden-git/ppemonitor/database"
	"github.com/camden-git/ppemonitor/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "repo.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createUser(t *testing.T, repo UserRepository, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com"}
	if err := u.SetPassword("password123"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create user failed: %v", err)
	}
	return u
}

func TestUserRepository_LookupByUsernameOrEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewGormUserRepository(newTestDB(t))
	u := createUser(t, repo, "alice")

	if u.Role != models.RoleUser {
		t.Errorf("expected default role user, got %s", u.Role)
	}

	for _, identifier := range []string{"alice", "alice@example.com", "  alice  "} {
		got, err := repo.GetByUsernameOrEmail(ctx, identifier)
		if err != nil {
			t.Errorf("GetByUsernameOrEmail(%q) failed: %v", identifier, err)
			continue
		}
		if got.ID != u.ID {
			t.Errorf("GetByUsernameOrEmail(%q) returned %s, want %s", identifier, got.ID, u.ID)
		}
	}

	if _, err := repo.GetByUsernameOrEmail(ctx, "nobody"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	repo := NewGormUserRepository(newTestDB(t))
	createUser(t, repo, "alice")

	dup := &models.User{Username: "alice", Email: "other@example.com", PasswordHash: "x"}
	if err := repo.Create(context.Background(), dup); err == nil {
		t.Error("expected unique constraint violation for duplicate username")
	}
}

func TestUserRepository_UpdateRoleAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewGormUserRepository(newTestDB(t))
	u := createUser(t, repo, "bob")

	updated, err := repo.UpdateRole(ctx, u.ID, models.RoleAdmin)
	if err != nil {
		t.Fatalf("UpdateRole failed: %v", err)
	}
	if !updated.IsAdmin() {
		t.Errorf("expected admin role, got %s", updated.Role)
	}

	admins, err := repo.CountByRole(ctx, models.RoleAdmin)
	if err != nil || admins != 1 {
		t.Errorf("expected 1 admin, got %d (err %v)", admins, err)
	}

	if _, err := repo.UpdateRole(ctx, "missing", models.RoleAdmin); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound for unknown user, got %v", err)
	}
}

func TestUserRepository_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	violations := NewGormViolationRepository(db)
	uploads := NewGormUploadRepository(db)

	victim := createUser(t, users, "victim")
	other := createUser(t, users, "other")

	if err := uploads.Create(ctx, &models.Upload{ID: "img-1", UserID: victim.ID, Filename: "a.jpg"}); err != nil {
		t.Fatalf("Create upload failed: %v", err)
	}
	batch := []*models.Violation{
		{Label: "NoHelmet", Confidence: 0.9, Timestamp: time.Now(), PersonID: "p1", ImageID: "img-1", UserID: victim.ID},
		{Label: "NoVest", Confidence: 0.8, Timestamp: time.Now(), PersonID: "p2", ImageID: "img-1", UserID: victim.ID},
	}
	if err := violations.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	keep := &models.Violation{Label: models.LabelGoodToGo, Confidence: 1, Timestamp: time.Now(), PersonID: "N/A", ImageID: "N/A", UserID: other.ID}
	if err := violations.Create(ctx, keep); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	owned, err := uploads.ListByUser(ctx, victim.ID)
	if err != nil || len(owned) != 1 || owned[0].ID != "img-1" {
		t.Fatalf("expected victim's upload listed, got %v (err %v)", owned, err)
	}

	if err := users.Delete(ctx, victim.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	remaining, err := violations.ListByUser(ctx, victim.ID)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected victim's violations to be removed, got %d", len(remaining))
	}
	if _, err := uploads.GetByID(ctx, "img-1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected upload to be removed, got %v", err)
	}
	if owned, _ := uploads.ListByUser(ctx, victim.ID); len(owned) != 0 {
		t.Errorf("expected no uploads after delete, got %d", len(owned))
	}

	otherRecords, err := violations.ListByUser(ctx, other.ID)
	if err != nil || len(otherRecords) != 1 {
		t.Errorf("other user's records should be untouched, got %d (err %v)", len(otherRecords), err)
	}

	if err := users.Delete(ctx, victim.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("second delete should report not found, got %v", err)
	}
}

func TestViolationRepository_ListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := createUser(t, NewGormUserRepository(db), "carol")
	repo := NewGormViolationRepository(db)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, label := range []string{"NoHelmet", "NoVest", models.LabelGoodToGo} {
		v := &models.Violation{
			Label:      label,
			Confidence: 0.5,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			PersonID:   "p",
			ImageID:    "N/A",
			UserID:     u.ID,
		}
		if err := repo.Create(ctx, v); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	list, err := repo.ListByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Timestamp.Before(list[i].Timestamp) {
			t.Errorf("records not in descending timestamp order at %d", i)
		}
	}
	if list[0].Label != models.LabelGoodToGo {
		t.Errorf("expected newest record first, got %s", list[0].Label)
	}
}

func TestViolationRepository_RejectsOrphans(t *testing.T) {
	repo := NewGormViolationRepository(newTestDB(t))
	err := repo.CreateBatch(context.Background(), []*models.Violation{{Label: "NoVest", Timestamp: time.Now()}})
	if err == nil {
		t.Error("expected error for violation without owner")
	}
}
