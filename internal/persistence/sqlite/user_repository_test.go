package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/club-portal/internal/persistence"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	fixedNow(storage, testEpoch)

	created, err := storage.Users.CreateUser(ctx, persistence.User{
		Email:       "ada@university.edu",
		GivenName:   "Ada",
		FamilyName:  "Lovelace",
		PictureURL:  "https://example.com/ada.png",
		AccessLevel: 1,
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if !created.CreatedAt.Equal(testEpoch) || !created.UpdatedAt.Equal(testEpoch) {
		t.Errorf("expected timestamps %v, got created=%v updated=%v", testEpoch, created.CreatedAt, created.UpdatedAt)
	}

	retrieved, err := storage.Users.GetUser(ctx, "ada@university.edu")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if retrieved != created {
		t.Errorf("expected %+v, got %+v", created, retrieved)
	}
}

func TestUserRepository_CreateUser_Duplicate(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	mustCreateUser(t, storage, "ada@university.edu", 0)

	_, err := storage.Users.CreateUser(ctx, persistence.User{Email: "ada@university.edu"})
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestUserRepository_GetUser_CaseSensitive(t *testing.T) {
	storage := newTestStorage(t)
	mustCreateUser(t, storage, "ada@university.edu", 0)

	_, err := storage.Users.GetUser(context.Background(), "ADA@university.edu")
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for differently cased email, got %v", err)
	}
}

func TestUserRepository_CreateUser_InvalidAccessLevel(t *testing.T) {
	storage := newTestStorage(t)

	_, err := storage.Users.CreateUser(context.Background(), persistence.User{Email: "x@university.edu", AccessLevel: 9})
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestUserRepository_UpsertUser_KeepsAccessLevel(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	now := fixedNow(storage, testEpoch)
	mustCreateUser(t, storage, "ada@university.edu", 2)

	*now = testEpoch.Add(time.Hour)
	updated, err := storage.Users.UpsertUser(ctx, persistence.User{
		Email:       "ada@university.edu",
		GivenName:   "Augusta",
		FamilyName:  "King",
		PictureURL:  "https://example.com/new.png",
		AccessLevel: 0,
	})
	if err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	if updated.AccessLevel != 2 {
		t.Errorf("expected access level to stay 2, got %d", updated.AccessLevel)
	}
	if updated.GivenName != "Augusta" || updated.FamilyName != "King" {
		t.Errorf("expected refreshed names, got %q %q", updated.GivenName, updated.FamilyName)
	}
	if !updated.CreatedAt.Equal(testEpoch) {
		t.Errorf("expected created_at to be preserved, got %v", updated.CreatedAt)
	}
	if !updated.UpdatedAt.Equal(*now) {
		t.Errorf("expected updated_at %v, got %v", *now, updated.UpdatedAt)
	}
}

func TestUserRepository_UpsertUser_Inserts(t *testing.T) {
	storage := newTestStorage(t)

	created, err := storage.Users.UpsertUser(context.Background(), persistence.User{Email: "new@university.edu", GivenName: "New"})
	if err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	if created.AccessLevel != 0 {
		t.Errorf("expected NON_MEMBER level, got %d", created.AccessLevel)
	}
}

// A partial update touches only the supplied fields.
func TestUserRepository_UpdateUser_Partial(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	mustCreateUser(t, storage, "ada@university.edu", 1)

	level := 2
	updated, err := storage.Users.UpdateUser(ctx, "ada@university.edu", persistence.UserPatch{AccessLevel: &level})
	if err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if updated.AccessLevel != 2 {
		t.Errorf("expected access level 2, got %d", updated.AccessLevel)
	}
	if updated.GivenName != "Given" || updated.FamilyName != "Family" {
		t.Errorf("expected names to be untouched, got %q %q", updated.GivenName, updated.FamilyName)
	}

	name := "Grace"
	updated, err = storage.Users.UpdateUser(ctx, "ada@university.edu", persistence.UserPatch{GivenName: &name})
	if err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if updated.GivenName != "Grace" || updated.AccessLevel != 2 {
		t.Errorf("unexpected user after second patch: %+v", updated)
	}
}

func TestUserRepository_UpdateUser_NotFound(t *testing.T) {
	storage := newTestStorage(t)

	name := "Nobody"
	_, err := storage.Users.UpdateUser(context.Background(), "missing@university.edu", persistence.UserPatch{GivenName: &name})
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_ListUsers(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	for _, email := range []string{"c@university.edu", "a@university.edu", "b@university.edu"} {
		mustCreateUser(t, storage, email, 0)
	}

	users, err := storage.Users.ListUsers(ctx, 1, 5)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].Email != "b@university.edu" || users[1].Email != "c@university.edu" {
		t.Errorf("unexpected order: %s, %s", users[0].Email, users[1].Email)
	}
}

func TestUserRepository_DeleteUser_Cascades(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	mustCreateUser(t, storage, "ada@university.edu", 1)
	event := mustCreateEvent(t, storage, "Meetup", testEpoch, testEpoch.Add(time.Hour), 0, nil)

	if _, err := storage.Sessions.CreateSession(ctx, persistence.Session{
		Token:     "token-1",
		UserEmail: "ada@university.edu",
		ExpiresAt: testEpoch.Add(time.Hour),
	}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := storage.Attendance.Attend(ctx, persistence.Attendance{EventID: event.ID, UserEmail: "ada@university.edu"}); err != nil {
		t.Fatalf("Attend failed: %v", err)
	}

	if err := storage.Users.DeleteUser(ctx, "ada@university.edu"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	if _, err := storage.Sessions.GetSession(ctx, "token-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected session to be removed, got %v", err)
	}
	attended, err := storage.Attendance.HasAttended(ctx, event.ID, "ada@university.edu")
	if err != nil {
		t.Fatalf("HasAttended failed: %v", err)
	}
	if attended {
		t.Error("expected attendance to be removed with the user")
	}

	if err := storage.Users.DeleteUser(ctx, "ada@university.edu"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestUserRepository_UpdateGivenNameKeepsLevel(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	mustCreateUser(t, storage, "jdoe@x.edu", 0)

	name := "Jane"
	if _, err := storage.Users.UpdateUser(ctx, "jdoe@x.edu", persistence.UserPatch{GivenName: &name}); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}

	user, err := storage.Users.GetUser(ctx, "jdoe@x.edu")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.GivenName != "Jane" {
		t.Errorf("expected given name Jane, got %q", user.GivenName)
	}
	if user.AccessLevel != 0 {
		t.Errorf("expected NON_MEMBER, got %d", user.AccessLevel)
	}
}
