package testfixtures

import (
	"context"
	"testing"

	"github.com/example/club-portal/internal/application"
	"github.com/example/club-portal/internal/persistence"
)

func TestSQLiteHarnessSeeds(t *testing.T) {
	ctx := context.Background()
	harness := NewSQLiteHarness(t)

	officer := NewUserFixture(WithUserLevel(application.AccessOfficer))
	harness.SeedUser(t, officer)

	category := harness.SeedCategory(t, NewCategoryFixture(3))
	if category.ID == 0 {
		t.Fatal("expected category ID to be assigned")
	}

	event := harness.SeedEvent(t, NewEventFixture(WithEventCategory(category.ID)))
	if err := harness.Attendance.Attend(ctx, persistence.Attendance{EventID: event.ID, UserEmail: officer.Email, AttendedAt: event.StartDate}); err != nil {
		t.Fatalf("Attend failed: %v", err)
	}

	points, err := harness.Attendance.SumPoints(ctx, officer.Email, nil, nil)
	if err != nil {
		t.Fatalf("SumPoints failed: %v", err)
	}
	if points != 3 {
		t.Fatalf("expected 3 points, got %d", points)
	}

	session := harness.SeedSession(t, NewSessionFixture(officer.Email))
	stored, err := harness.Sessions.GetSession(ctx, session.Token)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if string(stored.Credentials["refresh_token"]) == "" {
		t.Fatalf("expected stored credentials, got %+v", stored.Credentials)
	}
}
