package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/club-portal/internal/persistence"
)

func TestNewsRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	fixedNow(storage, testEpoch)
	mustCreateUser(t, storage, "officer@x.edu", 2)

	author := "officer@x.edu"
	created, err := storage.News.CreateNews(ctx, persistence.News{
		Title:       "Elections",
		Body:        "Voting opens Monday.",
		AuthorEmail: &author,
	})
	if err != nil {
		t.Fatalf("CreateNews failed: %v", err)
	}
	if !created.PublishedAt.Equal(testEpoch) {
		t.Errorf("expected publish time to default to now, got %v", created.PublishedAt)
	}

	body := "Voting opens Tuesday."
	updated, err := storage.News.UpdateNews(ctx, created.ID, persistence.NewsPatch{Body: &body})
	if err != nil {
		t.Fatalf("UpdateNews failed: %v", err)
	}
	if updated.Body != body || updated.Title != "Elections" {
		t.Errorf("unexpected news after update: %+v", updated)
	}

	if err := storage.Users.DeleteUser(ctx, author); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	orphaned, err := storage.News.GetNews(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetNews failed: %v", err)
	}
	if orphaned.AuthorEmail != nil {
		t.Errorf("expected author to be cleared, got %s", *orphaned.AuthorEmail)
	}

	if err := storage.News.DeleteNews(ctx, created.ID); err != nil {
		t.Fatalf("DeleteNews failed: %v", err)
	}
	if _, err := storage.News.GetNews(ctx, created.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewsRepository_ListNews(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	for i, level := range []int{0, 1, 0, 2} {
		if _, err := storage.News.CreateNews(ctx, persistence.News{
			Title:          "Post",
			PublishedAt:    testEpoch.Add(time.Duration(i) * time.Hour),
			MinAccessLevel: level,
		}); err != nil {
			t.Fatalf("CreateNews failed: %v", err)
		}
	}

	before := testEpoch.Add(3 * time.Hour)
	member := 1
	feed, err := storage.News.ListNews(ctx, persistence.NewsFilter{Before: &before, AccessCeiling: &member, Limit: 10})
	if err != nil {
		t.Fatalf("ListNews failed: %v", err)
	}
	if len(feed) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(feed))
	}
	for i := 1; i < len(feed); i++ {
		if feed[i].PublishedAt.After(feed[i-1].PublishedAt) {
			t.Errorf("expected newest first, got %v before %v", feed[i-1].PublishedAt, feed[i].PublishedAt)
		}
	}

	nonMember := 0
	feed, err = storage.News.ListNews(ctx, persistence.NewsFilter{AccessCeiling: &nonMember, Offset: 1, Limit: 10})
	if err != nil {
		t.Fatalf("ListNews failed: %v", err)
	}
	if len(feed) != 1 || !feed[0].PublishedAt.Equal(testEpoch) {
		t.Fatalf("expected the oldest public post, got %+v", feed)
	}
}
