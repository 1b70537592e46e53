package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"vidstream/internal/db"
	"vidstream/internal/models"
	"vidstream/internal/session"
)

// storeDB connects to the database named by TEST_DB_DSN, applies the
// migrations and starts from empty tables. Skipped when the variable is unset.
func storeDB(t *testing.T) *db.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	conn, err := db.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(conn.Close)

	if _, err := conn.Pool.Exec(ctx, `TRUNCATE subscriptions, videos, accounts`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return conn
}

func TestVideos_CountViewAndRecordView(t *testing.T) {
	conn := storeDB(t)
	ctx := context.Background()

	accounts := NewAccounts(conn)
	videos := NewVideos(conn)

	acct, err := accounts.Create(ctx, &models.Account{
		ID:           uuid.New(),
		Username:     "watcher",
		Email:        "watcher@example.com",
		FullName:     "Watcher",
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	ownerID := uuid.New()
	published := models.Video{ID: uuid.New(), OwnerID: ownerID, Title: "live", VideoURL: "v1", Published: true}
	draft := models.Video{ID: uuid.New(), OwnerID: ownerID, Title: "draft", VideoURL: "v2", Published: false}
	if _, err := videos.InsertMany(ctx, []models.Video{published, draft}); err != nil {
		t.Fatalf("seed videos: %v", err)
	}

	if err := videos.CountView(ctx, published.ID); err != nil {
		t.Fatalf("count view: %v", err)
	}
	if err := videos.CountView(ctx, published.ID); err != nil {
		t.Fatalf("count second view: %v", err)
	}

	got, err := videos.FindByID(ctx, published.ID)
	if err != nil {
		t.Fatalf("find video: %v", err)
	}
	if got.Views != 2 {
		t.Errorf("views = %d, want 2", got.Views)
	}

	if err := videos.CountView(ctx, draft.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unpublished video, got %v", err)
	}
	if err := videos.CountView(ctx, uuid.New()); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing video, got %v", err)
	}

	// re-watching moves the entry back to the front instead of duplicating it
	other := models.Video{ID: uuid.New(), OwnerID: ownerID, Title: "other", VideoURL: "v3", Published: true}
	if _, err := videos.InsertMany(ctx, []models.Video{other}); err != nil {
		t.Fatalf("seed video: %v", err)
	}
	for _, id := range []uuid.UUID{published.ID, other.ID, published.ID} {
		if err := accounts.RecordView(ctx, acct.ID, id); err != nil {
			t.Fatalf("record view %s: %v", id, err)
		}
	}

	reloaded, err := accounts.FindByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	want := []uuid.UUID{published.ID, other.ID}
	if len(reloaded.WatchHistory) != len(want) {
		t.Fatalf("watch history = %v, want %v", reloaded.WatchHistory, want)
	}
	for i := range want {
		if reloaded.WatchHistory[i] != want[i] {
			t.Errorf("watch history[%d] = %s, want %s", i, reloaded.WatchHistory[i], want[i])
		}
	}

	if err := accounts.RecordView(ctx, uuid.New(), published.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing account, got %v", err)
	}
}
