package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/saltyorg/routedb/internal/dbrouter"
)

func primaryCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, scope := dbrouter.Bind(context.Background(), dbrouter.Primary)
	t.Cleanup(scope.Release)
	return ctx
}

func TestTutorials_CRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := primaryCtx(t)

	tut := &Tutorial{Title: "Routing", Description: "Primary and replica pools"}
	if err := db.CreateTutorial(ctx, tut); err != nil {
		t.Fatalf("CreateTutorial returned error: %v", err)
	}
	if tut.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}
	if tut.PublishedAt != nil {
		t.Fatal("draft should not have a publish time")
	}

	got, err := db.GetTutorial(ctx, tut.ID)
	if err != nil {
		t.Fatalf("GetTutorial returned error: %v", err)
	}
	if got == nil || got.Title != "Routing" || got.Description != "Primary and replica pools" {
		t.Fatalf("unexpected tutorial %+v", got)
	}

	tut.Title = "Routing, revised"
	tut.Description = ""
	if err := db.UpdateTutorial(ctx, tut); err != nil {
		t.Fatalf("UpdateTutorial returned error: %v", err)
	}
	got, err = db.GetTutorial(ctx, tut.ID)
	if err != nil {
		t.Fatalf("GetTutorial returned error: %v", err)
	}
	if got.Title != "Routing, revised" || got.Description != "" {
		t.Fatalf("update not stored: %+v", got)
	}

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := db.PublishTutorial(ctx, tut.ID, at); err != nil {
		t.Fatalf("PublishTutorial returned error: %v", err)
	}
	if err := db.PublishTutorial(ctx, tut.ID, at.Add(time.Hour)); err != nil {
		t.Fatalf("second PublishTutorial returned error: %v", err)
	}
	got, err = db.GetTutorial(ctx, tut.ID)
	if err != nil {
		t.Fatalf("GetTutorial returned error: %v", err)
	}
	if !got.Published || got.PublishedAt == nil || !got.PublishedAt.Equal(at) {
		t.Fatalf("expected published at %v, got %+v", at, got)
	}

	if err := db.DeleteTutorial(ctx, tut.ID); err != nil {
		t.Fatalf("DeleteTutorial returned error: %v", err)
	}
	got, err = db.GetTutorial(ctx, tut.ID)
	if err != nil {
		t.Fatalf("GetTutorial returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected tutorial to be gone, got %+v", got)
	}
}

func TestTutorials_NotFound(t *testing.T) {
	db := openTestDB(t)
	ctx := primaryCtx(t)

	if err := db.UpdateTutorial(ctx, &Tutorial{ID: 42, Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateTutorial: expected ErrNotFound, got %v", err)
	}
	if err := db.PublishTutorial(ctx, 42, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("PublishTutorial: expected ErrNotFound, got %v", err)
	}
	if err := db.DeleteTutorial(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteTutorial: expected ErrNotFound, got %v", err)
	}
}

func TestTutorials_ListFilter(t *testing.T) {
	db := openTestDB(t)
	ctx := primaryCtx(t)

	for i, title := range []string{"Go contexts", "SQL pools", "Go generics"} {
		tut := &Tutorial{Title: title, Published: i%2 == 0}
		if err := db.CreateTutorial(ctx, tut); err != nil {
			t.Fatalf("CreateTutorial returned error: %v", err)
		}
	}

	all, err := db.ListTutorials(ctx, TutorialFilter{})
	if err != nil {
		t.Fatalf("ListTutorials returned error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tutorials, got %d", len(all))
	}

	published := true
	pub, err := db.ListTutorials(ctx, TutorialFilter{Published: &published})
	if err != nil {
		t.Fatalf("ListTutorials returned error: %v", err)
	}
	if len(pub) != 2 {
		t.Fatalf("expected 2 published tutorials, got %d", len(pub))
	}

	matched, err := db.ListTutorials(ctx, TutorialFilter{Query: "Go"})
	if err != nil {
		t.Fatalf("ListTutorials returned error: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("expected 2 tutorials matching Go, got %d", len(matched))
	}

	page, err := db.ListTutorials(ctx, TutorialFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListTutorials returned error: %v", err)
	}
	if len(page) != 1 || page[0].Title != "SQL pools" {
		t.Fatalf("unexpected page %+v", page)
	}

	count, err := db.CountTutorials(ctx)
	if err != nil {
		t.Fatalf("CountTutorials returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}

// Writes marked for the primary must not show up on the replica file, and
// an unmarked read after the marked call returns must go to the replica.
func TestTutorials_WriteOnPrimaryReadOnReplica(t *testing.T) {
	db := openTestDB(t)

	err := dbrouter.Run(context.Background(), dbrouter.On(dbrouter.Primary), func(ctx context.Context) error {
		return db.CreateTutorial(ctx, &Tutorial{Title: "primary"})
	})
	if err != nil {
		t.Fatalf("marked create failed: %v", err)
	}

	replicaRows, err := db.ListTutorials(context.Background(), TutorialFilter{})
	if err != nil {
		t.Fatalf("ListTutorials returned error: %v", err)
	}
	if len(replicaRows) != 0 {
		t.Fatalf("replica should be empty, got %d rows", len(replicaRows))
	}

	primaryRows, err := db.ListTutorials(primaryCtx(t), TutorialFilter{})
	if err != nil {
		t.Fatalf("ListTutorials returned error: %v", err)
	}
	if len(primaryRows) != 1 || primaryRows[0].Title != "primary" {
		t.Fatalf("unexpected primary rows %+v", primaryRows)
	}
}

// A failing marked operation must propagate its error unchanged and leave
// nothing bound for the next acquisition.
func TestTutorials_FailedMarkedCallUnbinds(t *testing.T) {
	db := openTestDB(t)
	tagPools(t, db)
	boom := errors.New("boom")

	ctx := context.Background()
	err := dbrouter.Run(ctx, dbrouter.On(dbrouter.Primary), func(ctx context.Context) error {
		if err := db.CreateTutorial(ctx, &Tutorial{Title: "half done"}); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("expected boom unchanged, got %v", err)
	}

	if _, bound := dbrouter.TargetFrom(ctx); bound {
		t.Fatal("context should be unbound after the call")
	}
	if got := identityOf(t, ctx, db); got != "replica" {
		t.Fatalf("acquisition after failed call used %q", got)
	}
}

// Concurrent callers each see the pool selected by their own context.
func TestTutorials_ConcurrentRouting(t *testing.T) {
	db := openTestDB(t)
	tagPools(t, db)

	const callers = 100
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			want := "replica"
			var sel *dbrouter.Selector
			if i%2 == 0 {
				want = "primary"
				sel = dbrouter.On(dbrouter.Primary)
			}

			err := dbrouter.Run(context.Background(), sel, func(ctx context.Context) error {
				pool, err := db.Pool(ctx)
				if err != nil {
					return err
				}
				var name string
				if err := pool.GetContext(ctx, &name, "SELECT name FROM pool_identity"); err != nil {
					return err
				}
				if name != want {
					return fmt.Errorf("caller %d: got %s, want %s", i, name, want)
				}
				return nil
			})
			if err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
