package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLockMutualExclusion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewRedisLock(client, "merge:jane@acme.com", time.Minute)
	b := NewRedisLock(client, "merge:jane@acme.com", time.Minute)

	ok, err := a.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}

	ok, err = b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire error: %v", err)
	}
	if ok {
		t.Fatal("second holder acquired a held lock")
	}

	// Releasing someone else's lock is a no-op.
	if err := b.Release(context.Background()); err != nil {
		t.Fatalf("foreign release: %v", err)
	}
	ok, _ = b.Acquire(context.Background())
	if ok {
		t.Fatal("foreign release freed the lock")
	}

	if err := a.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, _ = b.Acquire(context.Background())
	if !ok {
		t.Fatal("lock not acquirable after release")
	}
}

func TestRedisLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewRedisLock(client, "merge:bob@globex.com", 50*time.Millisecond)
	if ok, _ := a.Acquire(context.Background()); !ok {
		t.Fatal("acquire failed")
	}

	mr.FastForward(100 * time.Millisecond)

	b := NewRedisLock(client, "merge:bob@globex.com", time.Minute)
	if ok, _ := b.Acquire(context.Background()); !ok {
		t.Fatal("lock should be free after TTL expiry")
	}
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	lock := NewPGAdvisoryLock(db, "merge:jane@acme.com")

	mock.ExpectQuery("pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("pg_advisory_unlock").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := lock.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v", ok, err)
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestNewLockPicksBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	if _, ok := NewLock(client, nil, "k", time.Minute).(*RedisLock); !ok {
		t.Error("expected Redis backend when a client is available")
	}

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()
	if _, ok := NewLock(nil, db, "k", time.Minute).(*PGAdvisoryLock); !ok {
		t.Error("expected PG advisory backend without Redis")
	}
}
