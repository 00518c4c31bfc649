package infra

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/congo-pay/fxledger/internal/logging"
)

func TestMigrationURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/ledger?sslmode=disable": "pgx5://u:p@db:5432/ledger?sslmode=disable",
		"postgresql://u@db/ledger":                      "pgx5://u@db/ledger",
		"pgx5://u@db/ledger":                            "pgx5://u@db/ledger",
	}
	for in, want := range cases {
		if got := migrationURL(in); got != want {
			t.Fatalf("migrationURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired up/down migrations, got %d up and %d down", ups, downs)
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr(), logging.Discard())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if _, err := NewRedisClient(context.Background(), "", logging.Discard()); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestNewPostgresPoolRequiresURL(t *testing.T) {
	if _, err := NewPostgresPool(context.Background(), "", logging.Discard()); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
