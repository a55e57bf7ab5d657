package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: dbtool <migrate|rls-smoke> [args]")
	}

	switch os.Args[1] {
	case "migrate":
		migrate(os.Args[2:])
	case "rls-smoke":
		rlsSmoke(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

// migrate applies every *.sql file in --dir in lexical order, each in its
// own transaction. Files are expected to be idempotent.
func migrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url, dir string
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.StringVar(&dir, "dir", "migrations", "directory with *.sql files")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		fatal(err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		fatalf("no *.sql files in %s", dir)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fatal(err)
		}
		tx, err := conn.Begin(ctx)
		if err != nil {
			fatal(err)
		}
		if _, err := tx.Exec(ctx, string(b)); err != nil {
			_ = tx.Rollback(context.Background())
			fatalf("%s: %v", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			fatalf("%s: %v", name, err)
		}
		fmt.Printf("applied %s\n", name)
	}
}

// rlsSmoke verifies that row-level security keeps one org from reading
// another org's ledger rows through app.current_org.
func rlsSmoke(args []string) {
	fs := flag.NewFlagSet("rls-smoke", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	fs.StringVar(&url, "url", "", "postgres connection string")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	tx, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_org', 'smoke-a', true);`); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO ledger.live_state (org_id, app_id, env_type_id, key, value, secret, version, updated_at)
		VALUES ('smoke-a', 'smoke', 'dev', 'SMOKE', 'x', false, 1, now())
		ON CONFLICT (org_id, app_id, env_type_id, key) DO NOTHING;
	`); err != nil {
		fatal(err)
	}

	var n int
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_org', 'smoke-b', true);`); err != nil {
		fatal(err)
	}
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM ledger.live_state WHERE org_id = 'smoke-a';`).Scan(&n); err != nil {
		fatal(err)
	}
	if n != 0 {
		fatalf("rls leak: org smoke-b can see %d rows of org smoke-a", n)
	}

	fmt.Println("rls-smoke ok")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
