package persistence

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/envledger/envledger/modules/ledger/domain/types"
	"github.com/envledger/envledger/pkg/storeerr"
)

func TestRegistryMemoryStore_Apps(t *testing.T) {
	s := NewRegistryMemoryStore()
	ctx := context.Background()

	app := types.App{OrgID: "org1", ID: "api", Name: "API"}
	if _, err := s.CreateApp(ctx, app); err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.CreateApp(ctx, app); storeerr.CodeOf(err) != "APP_EXISTS" {
		t.Fatalf("err=%v", err)
	}
	got, err := s.GetApp(ctx, "org1", "api")
	if err != nil || got.Name != "API" {
		t.Fatalf("app=%+v err=%v", got, err)
	}
	if _, err := s.GetApp(ctx, "org1", "nope"); storeerr.CodeOf(err) != "APP_NOT_FOUND" {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.GetApp(ctx, "org2", "api"); storeerr.CodeOf(err) != "APP_NOT_FOUND" {
		t.Fatalf("orgs must not see each other's apps: %v", err)
	}

	if _, err := s.CreateApp(ctx, types.App{OrgID: "org1"}); storeerr.CodeOf(err) != "APP_ID_REQUIRED" {
		t.Fatalf("err=%v", err)
	}
	// Secrets-enabled apps must carry a public key.
	if _, err := s.CreateApp(ctx, types.App{OrgID: "org1", ID: "vault", EnableSecrets: true}); storeerr.CodeOf(err) != "APP_PUBLIC_KEY_REQUIRED" {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.CreateApp(ctx, types.App{OrgID: "org1", ID: "vault", EnableSecrets: true, PublicKey: "pk"}); err != nil {
		t.Fatalf("err=%v", err)
	}

	apps, _ := s.ListApps(ctx, "org1")
	if len(apps) != 2 || apps[0].ID != "api" || apps[1].ID != "vault" {
		t.Fatalf("apps=%+v", apps)
	}
}

func TestRegistryMemoryStore_EnvironmentTypes(t *testing.T) {
	s := NewRegistryMemoryStore()
	ctx := context.Background()

	et := types.EnvironmentType{OrgID: "org1", ID: "prod", Name: "Production", IsProtected: true}
	if _, err := s.CreateEnvironmentType(ctx, et); err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.CreateEnvironmentType(ctx, et); storeerr.CodeOf(err) != "ENV_TYPE_EXISTS" {
		t.Fatalf("err=%v", err)
	}
	got, err := s.GetEnvironmentType(ctx, "org1", "prod")
	if err != nil || !got.IsProtected {
		t.Fatalf("et=%+v err=%v", got, err)
	}
	if _, err := s.GetEnvironmentType(ctx, "org1", "qa"); storeerr.CodeOf(err) != "ENV_TYPE_NOT_FOUND" {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.CreateEnvironmentType(ctx, types.EnvironmentType{OrgID: "org1"}); storeerr.CodeOf(err) != "ENV_TYPE_ID_REQUIRED" {
		t.Fatalf("err=%v", err)
	}
}

func registryPGStore(tx pgx.Tx) *RegistryPGStore {
	return &RegistryPGStore{pool: beginnerFunc(func(context.Context) (pgx.Tx, error) { return tx, nil })}
}

func TestRegistryPGStore_Apps(t *testing.T) {
	ctx := context.Background()

	t.Run("create", func(t *testing.T) {
		tx := &stubTx{}
		app, err := registryPGStore(tx).CreateApp(ctx, types.App{OrgID: "org1", ID: "api", Name: "API"})
		if err != nil || app.ID != "api" {
			t.Fatalf("app=%+v err=%v", app, err)
		}
	})

	t.Run("create duplicate", func(t *testing.T) {
		tx := &stubTx{execErr: &pgconn.PgError{Code: "23505"}, execErrAt: 2}
		if _, err := registryPGStore(tx).CreateApp(ctx, types.App{OrgID: "org1", ID: "api"}); storeerr.CodeOf(err) != "APP_EXISTS" {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("get", func(t *testing.T) {
		tx := &stubTx{row: &stubRow{vals: []any{"org1", "api", "API", true, true, "pk", "sk"}}}
		app, err := registryPGStore(tx).GetApp(ctx, "org1", "api")
		if err != nil || !app.EnableSecrets || app.PrivateKey != "sk" {
			t.Fatalf("app=%+v err=%v", app, err)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		tx := &stubTx{rowErr: pgx.ErrNoRows}
		if _, err := registryPGStore(tx).GetApp(ctx, "org1", "nope"); storeerr.CodeOf(err) != "APP_NOT_FOUND" {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		tx := &stubTx{rows: &tableRows{rows: [][]any{
			{"org1", "api", "API", false, false, "", ""},
			{"org1", "web", "Web", false, false, "", ""},
		}}}
		apps, err := registryPGStore(tx).ListApps(ctx, "org1")
		if err != nil || len(apps) != 2 {
			t.Fatalf("len=%d err=%v", len(apps), err)
		}
	})
}

func TestRegistryPGStore_EnvironmentTypes(t *testing.T) {
	ctx := context.Background()

	t.Run("create", func(t *testing.T) {
		tx := &stubTx{}
		et, err := registryPGStore(tx).CreateEnvironmentType(ctx, types.EnvironmentType{OrgID: "org1", ID: "prod", IsProtected: true})
		if err != nil || !et.IsProtected {
			t.Fatalf("et=%+v err=%v", et, err)
		}
	})

	t.Run("create duplicate", func(t *testing.T) {
		tx := &stubTx{execErr: &pgconn.PgError{Code: "23505"}, execErrAt: 2}
		if _, err := registryPGStore(tx).CreateEnvironmentType(ctx, types.EnvironmentType{OrgID: "org1", ID: "prod"}); storeerr.CodeOf(err) != "ENV_TYPE_EXISTS" {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		tx := &stubTx{rowErr: pgx.ErrNoRows}
		if _, err := registryPGStore(tx).GetEnvironmentType(ctx, "org1", "qa"); storeerr.CodeOf(err) != "ENV_TYPE_NOT_FOUND" {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		tx := &stubTx{rows: &tableRows{rows: [][]any{
			{"org1", "prod", "Production", true},
			{"org1", "qa", "QA", false},
		}}}
		ets, err := registryPGStore(tx).ListEnvironmentTypes(ctx, "org1")
		if err != nil || len(ets) != 2 || !ets[0].IsProtected {
			t.Fatalf("ets=%+v err=%v", ets, err)
		}
	})
}
