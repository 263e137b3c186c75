package sqlstore_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-apiclient/core"
	sqlstore "github.com/goliatone/go-apiclient/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
)

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"apiclient_session_tokens",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "apiclient_session_tokens" {
		t.Fatalf("expected apiclient_session_tokens table, got %q", tableName)
	}
}

func TestCredentialStore_SaveLoadAndRotate(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewCredentialStore(client)
	if err != nil {
		t.Fatalf("new credential store: %v", err)
	}

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	if err := store.Save(ctx, core.CredentialPair{AccessToken: "T1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("save first pair: %v", err)
	}
	if err := store.Save(ctx, core.CredentialPair{AccessToken: "T2", RefreshToken: "R2"}); err != nil {
		t.Fatalf("save rotated pair: %v", err)
	}

	pair, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load pair: ok=%v err=%v", ok, err)
	}
	if pair.AccessToken != "T2" || pair.RefreshToken != "R2" {
		t.Fatalf("expected rotated pair, got %+v", pair)
	}

	var rows int
	if err := client.DB().NewRaw(
		"SELECT COUNT(*) FROM apiclient_session_tokens WHERE session_key = ?",
		sqlstore.DefaultSessionKey,
	).Scan(ctx, &rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 2 {
		t.Fatalf("expected one row per token key, got %d", rows)
	}
}

func TestCredentialStore_EmptyRefreshTokenLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewCredentialStore(client.DB())
	if err != nil {
		t.Fatalf("new credential store: %v", err)
	}
	if err := store.Save(ctx, core.CredentialPair{AccessToken: "T1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("save pair: %v", err)
	}
	if err := store.Save(ctx, core.CredentialPair{AccessToken: "T2"}); err != nil {
		t.Fatalf("save access only: %v", err)
	}

	pair, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load pair: ok=%v err=%v", ok, err)
	}
	if pair.AccessToken != "T2" || pair.RefreshToken != "" {
		t.Fatalf("expected access token only, got %+v", pair)
	}
}

func TestCredentialStore_ClearIsScopedToSession(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	desk, err := sqlstore.NewCredentialStore(client, sqlstore.WithSessionKey("desk"))
	if err != nil {
		t.Fatalf("new desk store: %v", err)
	}
	kiosk, err := sqlstore.NewCredentialStore(client, sqlstore.WithSessionKey("kiosk"))
	if err != nil {
		t.Fatalf("new kiosk store: %v", err)
	}
	if desk.SessionKey() != "desk" {
		t.Fatalf("expected desk session key, got %q", desk.SessionKey())
	}

	if err := desk.Save(ctx, core.CredentialPair{AccessToken: "D1", RefreshToken: "DR1"}); err != nil {
		t.Fatalf("save desk: %v", err)
	}
	if err := kiosk.Save(ctx, core.CredentialPair{AccessToken: "K1", RefreshToken: "KR1"}); err != nil {
		t.Fatalf("save kiosk: %v", err)
	}
	if err := desk.Clear(ctx); err != nil {
		t.Fatalf("clear desk: %v", err)
	}

	if _, ok, err := desk.Load(ctx); err != nil || ok {
		t.Fatalf("expected desk cleared, got ok=%v err=%v", ok, err)
	}
	pair, ok, err := kiosk.Load(ctx)
	if err != nil || !ok || pair.AccessToken != "K1" {
		t.Fatalf("expected kiosk pair to survive, got %+v ok=%v err=%v", pair, ok, err)
	}
}

func TestCredentialStore_UsesConfiguredTokenKeys(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewCredentialStore(client, sqlstore.WithTokenKeys(core.StorageConfig{
		AccessTokenKey:  "@app:access",
		RefreshTokenKey: "@app:refresh",
	}))
	if err != nil {
		t.Fatalf("new credential store: %v", err)
	}
	if err := store.Save(ctx, core.CredentialPair{AccessToken: "T1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("save pair: %v", err)
	}

	var keys []string
	if err := client.DB().NewRaw(
		"SELECT token_key FROM apiclient_session_tokens ORDER BY token_key",
	).Scan(ctx, &keys); err != nil {
		t.Fatalf("select token keys: %v", err)
	}
	if strings.Join(keys, ",") != "@app:access,@app:refresh" {
		t.Fatalf("unexpected token keys %v", keys)
	}
}

func TestCredentialStore_RestoresClientSession(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewCredentialStore(client)
	if err != nil {
		t.Fatalf("new credential store: %v", err)
	}

	first := newCoreClient(t, store)
	if err := first.SetCredentials(ctx, "T1", "R1"); err != nil {
		t.Fatalf("set credentials: %v", err)
	}

	restored := newCoreClient(t, store)
	if restored.AccessToken() != "T1" || restored.RefreshToken() != "R1" {
		t.Fatalf("expected restored pair, got %q %q", restored.AccessToken(), restored.RefreshToken())
	}

	if err := restored.ClearCredentials(ctx); err != nil {
		t.Fatalf("clear credentials: %v", err)
	}
	if _, ok, _ := store.Load(ctx); ok {
		t.Fatalf("expected cleared store")
	}
}

func TestOpen_RejectsUnsupportedDriver(t *testing.T) {
	if _, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: "sqlite3"}); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

func TestNewCredentialStore_RequiresDatabase(t *testing.T) {
	if _, err := sqlstore.NewCredentialStore(nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := sqlstore.NewCredentialStore("not-a-db"); err == nil {
		t.Fatalf("expected error for unsupported client")
	}
}

type noopTransport struct{}

func (noopTransport) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	return core.TransportResponse{StatusCode: 204}, nil
}

func newCoreClient(t *testing.T, store core.CredentialPersistence) *core.Client {
	t.Helper()
	client, err := core.NewClient(
		core.Config{BaseURL: "http://api.test"},
		core.WithTransport(noopTransport{}),
		core.WithCredentialPersistence(store),
	)
	if err != nil {
		t.Fatalf("new core client: %v", err)
	}
	return client
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:apiclient-test-%d?mode=memory&cache=shared",
		time.Now().UnixNano(),
	)
	client, err := sqlstore.Open(context.Background(), sqlstore.Config{
		Driver:       sqlstore.DriverSQLite,
		DSN:          dsn,
		PingTimeout:  time.Second,
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
