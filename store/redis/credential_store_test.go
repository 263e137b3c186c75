package redisstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-apiclient/core"
	redisstore "github.com/goliatone/go-apiclient/store/redis"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, opts ...redisstore.Option) (*redisstore.CredentialStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	store, err := redisstore.NewCredentialStore(rdb, opts...)
	if err != nil {
		t.Fatalf("new credential store: %v", err)
	}
	return store, mr
}

func TestCredentialStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	if err := store.Save(ctx, core.CredentialPair{AccessToken: "T1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	pair, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if pair.AccessToken != "T1" || pair.RefreshToken != "R1" {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if got := mr.HGet("apiclient:session:default", core.DefaultAccessTokenKey); got != "T1" {
		t.Fatalf("expected access token field, got %q", got)
	}
}

func TestCredentialStore_SaveDropsEmptyRefreshField(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, redisstore.WithKeyPrefix("app:"), redisstore.WithSessionKey("kiosk"))

	if err := store.Save(ctx, core.CredentialPair{AccessToken: "T1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("save pair: %v", err)
	}
	if err := store.Save(ctx, core.CredentialPair{AccessToken: "T2"}); err != nil {
		t.Fatalf("save access only: %v", err)
	}
	if store.Key() != "app:kiosk" {
		t.Fatalf("unexpected key %q", store.Key())
	}
	if mr.HGet("app:kiosk", core.DefaultRefreshTokenKey) != "" {
		t.Fatalf("expected refresh field removed")
	}
}

func TestCredentialStore_TTLExpiresPair(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, redisstore.WithTTL(time.Hour))

	if err := store.Save(ctx, core.CredentialPair{AccessToken: "T1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL(store.Key()); ttl != time.Hour {
		t.Fatalf("expected one hour ttl, got %s", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("expected expired pair, got ok=%v err=%v", ok, err)
	}
}

func TestCredentialStore_ClearAndCustomKeys(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, redisstore.WithTokenKeys(core.StorageConfig{
		AccessTokenKey:  "@app:access",
		RefreshTokenKey: "@app:refresh",
	}))

	if err := store.Save(ctx, core.CredentialPair{AccessToken: "T1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if mr.HGet(store.Key(), "@app:refresh") != "R1" {
		t.Fatalf("expected custom refresh field")
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists(store.Key()) {
		t.Fatalf("expected key removed")
	}
}

func TestCredentialStore_UnavailableRedisSurfacesError(t *testing.T) {
	store, mr := newTestStore(t)
	mr.SetError("LOADING redis is loading the dataset")

	ctx := context.Background()
	if _, _, err := store.Load(ctx); err == nil {
		t.Fatalf("expected load error")
	}
	if err := store.Save(ctx, core.CredentialPair{AccessToken: "T1"}); err == nil {
		t.Fatalf("expected save error")
	}
}

func TestNewCredentialStore_RequiresClient(t *testing.T) {
	if _, err := redisstore.NewCredentialStore(nil); err == nil {
		t.Fatalf("expected error without client")
	}
}

type stubTransport struct{}

func (stubTransport) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	return core.TransportResponse{}, errors.New("offline")
}

func TestCredentialStore_BacksClientSession(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	if err := store.Save(ctx, core.CredentialPair{AccessToken: "T9", RefreshToken: "R9"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	client, err := core.NewClient(core.Config{BaseURL: "http://api.test"},
		core.WithTransport(stubTransport{}),
		core.WithCredentialPersistence(store),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if !client.Session().Authenticated || client.RefreshToken() != "R9" {
		t.Fatalf("expected restored session, got %+v", client.Session())
	}
}
