package subscription

import (
	"context"
	"testing"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/database"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/testhelper"
)

func TestRecordIsPremium(t *testing.T) {
	tests := []struct {
		record Record
		want   bool
	}{
		{Record{Tier: "premium", Status: "active"}, true},
		{Record{Tier: "premium", Status: "trialing"}, true},
		{Record{Tier: "Premium", Status: "ACTIVE"}, true},
		{Record{Tier: "premium", Status: "canceled"}, false},
		{Record{Tier: "premium", Status: "past_due"}, false},
		{Record{Tier: "premium", Status: ""}, false},
		{Record{Tier: "free", Status: "active"}, false},
		{Record{}, false},
	}
	for _, tt := range tests {
		if got := tt.record.IsPremium(); got != tt.want {
			t.Fatalf("%+v: IsPremium = %v, want %v", tt.record, got, tt.want)
		}
	}
	if (Record{Tier: "premium", Status: "canceled"}).EffectiveTier() != TierFree {
		t.Fatalf("canceled premium must be treated as free")
	}
}

func newTestRepository(t *testing.T, ttlSeconds int) *Repository {
	t.Helper()
	conn := database.NewConnectorWithDB(testhelper.NewTestDB(t))
	return NewRepository(conn, config.EntitlementConfig{
		SubscriptionCacheSize:       10,
		SubscriptionCacheTTLSeconds: ttlSeconds,
	}, nil)
}

func TestRepositoryMissingCallerIsFree(t *testing.T) {
	repo := newTestRepository(t, 0)
	record, err := repo.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Tier != TierFree || record.Status != StatusNone || record.IsPremium() {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestRepositoryUpsertAndGet(t *testing.T) {
	repo := newTestRepository(t, 60)
	ctx := context.Background()

	if err := repo.Upsert(ctx, Record{CallerID: "u1", Tier: "premium", Status: "active"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	record, err := repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !record.IsPremium() {
		t.Fatalf("expected premium record: %+v", record)
	}

	// 갱신 시 캐시가 비워져야 한다.
	if err := repo.Upsert(ctx, Record{CallerID: "u1", Tier: "premium", Status: "canceled"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	record, err = repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.IsPremium() || record.Status != StatusCanceled {
		t.Fatalf("expected canceled record after upsert: %+v", record)
	}
}

func TestRepositoryRejectsEmptyCaller(t *testing.T) {
	repo := newTestRepository(t, 0)
	if _, err := repo.Get(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty caller")
	}
}

func TestRepositoryNotConfigured(t *testing.T) {
	repo := NewRepository(nil, config.EntitlementConfig{}, nil)
	if _, err := repo.Get(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error without connector")
	}
	if err := repo.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error without connector")
	}
}

func TestStaticLookup(t *testing.T) {
	lookup := Static{"vip": {Tier: TierPremium, Status: StatusTrialing}}
	record, _ := lookup.Get(context.Background(), "vip")
	if !record.IsPremium() || record.CallerID != "vip" {
		t.Fatalf("unexpected record: %+v", record)
	}
	record, _ = lookup.Get(context.Background(), "other")
	if record.IsPremium() {
		t.Fatalf("unknown caller must be free")
	}
}
