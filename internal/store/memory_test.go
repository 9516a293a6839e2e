package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wagerhouse/wager-engine/internal/model"
	"github.com/wagerhouse/wager-engine/internal/store"
)

const addr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestBalanceUpsertAndGet(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := ms.GetBalance(ctx, addr); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := ms.UpsertBalance(ctx, addr, decimal.NewFromInt(5)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := ms.UpsertBalance(ctx, addr, decimal.NewFromInt(9)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	b, err := ms.GetBalance(ctx, addr)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !b.Equal(decimal.NewFromInt(9)) {
		t.Errorf("expected 9, got %s", b)
	}
}

func TestListBalancesSkipsZero(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.UpsertBalance(ctx, addr, decimal.NewFromInt(5))
	ms.UpsertBalance(ctx, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", decimal.Zero)

	balances, err := ms.ListBalances(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(balances) != 1 {
		t.Fatalf("expected 1 balance, got %d", len(balances))
	}
	if !balances[addr].Equal(decimal.NewFromInt(5)) {
		t.Errorf("unexpected balance %s", balances[addr])
	}
}

func TestJournalByAddress(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	for i, a := range []string{addr, addr, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"} {
		err := ms.AppendJournal(ctx, &model.JournalEntry{
			ID:        "entry-" + string(rune('a'+i)),
			Game:      model.GameLottery,
			Kind:      model.JournalStake,
			Address:   a,
			Amount:    decimal.NewFromInt(int64(i + 1)),
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	entries, err := ms.JournalByAddress(ctx, addr)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestRecentRoundResultsNewestFirst(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	for id := uint64(1); id <= 3; id++ {
		err := ms.SaveRoundResult(ctx, &model.RoundResult{
			LotteryID: id,
			Winner:    addr,
			Prize:     decimal.NewFromInt(10),
		})
		if err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	results, err := ms.RecentRoundResults(ctx, 2)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].LotteryID != 3 || results[1].LotteryID != 2 {
		t.Errorf("expected newest first, got %d then %d", results[0].LotteryID, results[1].LotteryID)
	}
}
