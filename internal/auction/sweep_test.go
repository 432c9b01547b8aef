package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// flakyFinalizer 让前几次取数失败，记录每次取数时刻。
type flakyFinalizer struct {
	svc      *Service
	mu       sync.Mutex
	failures int
	calls    []time.Time
}

func (f *flakyFinalizer) ListAuctionsToFinalize(ctx context.Context) ([]Auction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return nil, errors.New("storage unavailable")
	}
	return f.svc.ListAuctionsToFinalize(ctx)
}

func (f *flakyFinalizer) CloseAuction(ctx context.Context, id string) (*Auction, error) {
	return f.svc.CloseAuction(ctx, id)
}

func (f *flakyFinalizer) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.calls))
	copy(out, f.calls)
	return out
}

// closeFailFinalizer 指定一场拍卖结拍失败，其余放行。
type closeFailFinalizer struct {
	svc    *Service
	failID string
}

func (f *closeFailFinalizer) ListAuctionsToFinalize(ctx context.Context) ([]Auction, error) {
	return f.svc.ListAuctionsToFinalize(ctx)
}

func (f *closeFailFinalizer) CloseAuction(ctx context.Context, id string) (*Auction, error) {
	if id == f.failID {
		return nil, errors.New("close failed")
	}
	return f.svc.CloseAuction(ctx, id)
}

func TestSweepOnceFinalizesExpiredAuctions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	env.createVehicle(t, "VIN-B", 100)
	env.createVehicle(t, "VIN-C", 100)

	// 两场带截止时间的拍卖，一场不带（只能显式结拍）
	expiring, err := env.svc.CreateAuction(ctx, CreateAuctionInput{
		VehicleVINs: []string{"VIN-A"},
		EndTime:     timePtr(env.clock.Now().Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	expiring2, err := env.svc.CreateAuction(ctx, CreateAuctionInput{
		VehicleVINs: []string{"VIN-B"},
		EndTime:     timePtr(env.clock.Now().Add(3 * time.Hour)),
	})
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	open, err := env.svc.CreateAuction(ctx, CreateAuctionInput{VehicleVINs: []string{"VIN-C"}})
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	for _, id := range []string{expiring.ID, expiring2.ID, open.ID} {
		if _, err := env.svc.StartAuction(ctx, id); err != nil {
			t.Fatalf("StartAuction: %v", err)
		}
	}

	if _, err := env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "alice", Amount: decimal.NewFromInt(150)}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	log, err := loggerForTest()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	sweeper := NewSweeper(env.svc, time.Second, time.Second, log)

	// 只有第一场过了截止时间
	env.clock.Advance(2 * time.Hour)
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	got, err := env.svc.GetAuction(ctx, expiring.ID)
	if err != nil {
		t.Fatalf("GetAuction: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected expired auction completed, got %s", got.Status)
	}
	sold := env.mustVehicle(t, "VIN-A")
	if !sold.IsSold() || *sold.BuyerID != "alice" {
		t.Fatalf("expected vehicle sold to alice on finalization")
	}

	for _, id := range []string{expiring2.ID, open.ID} {
		got, err := env.svc.GetAuction(ctx, id)
		if err != nil {
			t.Fatalf("GetAuction: %v", err)
		}
		if got.Status != StatusActive {
			t.Fatalf("expected auction %s untouched, got %s", id, got.Status)
		}
	}

	// 同一批再扫一轮是无效果操作
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if env.audit.count() != 1 {
		t.Fatalf("expected exactly 1 audit record, got %d", env.audit.count())
	}

	// 第二场到期后被下一轮扫描收口
	env.clock.Advance(2 * time.Hour)
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	got, err = env.svc.GetAuction(ctx, expiring2.ID)
	if err != nil {
		t.Fatalf("GetAuction: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected second expired auction completed, got %s", got.Status)
	}
	released := env.mustVehicle(t, "VIN-B")
	if !released.Available {
		t.Fatalf("expected unbid vehicle released on finalization")
	}
}

func TestSweepOnceIsolatesFailingClose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	env.createVehicle(t, "VIN-B", 100)

	var ids []string
	for _, vin := range []string{"VIN-A", "VIN-B"} {
		a, err := env.svc.CreateAuction(ctx, CreateAuctionInput{
			VehicleVINs: []string{vin},
			EndTime:     timePtr(env.clock.Now().Add(time.Hour)),
		})
		if err != nil {
			t.Fatalf("CreateAuction: %v", err)
		}
		if _, err := env.svc.StartAuction(ctx, a.ID); err != nil {
			t.Fatalf("StartAuction: %v", err)
		}
		ids = append(ids, a.ID)
	}
	env.clock.Advance(2 * time.Hour)

	log, err := loggerForTest()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	// 第一场结拍失败不拖垮同批的第二场
	sweeper := NewSweeper(&closeFailFinalizer{svc: env.svc, failID: ids[0]}, time.Second, time.Second, log)
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	failed, err := env.svc.GetAuction(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetAuction: %v", err)
	}
	if failed.Status != StatusActive {
		t.Fatalf("expected failing auction left active, got %s", failed.Status)
	}
	ok, err := env.svc.GetAuction(ctx, ids[1])
	if err != nil {
		t.Fatalf("GetAuction: %v", err)
	}
	if ok.Status != StatusCompleted {
		t.Fatalf("expected sibling auction finalized, got %s", ok.Status)
	}

	// 故障恢复后下一轮把剩下的那场收口
	recovered := NewSweeper(env.svc, time.Second, time.Second, log)
	if err := recovered.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	failed, err = env.svc.GetAuction(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetAuction: %v", err)
	}
	if failed.Status != StatusCompleted {
		t.Fatalf("expected auction finalized after recovery, got %s", failed.Status)
	}
}

func TestSweeperRunBacksOffAfterFetchFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)

	a, err := env.svc.CreateAuction(ctx, CreateAuctionInput{
		VehicleVINs: []string{"VIN-A"},
		EndTime:     timePtr(env.clock.Now().Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if _, err := env.svc.StartAuction(ctx, a.ID); err != nil {
		t.Fatalf("StartAuction: %v", err)
	}
	env.clock.Advance(2 * time.Hour)

	log, err := loggerForTest()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	backoff := 60 * time.Millisecond
	flaky := &flakyFinalizer{svc: env.svc, failures: 2}
	sweeper := NewSweeper(flaky, 5*time.Millisecond, backoff, log)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(runCtx)
		close(done)
	}()

	// 前两轮取数失败，循环应当退避后恢复并最终把到期拍卖收口
	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := env.svc.GetAuction(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetAuction: %v", err)
		}
		if got.Status == StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweeper did not recover from fetch failures, status=%s", got.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	calls := flaky.callTimes()
	if len(calls) < 3 {
		t.Fatalf("expected at least 3 fetch attempts, got %d", len(calls))
	}
	// 每次失败后的下一次取数至少隔一个退避窗口
	for i := 0; i < 2; i++ {
		if gap := calls[i+1].Sub(calls[i]); gap < backoff-10*time.Millisecond {
			t.Fatalf("expected backoff before retry %d, gap was %s", i+1, gap)
		}
	}
}

func TestSweeperRunStopsOnContextCancel(t *testing.T) {
	env := newTestEnv(t)

	log, err := loggerForTest()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	sweeper := NewSweeper(env.svc, 10*time.Millisecond, 10*time.Millisecond, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop after context cancel")
	}
}
