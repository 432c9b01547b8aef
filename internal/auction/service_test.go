package auction

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/AutoBidHub/AutoBidHub/internal/common/apperr"
	"github.com/AutoBidHub/AutoBidHub/internal/common/logger"
	"github.com/AutoBidHub/AutoBidHub/internal/vehicle"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testClock 可拨动的时钟，保证截止判定可测。
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingAudit 记录每次结拍审计调用。
type recordingAudit struct {
	mu       sync.Mutex
	auctions []*Auction
}

func (r *recordingAudit) LogAuctionCompleted(a *Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions = append(r.auctions, a)
	return nil
}

func (r *recordingAudit) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.auctions)
}

func loggerForTest() (logger.Logger, error) {
	return logger.NewLogger("error", "text", "stdout", "")
}

type testEnv struct {
	svc      *Service
	vehicles *vehicle.Repo
	clock    *testClock
	audit    *recordingAudit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// 内存库每个连接是独立数据库，收紧到单连接
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&vehicle.Vehicle{}, &Auction{}, &Bid{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log, err := loggerForTest()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	clock := newTestClock()
	audit := &recordingAudit{}
	svc := NewService(db, NewRepo(db), vehicle.NewRepo(db), audit, log, clock.Now)
	return &testEnv{svc: svc, vehicles: vehicle.NewRepo(db), clock: clock, audit: audit}
}

func (e *testEnv) createVehicle(t *testing.T, vin string, price int64) *vehicle.Vehicle {
	t.Helper()
	doors := 4
	v := &vehicle.Vehicle{
		ID:             vin + "-id",
		VIN:            vin,
		Make:           "Toyota",
		Model:          "Corolla",
		ProductionYear: 2022,
		Type:           vehicle.TypeSedan,
		NumDoors:       &doors,
		StartingPrice:  decimal.NewFromInt(price),
		Available:      true,
	}
	if err := e.vehicles.Create(context.Background(), v); err != nil {
		t.Fatalf("create vehicle %s: %v", vin, err)
	}
	return v
}

func (e *testEnv) mustVehicle(t *testing.T, vin string) *vehicle.Vehicle {
	t.Helper()
	v, err := e.vehicles.FindByVIN(context.Background(), vin)
	if err != nil {
		t.Fatalf("find vehicle %s: %v", vin, err)
	}
	return v
}

func (e *testEnv) startAuction(t *testing.T, vins ...string) *Auction {
	t.Helper()
	ctx := context.Background()
	a, err := e.svc.CreateAuction(ctx, CreateAuctionInput{VehicleVINs: vins})
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}
	a, err = e.svc.StartAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("start auction: %v", err)
	}
	return a
}

func timePtr(t time.Time) *time.Time { return &t }

func TestCreateAuctionLocksVehicles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	env.createVehicle(t, "VIN-B", 200)

	a, err := env.svc.CreateAuction(ctx, CreateAuctionInput{
		Name:        "morning-batch",
		VehicleVINs: []string{"VIN-A", "VIN-B"},
	})
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if a.Status != StatusWaiting {
		t.Fatalf("expected waiting status, got %s", a.Status)
	}
	if len(a.Vehicles) != 2 {
		t.Fatalf("expected 2 vehicles in auction, got %d", len(a.Vehicles))
	}

	for _, vin := range []string{"VIN-A", "VIN-B"} {
		v := env.mustVehicle(t, vin)
		if v.Available {
			t.Fatalf("expected vehicle %s unavailable while in auction", vin)
		}
		if v.AuctionID == nil || *v.AuctionID != a.ID {
			t.Fatalf("expected vehicle %s bound to auction %s", vin, a.ID)
		}
	}

	got, err := env.svc.GetAuctionByName(ctx, "morning-batch")
	if err != nil {
		t.Fatalf("GetAuctionByName: %v", err)
	}
	if got.ID != a.ID {
		t.Fatalf("expected auction %s by name, got %s", a.ID, got.ID)
	}
}

func TestCreateAuctionAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)

	_, err := env.svc.CreateAuction(ctx, CreateAuctionInput{
		VehicleVINs: []string{"VIN-A", "VIN-MISSING"},
	})
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found for missing vehicle, got %v", err)
	}

	// 失败后已校验通过的车辆也不能留下任何占用痕迹
	v := env.mustVehicle(t, "VIN-A")
	if !v.Available || v.AuctionID != nil {
		t.Fatalf("expected vehicle untouched after rollback, got available=%v auctionID=%v", v.Available, v.AuctionID)
	}
}

func TestCreateAuctionRejectsBusyVehicle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)

	if _, err := env.svc.CreateAuction(ctx, CreateAuctionInput{VehicleVINs: []string{"VIN-A"}}); err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	_, err := env.svc.CreateAuction(ctx, CreateAuctionInput{VehicleVINs: []string{"VIN-A"}})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict for vehicle already in auction, got %v", err)
	}
}

func TestCreateAuctionRejectsPastEndTime(t *testing.T) {
	env := newTestEnv(t)
	env.createVehicle(t, "VIN-A", 100)

	_, err := env.svc.CreateAuction(context.Background(), CreateAuctionInput{
		VehicleVINs: []string{"VIN-A"},
		EndTime:     timePtr(env.clock.Now().Add(-time.Minute)),
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for past end time, got %v", err)
	}
}

func TestPlaceBidStrictlyIncreasing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	env.startAuction(t, "VIN-A")

	// 等于起拍价不行，必须严格超过
	_, err := env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "alice", Amount: decimal.NewFromInt(100)})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for bid at starting price, got %v", err)
	}

	a, err := env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "alice", Amount: decimal.NewFromInt(150)})
	if err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	// 等于当前最高价同样拒绝
	_, err = env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "bob", Amount: decimal.NewFromInt(150)})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for bid at current price, got %v", err)
	}

	if _, err := env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "bob", Amount: decimal.NewFromInt(200)}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	bids, err := env.svc.GetBidHistory(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetBidHistory: %v", err)
	}
	if len(bids) != 2 {
		t.Fatalf("expected 2 accepted bids, got %d", len(bids))
	}
	if !bids[0].Amount.Equal(decimal.NewFromInt(150)) || !bids[1].Amount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected bids ordered by time, got %s then %s", bids[0].Amount, bids[1].Amount)
	}
}

func TestPlaceBidRequiresActiveAuction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)

	if _, err := env.svc.CreateAuction(ctx, CreateAuctionInput{VehicleVINs: []string{"VIN-A"}}); err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}

	// waiting 状态不可出价
	_, err := env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "alice", Amount: decimal.NewFromInt(150)})
	if !apperr.IsInvalidState(err) {
		t.Fatalf("expected invalid state for bid on waiting auction, got %v", err)
	}
}

func TestPlaceBidAfterEndTimeRejected(t *testing.T) {
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

	_, err = env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "alice", Amount: decimal.NewFromInt(150)})
	if !apperr.IsInvalidState(err) {
		t.Fatalf("expected invalid state for bid after end time, got %v", err)
	}
}

func TestLotKindMismatchRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	env.createVehicle(t, "VIN-B", 100)

	single := env.startAuction(t, "VIN-A")

	coll, err := env.svc.CreateCollectiveAuction(ctx, CreateCollectiveAuctionInput{
		VehicleVINs: []string{"VIN-B"},
		StartingBid: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("CreateCollectiveAuction: %v", err)
	}
	if _, err := env.svc.StartAuction(ctx, coll.ID); err != nil {
		t.Fatalf("StartAuction: %v", err)
	}

	// 单车拍不接受整体出价
	_, err = env.svc.PlaceCollectiveBid(ctx, PlaceCollectiveBidInput{AuctionID: single.ID, BidderID: "alice", Amount: decimal.NewFromInt(150)})
	if !apperr.IsInvalidState(err) {
		t.Fatalf("expected invalid state for collective bid on individual auction, got %v", err)
	}

	// 整体拍不接受单车出价
	_, err = env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-B", BidderID: "alice", Amount: decimal.NewFromInt(150)})
	if !apperr.IsInvalidState(err) {
		t.Fatalf("expected invalid state for individual bid on collective auction, got %v", err)
	}
}

func TestPlaceCollectiveBid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	env.createVehicle(t, "VIN-B", 500)

	a, err := env.svc.CreateCollectiveAuction(ctx, CreateCollectiveAuctionInput{
		VehicleVINs: []string{"VIN-A", "VIN-B"},
		StartingBid: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateCollectiveAuction: %v", err)
	}
	if _, err := env.svc.StartAuction(ctx, a.ID); err != nil {
		t.Fatalf("StartAuction: %v", err)
	}

	// 共享起拍价覆盖各车原起拍价
	_, err = env.svc.PlaceCollectiveBid(ctx, PlaceCollectiveBidInput{AuctionID: a.ID, BidderID: "alice", Amount: decimal.NewFromInt(800)})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for bid below shared starting price, got %v", err)
	}

	if _, err := env.svc.PlaceCollectiveBid(ctx, PlaceCollectiveBidInput{AuctionID: a.ID, BidderID: "alice", Amount: decimal.NewFromInt(1200)}); err != nil {
		t.Fatalf("PlaceCollectiveBid: %v", err)
	}

	bids, err := env.svc.GetBidHistory(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetBidHistory: %v", err)
	}
	// 一次受理为每台车各落一条完全一致的记录
	if len(bids) != 2 {
		t.Fatalf("expected 2 bid records for 2 vehicles, got %d", len(bids))
	}
	for i := range bids {
		if !bids[i].Amount.Equal(decimal.NewFromInt(1200)) || bids[i].BidderID != "alice" {
			t.Fatalf("expected identical collective bid records, got %+v", bids[i])
		}
	}
	if !bids[0].BidTime.Equal(bids[1].BidTime) {
		t.Fatalf("expected identical bid time across the lot")
	}

	// 下一口必须超过车组当前价
	_, err = env.svc.PlaceCollectiveBid(ctx, PlaceCollectiveBidInput{AuctionID: a.ID, BidderID: "bob", Amount: decimal.NewFromInt(1200)})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for bid at lot current price, got %v", err)
	}
}

func TestAddVehiclesInheritsLotPrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	env.createVehicle(t, "VIN-B", 50)

	a, err := env.svc.CreateCollectiveAuction(ctx, CreateCollectiveAuctionInput{
		VehicleVINs: []string{"VIN-A"},
		StartingBid: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateCollectiveAuction: %v", err)
	}
	if _, err := env.svc.StartAuction(ctx, a.ID); err != nil {
		t.Fatalf("StartAuction: %v", err)
	}
	if _, err := env.svc.PlaceCollectiveBid(ctx, PlaceCollectiveBidInput{AuctionID: a.ID, BidderID: "alice", Amount: decimal.NewFromInt(1500)}); err != nil {
		t.Fatalf("PlaceCollectiveBid: %v", err)
	}

	if _, err := env.svc.AddVehiclesToAuction(ctx, a.ID, []string{"VIN-B"}); err != nil {
		t.Fatalf("AddVehiclesToAuction: %v", err)
	}

	// 新进车辆继承车组当前价，一组一价不被打破
	v := env.mustVehicle(t, "VIN-B")
	if !v.StartingPrice.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected inherited lot price 1500, got %s", v.StartingPrice)
	}
}

func TestRemoveVehicleWithBidsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	env.createVehicle(t, "VIN-B", 100)
	a := env.startAuction(t, "VIN-A", "VIN-B")

	if _, err := env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "alice", Amount: decimal.NewFromInt(150)}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	_, err := env.svc.RemoveVehiclesFromAuction(ctx, a.ID, []string{"VIN-A"})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict removing vehicle with bids, got %v", err)
	}

	// 无出价的车辆可以移除并解锁
	if _, err := env.svc.RemoveVehiclesFromAuction(ctx, a.ID, []string{"VIN-B"}); err != nil {
		t.Fatalf("RemoveVehiclesFromAuction: %v", err)
	}
	v := env.mustVehicle(t, "VIN-B")
	if !v.Available || v.AuctionID != nil {
		t.Fatalf("expected removed vehicle unlocked, got available=%v auctionID=%v", v.Available, v.AuctionID)
	}

	_, err = env.svc.RemoveVehiclesFromAuction(ctx, a.ID, []string{"VIN-B"})
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found removing non-member vehicle, got %v", err)
	}
}

func TestCancelAuctionUnlocksAndClearsBids(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	a := env.startAuction(t, "VIN-A")

	if _, err := env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "alice", Amount: decimal.NewFromInt(150)}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	cancelled, err := env.svc.CancelAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("CancelAuction: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	v := env.mustVehicle(t, "VIN-A")
	if !v.Available || v.AuctionID != nil {
		t.Fatalf("expected vehicle unlocked after cancel, got available=%v auctionID=%v", v.Available, v.AuctionID)
	}
	bids, err := env.svc.GetBidHistory(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetBidHistory: %v", err)
	}
	if len(bids) != 0 {
		t.Fatalf("expected bid ledger cleared, got %d bids", len(bids))
	}

	// 重复取消是无效果操作
	if _, err := env.svc.CancelAuction(ctx, a.ID); err != nil {
		t.Fatalf("expected repeated cancel to be a no-op, got %v", err)
	}
}

func TestCancelWaitingAuction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)

	a, err := env.svc.CreateAuction(ctx, CreateAuctionInput{VehicleVINs: []string{"VIN-A"}})
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if _, err := env.svc.CancelAuction(ctx, a.ID); err != nil {
		t.Fatalf("CancelAuction: %v", err)
	}
	v := env.mustVehicle(t, "VIN-A")
	if !v.Available {
		t.Fatalf("expected vehicle released after cancelling waiting auction")
	}
}

func TestCloseAuctionSellsAndReleases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	env.createVehicle(t, "VIN-B", 100)
	a := env.startAuction(t, "VIN-A", "VIN-B")

	if _, err := env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "alice", Amount: decimal.NewFromInt(150)}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if _, err := env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "bob", Amount: decimal.NewFromInt(300)}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	closed, err := env.svc.CloseAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("CloseAuction: %v", err)
	}
	if closed.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %s", closed.Status)
	}

	// 有出价的车按最高价成交，保留拍卖引用作为成交记录
	sold := env.mustVehicle(t, "VIN-A")
	if !sold.IsSold() || *sold.BuyerID != "bob" {
		t.Fatalf("expected vehicle sold to highest bidder bob, got %+v", sold.BuyerID)
	}
	if sold.Available {
		t.Fatalf("expected sold vehicle to stay unavailable")
	}
	if sold.AuctionID == nil || *sold.AuctionID != a.ID {
		t.Fatalf("expected sold vehicle to keep auction reference")
	}

	// 无出价的车解锁恢复可用
	unsold := env.mustVehicle(t, "VIN-B")
	if !unsold.Available || unsold.AuctionID != nil || unsold.IsSold() {
		t.Fatalf("expected unsold vehicle released, got %+v", unsold)
	}

	if env.audit.count() != 1 {
		t.Fatalf("expected exactly 1 audit record, got %d", env.audit.count())
	}
}

func TestCloseAuctionIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	a := env.startAuction(t, "VIN-A")

	if _, err := env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "alice", Amount: decimal.NewFromInt(150)}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if _, err := env.svc.CloseAuction(ctx, a.ID); err != nil {
		t.Fatalf("CloseAuction: %v", err)
	}

	// 再次结拍是无效果操作，不产生第二条审计
	again, err := env.svc.CloseAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("expected repeated close to be a no-op, got %v", err)
	}
	if again.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %s", again.Status)
	}
	if env.audit.count() != 1 {
		t.Fatalf("expected exactly 1 audit record after repeated close, got %d", env.audit.count())
	}

	// 已完成的拍卖不可取消
	_, err = env.svc.CancelAuction(ctx, a.ID)
	if !apperr.IsInvalidState(err) {
		t.Fatalf("expected invalid state cancelling completed auction, got %v", err)
	}
}

func TestCloseWaitingAuctionRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)

	a, err := env.svc.CreateAuction(ctx, CreateAuctionInput{VehicleVINs: []string{"VIN-A"}})
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	_, err = env.svc.CloseAuction(ctx, a.ID)
	if !apperr.IsInvalidState(err) {
		t.Fatalf("expected invalid state closing waiting auction, got %v", err)
	}
}

func TestSoldVehicleCannotReenterAuction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	a := env.startAuction(t, "VIN-A")

	if _, err := env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: "alice", Amount: decimal.NewFromInt(150)}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if _, err := env.svc.CloseAuction(ctx, a.ID); err != nil {
		t.Fatalf("CloseAuction: %v", err)
	}

	_, err := env.svc.CreateAuction(ctx, CreateAuctionInput{VehicleVINs: []string{"VIN-A"}})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict for sold vehicle, got %v", err)
	}
}

func TestConcurrentBidsOnlyOneAccepted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	a := env.startAuction(t, "VIN-A")

	// 两笔同额出价并发到达，行锁串行化后只有先到的一笔通过校验
	amount := decimal.NewFromInt(200)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, bidder := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(i int, bidder string) {
			defer wg.Done()
			_, errs[i] = env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "VIN-A", BidderID: bidder, Amount: amount})
		}(i, bidder)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly 1 accepted bid, got %d (errs=%v)", accepted, errs)
	}

	bids, err := env.svc.GetBidHistory(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetBidHistory: %v", err)
	}
	if len(bids) != 1 {
		t.Fatalf("expected 1 bid in ledger, got %d", len(bids))
	}
}

func TestConcurrentBidsNoEqualAmountsAccepted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	a := env.startAuction(t, "VIN-A")

	// 同额的竞争出价最多只能有一笔进账本，账本内金额必须各不相同
	amounts := []int64{200, 200, 200, 250, 250, 300}
	var wg sync.WaitGroup
	for i, amount := range amounts {
		wg.Add(1)
		go func(i int, amount int64) {
			defer wg.Done()
			_, err := env.svc.PlaceBid(ctx, PlaceBidInput{
				VehicleVIN: "VIN-A",
				BidderID:   "bidder-" + strconv.Itoa(i),
				Amount:     decimal.NewFromInt(amount),
			})
			if err != nil && !apperr.IsValidation(err) {
				t.Errorf("unexpected error kind: %v", err)
			}
		}(i, amount)
	}
	wg.Wait()

	bids, err := env.svc.GetBidHistory(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetBidHistory: %v", err)
	}
	seen := make(map[string]bool)
	highest := decimal.Zero
	for i := range bids {
		key := bids[i].Amount.String()
		if seen[key] {
			t.Fatalf("two accepted bids share amount %s", key)
		}
		seen[key] = true
		if bids[i].Amount.GreaterThan(highest) {
			highest = bids[i].Amount
		}
	}
	// 300 高于一切，无论调度顺序都必须被受理
	if !highest.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected highest accepted bid 300, got %s", highest)
	}
	if len(bids) > 3 {
		t.Fatalf("expected at most one accepted bid per amount, got %d bids", len(bids))
	}
}

func TestPlaceBidTrimsVIN(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	a := env.startAuction(t, "VIN-A")

	if _, err := env.svc.PlaceBid(ctx, PlaceBidInput{VehicleVIN: "  VIN-A  ", BidderID: "alice", Amount: decimal.NewFromInt(150)}); err != nil {
		t.Fatalf("PlaceBid with padded VIN: %v", err)
	}
	bids, err := env.svc.GetBidHistory(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetBidHistory: %v", err)
	}
	if len(bids) != 1 {
		t.Fatalf("expected 1 accepted bid, got %d", len(bids))
	}
}

func TestCreateAuctionDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createVehicle(t, "VIN-A", 100)
	env.createVehicle(t, "VIN-B", 100)
	env.createVehicle(t, "VIN-C", 100)
	env.createVehicle(t, "VIN-D", 100)

	if _, err := env.svc.CreateAuction(ctx, CreateAuctionInput{Name: "spring-sale", VehicleVINs: []string{"VIN-A"}}); err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	_, err := env.svc.CreateAuction(ctx, CreateAuctionInput{Name: "spring-sale", VehicleVINs: []string{"VIN-B"}})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict for duplicate auction name, got %v", err)
	}

	// 未命名的拍卖不参与唯一性约束
	if _, err := env.svc.CreateAuction(ctx, CreateAuctionInput{VehicleVINs: []string{"VIN-C"}}); err != nil {
		t.Fatalf("CreateAuction unnamed: %v", err)
	}
	if _, err := env.svc.CreateAuction(ctx, CreateAuctionInput{VehicleVINs: []string{"VIN-D"}}); err != nil {
		t.Fatalf("CreateAuction unnamed: %v", err)
	}
}

func TestGetBidHistoryUnknownAuction(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.GetBidHistory(context.Background(), "missing")
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
