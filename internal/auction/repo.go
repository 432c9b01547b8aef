package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AutoBidHub/AutoBidHub/internal/common/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repo 拍卖聚合的持久化网关。
// 写路径约定：所有变更操作先 FindByIDForUpdate 锁定拍卖行、
// 在同一事务内完成读最高价-追加出价-写状态，保证对同一拍卖串行。
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// WithTx 返回绑定到事务的仓储。
func (r *Repo) WithTx(tx *gorm.DB) *Repo {
	return &Repo{db: tx}
}

func (r *Repo) withCtx(ctx context.Context) (*gorm.DB, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx), nil
}

func (r *Repo) Create(ctx context.Context, a *Auction) error {
	db, err := r.withCtx(ctx)
	if err != nil {
		return err
	}
	// 只写拍卖行本身；车辆行由车辆仓储在同一事务内维护
	return db.Omit("Vehicles", "Bids").Create(a).Error
}

func (r *Repo) Save(ctx context.Context, a *Auction) error {
	db, err := r.withCtx(ctx)
	if err != nil {
		return err
	}
	return db.Omit("Vehicles", "Bids").Save(a).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Auction, error) {
	return r.findOne(ctx, false, "auctions.id = ?", id)
}

// FindByIDForUpdate 以 SELECT ... FOR UPDATE 锁定拍卖行后加载聚合。
// 并发出价、后台结拍与前台操作都经由这把行锁串行化。
func (r *Repo) FindByIDForUpdate(ctx context.Context, id string) (*Auction, error) {
	return r.findOne(ctx, true, "auctions.id = ?", id)
}

func (r *Repo) FindByName(ctx context.Context, name string) (*Auction, error) {
	if name == "" {
		return nil, apperr.Validation("auction name required")
	}
	return r.findOne(ctx, false, "auctions.name = ?", name)
}

func (r *Repo) findOne(ctx context.Context, forUpdate bool, query string, args ...any) (*Auction, error) {
	db, err := r.withCtx(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Preload("Vehicles").Preload("Bids")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var a Auction
	if err := q.Where(query, args...).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("auction not found")
		}
		return nil, err
	}
	return &a, nil
}

// FindActiveForVIN 查找引用了指定 VIN 车辆的未结束拍卖；没有则 NotFound。
func (r *Repo) FindActiveForVIN(ctx context.Context, vin string) (*Auction, error) {
	db, err := r.withCtx(ctx)
	if err != nil {
		return nil, err
	}
	var a Auction
	err = db.
		Joins("JOIN vehicles ON vehicles.auction_id = auctions.id").
		Where("vehicles.vin = ? AND auctions.status IN ?", vin,
			[]Status{StatusWaiting, StatusActive}).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no auction found for vehicle %s", vin)
		}
		return nil, err
	}
	return &a, nil
}

// ListByStatus 按状态列出拍卖（status 为空则列出全部）。
func (r *Repo) ListByStatus(ctx context.Context, status Status) ([]Auction, error) {
	db, err := r.withCtx(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Preload("Vehicles").Preload("Bids")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var auctions []Auction
	if err := q.Order("created_at DESC").Find(&auctions).Error; err != nil {
		return nil, err
	}
	return auctions, nil
}

// ListEndingBefore 列出截止时间已过、仍在进行中的拍卖（后台扫描用）。
func (r *Repo) ListEndingBefore(ctx context.Context, t time.Time) ([]Auction, error) {
	db, err := r.withCtx(ctx)
	if err != nil {
		return nil, err
	}
	var auctions []Auction
	err = db.
		Where("status = ? AND end_time IS NOT NULL AND end_time <= ?", StatusActive, t).
		Order("end_time ASC").
		Find(&auctions).Error
	if err != nil {
		return nil, err
	}
	return auctions, nil
}

func (r *Repo) CreateBid(ctx context.Context, b *Bid) error {
	db, err := r.withCtx(ctx)
	if err != nil {
		return err
	}
	return db.Create(b).Error
}

// DeleteBidsForAuction 清空指定拍卖的出价账本（仅取消时调用）。
func (r *Repo) DeleteBidsForAuction(ctx context.Context, auctionID string) error {
	db, err := r.withCtx(ctx)
	if err != nil {
		return err
	}
	return db.Where("auction_id = ?", auctionID).Delete(&Bid{}).Error
}

// ListBids 返回拍卖的完整出价历史，按出价时间升序。
func (r *Repo) ListBids(ctx context.Context, auctionID string) ([]Bid, error) {
	db, err := r.withCtx(ctx)
	if err != nil {
		return nil, err
	}
	var bids []Bid
	if err := db.Where("auction_id = ?", auctionID).Order("bid_time ASC").Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}
