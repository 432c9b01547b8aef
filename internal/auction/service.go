package auction

import (
	"context"
	"strings"
	"time"

	"github.com/AutoBidHub/AutoBidHub/internal/common/apperr"
	"github.com/AutoBidHub/AutoBidHub/internal/common/logger"
	"github.com/AutoBidHub/AutoBidHub/internal/vehicle"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Clock 取当前时间。注入以便截止判定、结拍时间可测试。
type Clock func() time.Time

// Service 封装拍卖引擎的全部用例（不依赖 HTTP），驱动聚合状态流转。
//
// 并发约定：所有变更操作在一个数据库事务内执行，入口处用
// FindByIDForUpdate 锁定拍卖行。两笔并发出价、或出价与后台结拍
// 竞争时，后到者在锁释放后看到最新状态，要么按新的当前价校验、
// 要么因拍卖已结束而被拒绝，不会出现双高价或丢失更新。
type Service struct {
	db       *gorm.DB
	auctions *Repo
	vehicles *vehicle.Repo
	audit    CompletionLogger
	log      logger.Logger
	clock    Clock
}

func NewService(db *gorm.DB, auctions *Repo, vehicles *vehicle.Repo, audit CompletionLogger, log logger.Logger, clock Clock) *Service {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if audit == nil {
		audit = NopCompletionLogger{}
	}
	return &Service{
		db:       db,
		auctions: auctions,
		vehicles: vehicles,
		audit:    audit,
		log:      log,
		clock:    clock,
	}
}

func (s *Service) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// CreateAuctionInput 创建拍卖的入参。
type CreateAuctionInput struct {
	Name        string
	VehicleVINs []string
	EndTime     *time.Time
}

// CreateAuction 创建单车出价的拍卖：锁定全部车辆并建一个 waiting 拍卖。
// 全有或全无：任何一台车校验失败，整个事务回滚，所有车辆保持原状。
func (s *Service) CreateAuction(ctx context.Context, in CreateAuctionInput) (*Auction, error) {
	return s.createAuction(ctx, in.Name, in.VehicleVINs, in.EndTime, false, decimal.Zero)
}

// CreateCollectiveAuctionInput 创建整体拍的入参。
type CreateCollectiveAuctionInput struct {
	Name        string
	VehicleVINs []string
	EndTime     *time.Time
	StartingBid decimal.Decimal // 整车组共享的起拍价
}

// CreateCollectiveAuction 创建整体拍：全部车辆共享同一起拍价与当前价。
func (s *Service) CreateCollectiveAuction(ctx context.Context, in CreateCollectiveAuctionInput) (*Auction, error) {
	if in.StartingBid.LessThanOrEqual(decimal.Zero) {
		return nil, apperr.Validation("starting bid must be positive")
	}
	return s.createAuction(ctx, in.Name, in.VehicleVINs, in.EndTime, true, in.StartingBid)
}

func (s *Service) createAuction(ctx context.Context, name string, vins []string, endTime *time.Time, collective bool, startingBid decimal.Decimal) (*Auction, error) {
	if len(vins) == 0 {
		return nil, apperr.Validation("vehicle list must not be empty")
	}
	if endTime != nil && !endTime.After(s.clock()) {
		return nil, apperr.Validation("end time must be in the future")
	}

	a := &Auction{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		EndTime:      endTime,
		Status:       StatusWaiting,
		IsCollective: collective,
	}

	err := s.inTx(ctx, func(tx *gorm.DB) error {
		// 非空名称作为唯一标签使用，重名直接拒绝
		if a.Name != "" {
			if _, err := s.auctions.WithTx(tx).FindByName(ctx, a.Name); err == nil {
				return apperr.Conflict("auction named %q already exists", a.Name)
			} else if !apperr.IsNotFound(err) {
				return err
			}
		}

		vehicles := s.vehicles.WithTx(tx)
		for _, vin := range vins {
			v, err := vehicles.FindByVIN(ctx, strings.TrimSpace(vin))
			if err != nil {
				return err
			}
			if v.IsSold() {
				return apperr.Conflict("vehicle %s was already sold", v.VIN)
			}
			if v.InAuction() {
				return apperr.Conflict("vehicle %s is already in an auction", v.VIN)
			}
			if !v.Available {
				return apperr.Conflict("vehicle %s is not available for auction", v.VIN)
			}
			if collective {
				v.StartingPrice = startingBid
			}
			v.Lock(a.ID)
			if err := vehicles.Save(ctx, v); err != nil {
				return err
			}
		}
		return s.auctions.WithTx(tx).Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("auction %s created with %d vehicles (collective=%v)", a.ID, len(vins), collective)
	return s.auctions.FindByID(ctx, a.ID)
}

// StartAuction 将 waiting 拍卖转为 active，并记录开拍时间。
func (s *Service) StartAuction(ctx context.Context, id string) (*Auction, error) {
	var out *Auction
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		auctions := s.auctions.WithTx(tx)
		a, err := auctions.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ApplyTransition(a, StatusActive, s.clock()); err != nil {
			return err
		}
		if err := auctions.Save(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("auction %s started", id)
	return out, nil
}

// PlaceBidInput 单车出价入参。
type PlaceBidInput struct {
	VehicleVIN string
	BidderID   string
	Amount     decimal.Decimal
}

// PlaceBid 对单车拍卖中的指定车辆出价。
// 读当前最高价与追加出价在同一把拍卖行锁内完成。
func (s *Service) PlaceBid(ctx context.Context, in PlaceBidInput) (*Auction, error) {
	in.VehicleVIN = strings.TrimSpace(in.VehicleVIN)
	in.BidderID = strings.TrimSpace(in.BidderID)
	if in.BidderID == "" {
		return nil, apperr.Validation("bidder id required")
	}
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperr.Validation("bid amount must be positive")
	}

	// VIN 到拍卖的解析放在事务外。事务内的第一条语句必须是
	// FindByIDForUpdate 的锁行读：REPEATABLE READ 下先跑普通读会
	// 提前建立读视图，拿到行锁后的 Preload 仍按旧视图读账本，
	// 等锁期间提交的竞争出价就会被漏看。
	ref, err := s.auctions.FindActiveForVIN(ctx, in.VehicleVIN)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(tx *gorm.DB) error {
		auctions := s.auctions.WithTx(tx)
		a, err := auctions.FindByIDForUpdate(ctx, ref.ID)
		if err != nil {
			return err
		}

		if a.IsCollective {
			return apperr.InvalidState("auction is collective, individual bids cannot be placed")
		}
		if err := s.checkBiddable(a); err != nil {
			return err
		}

		// 解析后拍卖可能已变动，成员关系按锁内状态重新确认
		v := a.VehicleByVIN(in.VehicleVIN)
		if v == nil {
			return apperr.NotFound("vehicle %s is not part of this auction", in.VehicleVIN)
		}

		current := a.CurrentPriceForVehicle(v)
		if !in.Amount.GreaterThan(current) {
			return apperr.Validation("bid must exceed %s", current.String())
		}

		return auctions.CreateBid(ctx, &Bid{
			ID:        uuid.NewString(),
			AuctionID: a.ID,
			VehicleID: v.ID,
			BidderID:  in.BidderID,
			Amount:    in.Amount,
			BidTime:   s.clock(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("bid placed on vehicle %s amount=%s bidder=%s", in.VehicleVIN, in.Amount, in.BidderID)
	return s.auctions.FindByID(ctx, ref.ID)
}

// PlaceCollectiveBidInput 整体拍出价入参。
type PlaceCollectiveBidInput struct {
	AuctionID string
	BidderID  string
	Amount    decimal.Decimal
}

// PlaceCollectiveBid 对整体拍出价：一次受理为车组内每台车
// 各落一条金额、出价人、出价时间完全相同的记录。
func (s *Service) PlaceCollectiveBid(ctx context.Context, in PlaceCollectiveBidInput) (*Auction, error) {
	if strings.TrimSpace(in.BidderID) == "" {
		return nil, apperr.Validation("bidder id required")
	}
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperr.Validation("bid amount must be positive")
	}

	err := s.inTx(ctx, func(tx *gorm.DB) error {
		auctions := s.auctions.WithTx(tx)
		a, err := auctions.FindByIDForUpdate(ctx, in.AuctionID)
		if err != nil {
			return err
		}

		if !a.IsCollective {
			return apperr.InvalidState("auction is not collective, place bids per vehicle")
		}
		if err := s.checkBiddable(a); err != nil {
			return err
		}
		if len(a.Vehicles) == 0 {
			return apperr.Validation("no vehicles in auction %s", a.ID)
		}

		// 车组共享一个当前价，任取一台车即可
		current := a.CurrentPriceForVehicle(&a.Vehicles[0])
		if !in.Amount.GreaterThan(current) {
			return apperr.Validation("bid must exceed %s", current.String())
		}

		bidTime := s.clock()
		bidder := strings.TrimSpace(in.BidderID)
		for i := range a.Vehicles {
			b := &Bid{
				ID:        uuid.NewString(),
				AuctionID: a.ID,
				VehicleID: a.Vehicles[i].ID,
				BidderID:  bidder,
				Amount:    in.Amount,
				BidTime:   bidTime,
			}
			if err := auctions.CreateBid(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("collective bid placed on auction %s amount=%s bidder=%s", in.AuctionID, in.Amount, in.BidderID)
	return s.auctions.FindByID(ctx, in.AuctionID)
}

// checkBiddable 出价共同前置条件：active 且未到截止时间。
func (s *Service) checkBiddable(a *Auction) error {
	if a.Status != StatusActive {
		return apperr.InvalidState("auction is not active")
	}
	if a.Ended(s.clock()) {
		return apperr.InvalidState("auction has ended")
	}
	return nil
}

// AddVehiclesToAuction 向 waiting/active 拍卖追加车辆并锁定。
// 整体拍中新车继承车组当前价，保持一组一价。
func (s *Service) AddVehiclesToAuction(ctx context.Context, auctionID string, vins []string) (*Auction, error) {
	if len(vins) == 0 {
		return nil, apperr.Validation("vehicle list must not be empty")
	}

	err := s.inTx(ctx, func(tx *gorm.DB) error {
		auctions := s.auctions.WithTx(tx)
		vehicles := s.vehicles.WithTx(tx)

		a, err := auctions.FindByIDForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return apperr.InvalidState("cannot add vehicles to a %s auction", a.Status)
		}

		var sharedPrice *decimal.Decimal
		if a.IsCollective && len(a.Vehicles) > 0 {
			p := a.CurrentPriceForVehicle(&a.Vehicles[0])
			sharedPrice = &p
		}

		for _, vin := range vins {
			v, err := vehicles.FindByVIN(ctx, strings.TrimSpace(vin))
			if err != nil {
				return err
			}
			if v.IsSold() {
				return apperr.Conflict("vehicle %s was already sold", v.VIN)
			}
			if v.AuctionID != nil && *v.AuctionID == a.ID {
				return apperr.Conflict("vehicle %s is already in this auction", v.VIN)
			}
			if v.InAuction() {
				return apperr.Conflict("vehicle %s is already in an auction", v.VIN)
			}
			if !v.Available {
				return apperr.Conflict("vehicle %s is not available for auction", v.VIN)
			}
			if sharedPrice != nil {
				v.StartingPrice = *sharedPrice
			}
			v.Lock(a.ID)
			if err := vehicles.Save(ctx, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("added %d vehicles to auction %s", len(vins), auctionID)
	return s.auctions.FindByID(ctx, auctionID)
}

// RemoveVehiclesFromAuction 从 waiting/active 拍卖移除车辆并解锁。
// 已有出价的车辆不可移除：出价历史不可作废。
func (s *Service) RemoveVehiclesFromAuction(ctx context.Context, auctionID string, vins []string) (*Auction, error) {
	if len(vins) == 0 {
		return nil, apperr.Validation("vehicle list must not be empty")
	}

	err := s.inTx(ctx, func(tx *gorm.DB) error {
		auctions := s.auctions.WithTx(tx)
		vehicles := s.vehicles.WithTx(tx)

		a, err := auctions.FindByIDForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return apperr.InvalidState("cannot remove vehicles from a %s auction", a.Status)
		}

		// 先整体校验，再统一落库
		targets := make([]*vehicle.Vehicle, 0, len(vins))
		for _, vin := range vins {
			v := a.VehicleByVIN(strings.TrimSpace(vin))
			if v == nil {
				return apperr.NotFound("vehicle %s not found in this auction", vin)
			}
			if a.HasBidsForVehicle(v.ID) {
				return apperr.Conflict("cannot remove vehicle %s as it has existing bids", vin)
			}
			targets = append(targets, v)
		}

		for _, v := range targets {
			v.Unlock()
			if err := vehicles.Save(ctx, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("removed %d vehicles from auction %s", len(vins), auctionID)
	return s.auctions.FindByID(ctx, auctionID)
}

// CancelAuction 取消未完成的拍卖：解锁全部车辆、清空出价账本。
// 已完成的拍卖不可取消；重复取消按无效果处理。
func (s *Service) CancelAuction(ctx context.Context, id string) (*Auction, error) {
	var out *Auction
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		auctions := s.auctions.WithTx(tx)
		vehicles := s.vehicles.WithTx(tx)

		a, err := auctions.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == StatusCompleted {
			return apperr.InvalidState("cannot cancel a completed auction")
		}
		if a.Status == StatusCancelled {
			out = a
			return nil
		}

		for i := range a.Vehicles {
			v := &a.Vehicles[i]
			v.Unlock()
			if err := vehicles.Save(ctx, v); err != nil {
				return err
			}
		}
		if err := auctions.DeleteBidsForAuction(ctx, a.ID); err != nil {
			return err
		}
		if err := ApplyTransition(a, StatusCancelled, s.clock()); err != nil {
			return err
		}
		if err := auctions.Save(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("auction %s cancelled", id)
	return s.auctions.FindByID(ctx, out.ID)
}

// CloseAuction 结拍：有出价的车辆按最高价成交并保持不可用，
// 无出价的车辆解锁恢复可用，拍卖转为 completed。
// 对已 completed 的拍卖再次调用是无效果操作（后台扫描可安全重试）。
func (s *Service) CloseAuction(ctx context.Context, id string) (*Auction, error) {
	var closed *Auction
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		auctions := s.auctions.WithTx(tx)
		vehicles := s.vehicles.WithTx(tx)

		a, err := auctions.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == StatusCompleted {
			return nil
		}
		if a.Status != StatusActive {
			return apperr.InvalidState("can only close an active auction, current status is %s", a.Status)
		}

		for i := range a.Vehicles {
			v := &a.Vehicles[i]
			if bidder := a.HighestBidderForVehicle(v.ID); bidder != "" {
				v.MarkSold(bidder)
			} else {
				v.Unlock()
				s.log.Infof("vehicle %s in auction %s received no bids", v.VIN, a.ID)
			}
			if err := vehicles.Save(ctx, v); err != nil {
				return err
			}
		}
		if err := ApplyTransition(a, StatusCompleted, s.clock()); err != nil {
			return err
		}
		if err := auctions.Save(ctx, a); err != nil {
			return err
		}
		closed = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 审计只在真正发生结拍的那次调用写入；失败不影响结拍结果
	if closed != nil {
		if err := s.audit.LogAuctionCompleted(closed); err != nil {
			s.log.Errorf("failed to write completion audit for auction %s: %v", closed.ID, err)
		}
		s.log.Infof("auction %s closed", id)
	}
	return s.auctions.FindByID(ctx, id)
}

func (s *Service) GetAuction(ctx context.Context, id string) (*Auction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("auction id required")
	}
	return s.auctions.FindByID(ctx, id)
}

func (s *Service) GetAuctionByName(ctx context.Context, name string) (*Auction, error) {
	return s.auctions.FindByName(ctx, strings.TrimSpace(name))
}

func (s *Service) ListActiveAuctions(ctx context.Context) ([]Auction, error) {
	return s.auctions.ListByStatus(ctx, StatusActive)
}

func (s *Service) ListCompletedAuctions(ctx context.Context) ([]Auction, error) {
	return s.auctions.ListByStatus(ctx, StatusCompleted)
}

func (s *Service) ListAllAuctions(ctx context.Context) ([]Auction, error) {
	return s.auctions.ListByStatus(ctx, "")
}

// GetBidHistory 返回拍卖的出价历史（按出价时间升序）。
func (s *Service) GetBidHistory(ctx context.Context, auctionID string) ([]Bid, error) {
	if _, err := s.auctions.FindByID(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.auctions.ListBids(ctx, auctionID)
}

// ListAuctionsToFinalize 列出截止时间已过、待结拍的拍卖（后台扫描用）。
func (s *Service) ListAuctionsToFinalize(ctx context.Context) ([]Auction, error) {
	return s.auctions.ListEndingBefore(ctx, s.clock())
}
