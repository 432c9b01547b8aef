package auction

import (
	"time"

	"github.com/AutoBidHub/AutoBidHub/internal/vehicle"
	"github.com/shopspring/decimal"
)

// Status 拍卖状态枚举（持久化为字符串）。
type Status string

const (
	StatusWaiting   Status = "waiting"   // 已创建，待开拍
	StatusActive    Status = "active"    // 拍卖中
	StatusCompleted Status = "completed" // 已成交结算（终态）
	StatusCancelled Status = "cancelled" // 已取消（终态）
)

// Terminal 是否为终态。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Auction 是 auctions 表的 GORM 模型，聚合车辆成员与出价账本。
// 车辆成员关系通过 vehicles.auction_id 反向引用表达：
// 未结束拍卖期间成员车辆 available=false 且 auction_id 指向本拍卖；
// 结拍后成交车辆保留引用（历史可查），流拍车辆解除引用并恢复可用。
type Auction struct {
	ID   string `gorm:"primaryKey;size:36"`
	Name string `gorm:"index;size:64"` // 可选的业务名称

	StartTime *time.Time // 开拍时间（StartAuction 时写入）
	EndTime   *time.Time // 截止时间；为空则只能显式结拍

	Status       Status `gorm:"type:varchar(16);index;not null"`
	IsCollective bool   `gorm:"not null;default:false"` // 整体拍：全部车辆共享一个当前价

	ClosedAt    *time.Time // 结拍时间
	CancelledAt *time.Time // 取消时间

	Vehicles []vehicle.Vehicle `gorm:"foreignKey:AuctionID"`
	Bids     []Bid             `gorm:"foreignKey:AuctionID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Bid 出价记录。追加后不可变；仅在拍卖取消时整体清除。
type Bid struct {
	ID        string          `gorm:"primaryKey;size:36"`
	AuctionID string          `gorm:"index;size:36;not null"`
	VehicleID string          `gorm:"index;size:36;not null"`
	BidderID  string          `gorm:"size:36;not null"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	BidTime   time.Time       `gorm:"not null"`
}

// Ended 截止时间是否已过。没有截止时间的拍卖永不自动到期。
func (a *Auction) Ended(now time.Time) bool {
	return a.EndTime != nil && !now.Before(*a.EndTime)
}

// VehicleByVIN 在成员车辆中按 VIN 查找。
func (a *Auction) VehicleByVIN(vin string) *vehicle.Vehicle {
	for i := range a.Vehicles {
		if a.Vehicles[i].VIN == vin {
			return &a.Vehicles[i]
		}
	}
	return nil
}

// HighestBidForVehicle 返回指定车辆的最高出价；无出价返回 nil。
// 金额相同时取最早的出价（严格递增约束下正常不会出现同额）。
func (a *Auction) HighestBidForVehicle(vehicleID string) *Bid {
	var highest *Bid
	for i := range a.Bids {
		b := &a.Bids[i]
		if b.VehicleID != vehicleID {
			continue
		}
		if highest == nil ||
			b.Amount.GreaterThan(highest.Amount) ||
			(b.Amount.Equal(highest.Amount) && b.BidTime.Before(highest.BidTime)) {
			highest = b
		}
	}
	return highest
}

// HighestBidderForVehicle 返回指定车辆当前最高出价人；无出价返回空串。
func (a *Auction) HighestBidderForVehicle(vehicleID string) string {
	if b := a.HighestBidForVehicle(vehicleID); b != nil {
		return b.BidderID
	}
	return ""
}

// CurrentPriceForVehicle 指定车辆的当前价：最高出价金额，无出价时为起拍价。
func (a *Auction) CurrentPriceForVehicle(v *vehicle.Vehicle) decimal.Decimal {
	if b := a.HighestBidForVehicle(v.ID); b != nil {
		return b.Amount
	}
	return v.StartingPrice
}

// HasBidsForVehicle 指定车辆是否已有出价记录。
func (a *Auction) HasBidsForVehicle(vehicleID string) bool {
	for i := range a.Bids {
		if a.Bids[i].VehicleID == vehicleID {
			return true
		}
	}
	return false
}
