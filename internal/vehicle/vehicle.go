package vehicle

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type 车型枚举（持久化为字符串）。
type Type string

const (
	TypeSedan     Type = "sedan"
	TypeHatchback Type = "hatchback"
	TypeSUV       Type = "suv"
	TypeTruck     Type = "truck"
)

// ValidType 判断车型是否合法。
func ValidType(t Type) bool {
	switch t {
	case TypeSedan, TypeHatchback, TypeSUV, TypeTruck:
		return true
	}
	return false
}

// Vehicle 是 vehicles 表的 GORM 模型。
// 车型差异用 Type 标签 + 按型可空的属性列表达，不做继承层次。
type Vehicle struct {
	ID             string `gorm:"primaryKey;size:36"`
	VIN            string `gorm:"uniqueIndex;size:64;not null"`
	Make           string `gorm:"size:64;not null"`
	Model          string `gorm:"size:64;not null"`
	ProductionYear int    `gorm:"not null"`
	Type           Type   `gorm:"type:varchar(16);not null"`

	// 按车型生效的属性：sedan/hatchback 用 NumDoors，suv 用 NumSeats，truck 用 LoadCapacity（吨）
	NumDoors     *int             `gorm:""`
	NumSeats     *int             `gorm:""`
	LoadCapacity *decimal.Decimal `gorm:"type:decimal(10,2)"`

	StartingPrice decimal.Decimal `gorm:"type:decimal(20,2);not null"`

	// 拍卖占用状态：
	// Available=false 且 AuctionID 非空 => 被某个未结束拍卖锁定
	// BuyerID 非空 => 已售出，永久不可再上拍
	Available bool    `gorm:"not null;default:true"`
	BuyerID   *string `gorm:"size:36"`
	AuctionID *string `gorm:"index;size:36"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// IsSold 是否已售出（以 BuyerID 是否写入为准）。
func (v *Vehicle) IsSold() bool {
	return v.BuyerID != nil && *v.BuyerID != ""
}

// InAuction 是否被某个未结束拍卖占用。
// 已售车辆保留 AuctionID 作为成交记录，不算占用。
func (v *Vehicle) InAuction() bool {
	return v.AuctionID != nil && *v.AuctionID != "" && !v.IsSold()
}

// Lock 锁定到指定拍卖。
func (v *Vehicle) Lock(auctionID string) {
	v.Available = false
	v.AuctionID = &auctionID
}

// Unlock 解除拍卖占用，重新可上拍。
func (v *Vehicle) Unlock() {
	v.Available = true
	v.AuctionID = nil
}

// MarkSold 标记为已售出：写入买家并保持不可用。
// AuctionID 保留，指向成交的那场拍卖。
func (v *Vehicle) MarkSold(buyerID string) {
	v.BuyerID = &buyerID
	v.Available = false
}
