package vehicle

import (
	"context"
	"strings"

	"github.com/AutoBidHub/AutoBidHub/internal/common/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service 封装车辆目录的核心用例（不依赖 HTTP），便于复用和测试。
type Service struct {
	repo *Repo
}

func NewService(repo *Repo) *Service {
	return &Service{repo: repo}
}

// CreateInput 创建车辆的入参。车型属性按 Type 取用，其余忽略。
type CreateInput struct {
	VIN            string
	Make           string
	Model          string
	ProductionYear int
	Type           Type

	NumDoors     int
	NumSeats     int
	LoadCapacity decimal.Decimal

	StartingPrice decimal.Decimal
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Vehicle, error) {
	in.VIN = strings.TrimSpace(in.VIN)
	if in.VIN == "" {
		return nil, apperr.Validation("vin required")
	}
	if strings.TrimSpace(in.Make) == "" || strings.TrimSpace(in.Model) == "" {
		return nil, apperr.Validation("make and model required")
	}
	if !ValidType(in.Type) {
		return nil, apperr.Validation("unknown vehicle type %q", in.Type)
	}
	if in.StartingPrice.LessThanOrEqual(decimal.Zero) {
		return nil, apperr.Validation("starting price must be positive")
	}

	if _, err := s.repo.FindByVIN(ctx, in.VIN); err == nil {
		return nil, apperr.Conflict("vehicle with VIN %s already exists", in.VIN)
	} else if !apperr.IsNotFound(err) {
		return nil, err
	}

	v := &Vehicle{
		ID:             uuid.NewString(),
		VIN:            in.VIN,
		Make:           strings.TrimSpace(in.Make),
		Model:          strings.TrimSpace(in.Model),
		ProductionYear: in.ProductionYear,
		Type:           in.Type,
		StartingPrice:  in.StartingPrice,
		Available:      true,
	}

	switch in.Type {
	case TypeSedan, TypeHatchback:
		if in.NumDoors <= 0 {
			return nil, apperr.Validation("number of doors must be positive")
		}
		doors := in.NumDoors
		v.NumDoors = &doors
	case TypeSUV:
		if in.NumSeats <= 0 {
			return nil, apperr.Validation("number of seats must be positive")
		}
		seats := in.NumSeats
		v.NumSeats = &seats
	case TypeTruck:
		if in.LoadCapacity.LessThanOrEqual(decimal.Zero) {
			return nil, apperr.Validation("load capacity must be positive")
		}
		capacity := in.LoadCapacity
		v.LoadCapacity = &capacity
	}

	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// UpdateInput 可更新字段；零值表示不修改。
type UpdateInput struct {
	Make           string
	Model          string
	ProductionYear int
	StartingPrice  decimal.Decimal
}

// Update 更新目录属性。车辆被未结束拍卖占用期间禁止修改，
// 否则起拍价的变化会绕过拍卖的出价校验。
func (s *Service) Update(ctx context.Context, vin string, in UpdateInput) (*Vehicle, error) {
	v, err := s.repo.FindByVIN(ctx, strings.TrimSpace(vin))
	if err != nil {
		return nil, err
	}
	if v.InAuction() {
		return nil, apperr.Conflict("vehicle %s is locked by auction %s", v.VIN, *v.AuctionID)
	}
	if v.IsSold() {
		return nil, apperr.Conflict("vehicle %s is already sold", v.VIN)
	}

	if m := strings.TrimSpace(in.Make); m != "" {
		v.Make = m
	}
	if m := strings.TrimSpace(in.Model); m != "" {
		v.Model = m
	}
	if in.ProductionYear > 0 {
		v.ProductionYear = in.ProductionYear
	}
	if in.StartingPrice.GreaterThan(decimal.Zero) {
		v.StartingPrice = in.StartingPrice
	}

	if err := s.repo.Save(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Delete 删除车辆。占用中或已售出的车辆不可删除。
func (s *Service) Delete(ctx context.Context, vin string) error {
	v, err := s.repo.FindByVIN(ctx, strings.TrimSpace(vin))
	if err != nil {
		return err
	}
	if v.InAuction() {
		return apperr.Conflict("vehicle %s is locked by auction %s", v.VIN, *v.AuctionID)
	}
	if v.IsSold() {
		return apperr.Conflict("vehicle %s is already sold", v.VIN)
	}
	return s.repo.Delete(ctx, v.ID)
}

func (s *Service) GetByVIN(ctx context.Context, vin string) (*Vehicle, error) {
	vin = strings.TrimSpace(vin)
	if vin == "" {
		return nil, apperr.Validation("vin required")
	}
	return s.repo.FindByVIN(ctx, vin)
}

func (s *Service) Search(ctx context.Context, f SearchFilter) ([]Vehicle, int64, error) {
	return s.repo.Search(ctx, f)
}
