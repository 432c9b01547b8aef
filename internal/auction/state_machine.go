package auction

import (
	"time"

	"github.com/AutoBidHub/AutoBidHub/internal/common/apperr"
)

// AllowTransition 定义拍卖状态机的允许流转关系。
var AllowTransition = map[Status][]Status{
	StatusWaiting: {StatusActive, StatusCancelled},
	StatusActive:  {StatusCompleted, StatusCancelled},
	// 终态：不允许从 completed / cancelled 再流转
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
func CanTransition(from, to Status) bool {
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyTransition 对拍卖应用状态变更，并维护关键时间字段。
func ApplyTransition(a *Auction, to Status, now time.Time) error {
	if a == nil {
		return apperr.Validation("auction is nil")
	}
	from := a.Status
	if !CanTransition(from, to) {
		return apperr.InvalidState("invalid auction status transition: %s -> %s", from, to)
	}

	a.Status = to

	switch to {
	case StatusActive:
		if a.StartTime == nil {
			t := now
			a.StartTime = &t
		}
	case StatusCompleted:
		if a.ClosedAt == nil {
			t := now
			a.ClosedAt = &t
		}
	case StatusCancelled:
		if a.CancelledAt == nil {
			t := now
			a.CancelledAt = &t
		}
	}
	return nil
}
