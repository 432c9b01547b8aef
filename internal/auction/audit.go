package auction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CompletionLogger 结拍审计接口：每场结拍调用一次，
// 记录每台成交车辆的买家与成交价。失败只记日志，不回滚结拍。
type CompletionLogger interface {
	LogAuctionCompleted(a *Auction) error
}

// CompletionRecord 审计文件中的单行记录（每台成交车辆一行）。
type CompletionRecord struct {
	LoggedAt    time.Time `json:"logged_at"`
	AuctionID   string    `json:"auction_id"`
	AuctionName string    `json:"auction_name,omitempty"`
	VehicleVIN  string    `json:"vehicle_vin"`
	BuyerID     string    `json:"buyer_id"`
	Price       string    `json:"price"`
}

// FileCompletionLogger 追加写 JSON lines 审计文件。
type FileCompletionLogger struct {
	path string
	mu   sync.Mutex
}

func NewFileCompletionLogger(path string) (*FileCompletionLogger, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &FileCompletionLogger{path: path}, nil
}

func (l *FileCompletionLogger) LogAuctionCompleted(a *Auction) error {
	if a == nil {
		return fmt.Errorf("auction is nil")
	}

	records := make([]CompletionRecord, 0, len(a.Vehicles))
	now := time.Now().UTC()
	for i := range a.Vehicles {
		v := &a.Vehicles[i]
		if !v.IsSold() {
			continue
		}
		highest := a.HighestBidForVehicle(v.ID)
		if highest == nil {
			continue
		}
		records = append(records, CompletionRecord{
			LoggedAt:    now,
			AuctionID:   a.ID,
			AuctionName: a.Name,
			VehicleVIN:  v.VIN,
			BuyerID:     *v.BuyerID,
			Price:       highest.Amount.String(),
		})
	}
	if len(records) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// NopCompletionLogger 空实现，测试或关闭审计时使用。
type NopCompletionLogger struct{}

func (NopCompletionLogger) LogAuctionCompleted(*Auction) error { return nil }
