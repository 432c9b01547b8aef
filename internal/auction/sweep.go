package auction

import (
	"context"
	"time"

	"github.com/AutoBidHub/AutoBidHub/internal/common/logger"
)

// Finalizer 扫描任务对业务层的最小依赖，*Service 即实现。
type Finalizer interface {
	ListAuctionsToFinalize(ctx context.Context) ([]Auction, error)
	CloseAuction(ctx context.Context, id string) (*Auction, error)
}

// Sweeper 到期结拍的后台扫描任务：
// 每个周期找出截止时间已过、仍 active 的拍卖并逐个结拍。
// 单场失败只记日志不影响本批其余拍卖；取数失败退避后恢复正常节奏。
// 结拍本身幂等，进程重启后重复扫描同一拍卖是无效果操作。
type Sweeper struct {
	svc      Finalizer
	interval time.Duration
	backoff  time.Duration
	log      logger.Logger
}

func NewSweeper(svc Finalizer, interval, backoff time.Duration, log logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		backoff:  backoff,
		log:      log,
	}
}

// Run 阻塞运行扫描循环，ctx 取消后返回。
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Infof("auction sweeper starting, interval=%s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("auction sweeper stopping")
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.log.Errorf("sweep tick failed: %v", err)
				// 取数失败后短暂退避，再回到正常周期
				select {
				case <-ctx.Done():
					s.log.Info("auction sweeper stopping")
					return
				case <-time.After(s.backoff):
				}
			}
		}
	}
}

// SweepOnce 执行一轮扫描。返回错误仅代表取数阶段失败；
// 单场结拍失败在内部消化。
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	auctions, err := s.svc.ListAuctionsToFinalize(ctx)
	if err != nil {
		return err
	}
	if len(auctions) == 0 {
		return nil
	}

	s.log.Infof("sweeping %d expired auctions", len(auctions))
	for i := range auctions {
		a := &auctions[i]
		if _, err := s.svc.CloseAuction(ctx, a.ID); err != nil {
			s.log.Errorf("failed to finalize auction %s: %v", a.ID, err)
			continue
		}
	}
	return nil
}
