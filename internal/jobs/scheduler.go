package jobs

import (
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/consultpoint/backend/internal/config"
	"github.com/consultpoint/backend/internal/services"
)

// Scheduler runs the periodic settlement and reconciliation jobs.
type Scheduler struct {
	cron        *cron.Cron
	settlements *services.SettlementService
	reconcile   *services.ReconcileService
	cfg         *config.BillingConfig
}

func NewScheduler(settlements *services.SettlementService, reconcile *services.ReconcileService, cfg *config.BillingConfig) *Scheduler {
	return &Scheduler{
		cron:        cron.New(cron.WithLocation(time.UTC)),
		settlements: settlements,
		reconcile:   reconcile,
		cfg:         cfg,
	}
}

func (s *Scheduler) Start() {
	// Monthly settlement for the previous calendar month, 02:00 UTC on the 1st
	s.cron.AddFunc("0 2 1 * *", func() {
		month := time.Now().UTC().AddDate(0, -1, 0).Format("2006-01")
		log.Printf("[CRON] Computing settlement for %s", month)
		run, err := s.settlements.ComputeSettlement(month, s.cfg.PayoutRate)
		if err != nil {
			log.Printf("[CRON] Settlement for %s failed: %v", month, err)
			return
		}
		log.Printf("[CRON] Settlement for %s complete: %d consultants, %d sessions", month, run.ConsultantCount, run.TotalSessions)
	})

	// Nightly balance audit and repair
	s.cron.AddFunc("30 3 * * *", func() {
		log.Printf("[CRON] Running balance reconciliation")
		repaired, err := s.reconcile.RepairBalances("")
		if err != nil {
			log.Printf("[CRON] Reconciliation failed: %v", err)
			return
		}
		if repaired > 0 {
			log.Printf("[CRON] Repaired %d drifting accounts", repaired)
		}
	})

	s.cron.Start()
	log.Println("Background job scheduler started")
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Background job scheduler stopped")
}
