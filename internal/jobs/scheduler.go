package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"bazaar_back_end/internal/config"
)

const jobTimeout = 2 * time.Minute

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ProductSweeper désactive les produits expirés.
type ProductSweeper interface {
	DisableExpired(ctx context.Context) (int, error)
}

// SessionSweeper expire les sessions de paiement abandonnées.
type SessionSweeper interface {
	ExpireStaleSessions(ctx context.Context) (int, error)
}

type Scheduler struct {
	sched *cron.Cron
}

// New enregistre les tâches périodiques; Start les lance.
func New(cfg config.JobsConfig, products ProductSweeper, sessions SessionSweeper) (*Scheduler, error) {
	s := &Scheduler{sched: cron.New(cron.WithParser(cronParser))}

	if _, err := s.sched.AddFunc(orDefault(cfg.ExpirySweep, "@every 15m"), func() {
		run("produits expirés", products.DisableExpired)
	}); err != nil {
		return nil, err
	}
	if _, err := s.sched.AddFunc(orDefault(cfg.SessionSweep, "@every 10m"), func() {
		run("sessions de paiement expirées", sessions.ExpireStaleSessions)
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func orDefault(expr, def string) string {
	if expr == "" {
		return def
	}
	return expr
}

// run exécute une tâche; une panique est journalisée sans arrêter le scheduler.
func run(name string, task func(ctx context.Context) (int, error)) {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Errorf("❌ Tâche %s: panique %v", name, err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := task(ctx)
	if err != nil {
		zap.S().Errorf("❌ Tâche %s: %v", name, err)
		return
	}
	if n > 0 {
		zap.S().Infof("⏱️ Tâche %s: %d mis à jour", name, n)
	}
}

func (s *Scheduler) Start() {
	s.sched.Start()
	zap.S().Infof("⏱️ Scheduler démarré (%d tâches)", len(s.sched.Entries()))
}

// Stop attend la fin des tâches en cours.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.sched.Stop().Done():
	case <-ctx.Done():
		zap.S().Warn("⚠️ Arrêt du scheduler interrompu")
	}
}
