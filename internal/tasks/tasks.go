package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/config"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/services"
)

// Task types handled by the background worker.
const (
	TypeInvoiceRollover     = "billing:invoice:rollover"
	TypeInvoiceCheckOverdue = "billing:invoice:check_overdue"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// --- Task Server (Processing tasks) ---

// TaskProcessor holds the dependencies the task handlers need.
type TaskProcessor struct {
	cfg            *config.Config
	invoiceService services.IInvoiceService
}

func NewTaskProcessor(cfg *config.Config, invoiceService services.IInvoiceService) *TaskProcessor {
	return &TaskProcessor{
		cfg:            cfg,
		invoiceService: invoiceService,
	}
}

// SetupServer configures an Asynq server and the mux with the billing task
// handlers registered. The caller runs the server so it can own shutdown.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeInvoiceRollover, processor.HandleInvoiceRolloverTask)
	mux.HandleFunc(TypeInvoiceCheckOverdue, processor.HandleInvoiceCheckOverdueTask)
	log.Println("Registered billing task handlers.")

	return srv, mux
}

// NewPeriodicScheduler builds the scheduler that enqueues the rollover and
// overdue sweep on their configured cron specs. Both tasks are idempotent, so
// overlapping runs from a slow worker are harmless.
func NewPeriodicScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     rdb.Options().Addr,
			Password: rdb.Options().Password,
			DB:       rdb.Options().DB,
		},
		&asynq.SchedulerOpts{
			Location: time.UTC,
		},
	)

	if _, err := scheduler.Register(cfg.RolloverCronSpec, asynq.NewTask(TypeInvoiceRollover, nil)); err != nil {
		return nil, fmt.Errorf("failed to register rollover schedule: %w", err)
	}
	if _, err := scheduler.Register(cfg.OverdueCronSpec, asynq.NewTask(TypeInvoiceCheckOverdue, nil)); err != nil {
		return nil, fmt.Errorf("failed to register overdue schedule: %w", err)
	}
	return scheduler, nil
}

// --- Task Handlers ---

// HandleInvoiceRolloverTask closes every open invoice whose closing date has
// passed and seeds the next month's invoice for each affected card.
func (p *TaskProcessor) HandleInvoiceRolloverTask(ctx context.Context, t *asynq.Task) error {
	log.Println("Starting invoice rollover task...")
	closed, err := p.invoiceService.CloseElapsed(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("Invoice rollover failed after closing %d invoices: %v", closed, err)
		return err
	}
	log.Printf("Invoice rollover finished. Closed %d invoices.", closed)
	return nil
}

// HandleInvoiceCheckOverdueTask flips closed invoices past their due date to
// overdue.
func (p *TaskProcessor) HandleInvoiceCheckOverdueTask(ctx context.Context, t *asynq.Task) error {
	log.Println("Starting overdue invoice sweep...")
	marked, err := p.invoiceService.MarkOverdue(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("Overdue sweep failed: %v", err)
		return err
	}
	log.Printf("Overdue sweep finished. Marked %d invoices overdue.", marked)
	return nil
}
