package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"sssblog/core"
)

func main() {
	_ = godotenv.Load()

	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := core.SetupLogging(cfg, "mailworker.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	queue := core.NewMailQueue(redisClient)
	mailer := &core.SMTPMailer{
		Addr:     cfg.SMTPAddr,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	}
	consumer := core.NewMailConsumer(mailer, cfg.MailMaxAttempts, cfg.MailBackoff, core.DefaultFatalClassifier)

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	visibility := core.DefaultMailVisibility
	reclaimInterval := 15 * time.Second
	log.Printf("mail worker started. concurrency=%d queue=%s smtp=%s", concurrency, core.PendingMailKey, cfg.SMTPAddr)

	// Put expired in-flight messages back on the pending list periodically.
	go func() {
		ticker := time.NewTicker(reclaimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if moved, err := queue.RequeueExpired(ctx, time.Now()); err != nil {
					log.Printf("[reclaimer] requeue expired error: %v", err)
				} else if len(moved) > 0 {
					log.Printf("[reclaimer] requeued %d expired messages", len(moved))
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				msg, raw, err := queue.Reserve(ctx, visibility)
				if err != nil {
					if errors.Is(err, redis.Nil) {
						// Queue is empty, wait before retrying to avoid CPU spinning
						select {
						case <-ctx.Done():
							return
						case <-time.After(100 * time.Millisecond):
							continue
						}
					}
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					log.Printf("[worker %d] dequeue error: %v", workerID, err)
					time.Sleep(time.Second)
					continue
				}

				// Bound the whole delivery by the reservation window so a
				// hung transport cannot race the reclaimer.
				deliverCtx, cancel := context.WithTimeout(ctx, visibility)
				attempts, deliverErr := consumer.Deliver(deliverCtx, msg)
				cancel()
				if deliverErr != nil {
					log.Printf("[worker %d] message %s not delivered after %d attempt(s): %v", workerID, msg.ID, attempts, deliverErr)
				}

				// Ack regardless: fatal and exhausted messages are dropped
				// after logging, per the retry policy.
				if err := queue.Ack(ctx, raw); err != nil {
					log.Printf("[worker %d] ack failed for message %s: %v", workerID, msg.ID, err)
				}
			}
		}(i + 1)
	}

	wg.Wait()
}
