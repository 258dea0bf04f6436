package service

import (
	"context"
	"errors"
	"time"

	"aviator/models"

	log "github.com/sirupsen/logrus"
)

const creditBatchSize = 100

// DepositCreditWorker credits deposits that were confirmed but never credited,
// for example when the process stopped between the two steps
type DepositCreditWorker struct {
	pipeline DepositPipeline
	interval time.Duration
}

// NewDepositCreditWorker creates a new deposit credit worker
func NewDepositCreditWorker(pipeline DepositPipeline, interval time.Duration) *DepositCreditWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &DepositCreditWorker{
		pipeline: pipeline,
		interval: interval,
	}
}

// Start begins sweeping confirmed deposits and returns a stop function
func (w *DepositCreditWorker) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})

	go func() {
		log.WithField("interval", w.interval).Info("Deposit credit worker started")

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			if _, err := w.Sweep(ctx); err != nil {
				log.Errorf("Error crediting confirmed deposits: %v", err)
			}

			select {
			case <-ctx.Done():
				log.Info("Deposit credit worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Deposit credit worker shutting down (stop requested)...")
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}

// Sweep credits every confirmed deposit once and reports how many it credited
func (w *DepositCreditWorker) Sweep(ctx context.Context) (int, error) {
	deposits, err := w.pipeline.PendingCredits(ctx, creditBatchSize)
	if err != nil {
		return 0, err
	}
	if len(deposits) == 0 {
		return 0, nil
	}

	var credited, failed int
	for _, deposit := range deposits {
		_, err := w.pipeline.Credit(ctx, deposit.ExternalReference)
		switch {
		case err == nil:
			credited++
		case errors.Is(err, models.ErrAlreadyCredited):
		default:
			failed++
			log.WithFields(log.Fields{
				"depositID": deposit.ID,
				"error":     err,
			}).Error("Failed to credit deposit")
		}
	}

	log.WithFields(log.Fields{
		"total":    len(deposits),
		"credited": credited,
		"failed":   failed,
	}).Info("Completed deposit credit sweep")

	return credited, nil
}
