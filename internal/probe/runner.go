package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tasktune/fatigue/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// maxLoggedFailures caps failure logs when not verbose.
const maxLoggedFailures = 5

// Run executes the complete probe and returns its statistics. It fails when
// the service is unhealthy or any response does not verify.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
	}
	log := logger.Named("probe").With(logger.String("run_id", stats.RunID))

	log.Info(ctx, "starting fatigue probe",
		logger.String("baseURL", config.BaseURL),
		logger.Int("vectors", config.NumVectors),
		logger.Float64("invalidShare", config.InvalidShare),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout))

	client := newHTTPClient(config.BaseURL, stats.RunID[:8], config.Timeout)

	// Step 1: Check service health
	ok, err := client.Health(ctx)
	if err != nil {
		return stats, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if !ok {
		return stats, fmt.Errorf("%w: health reported ok=false", ErrUnhealthy)
	}
	log.Info(ctx, "service is healthy")

	// Step 2: Generate vectors
	vectors, err := GenerateVectors(ctx, config.NumVectors, config.InvalidShare, config.Seed)
	if err != nil {
		return stats, fmt.Errorf("vector generation failed: %w", err)
	}
	stats.VectorsGenerated = len(vectors)

	// Step 3: Submit vectors concurrently
	outcomes := submitVectors(ctx, client, config.Workers, vectors)
	stats.VectorsSubmitted = len(outcomes)
	summarize(outcomes, stats)

	// Step 4: Verify every response
	for _, o := range outcomes {
		if err := Verify(o); err != nil {
			stats.VerificationErrors++
			if config.Verbose || stats.VerificationErrors <= maxLoggedFailures {
				log.Warn(ctx, "check failed", logger.String("request_id", o.RequestID), logger.Error(err))
			}
		}
	}

	// Step 5: Re-submit a sample and compare
	for _, o := range outcomes {
		if stats.DeterminismChecked >= config.DeterminismRuns {
			break
		}
		if o.Invalid || o.Err != "" {
			continue
		}
		again := client.Predict(ctx, o.Vector)
		stats.DeterminismChecked++
		if err := VerifyDeterminism(o, again); err != nil {
			stats.VerificationErrors++
			log.Warn(ctx, "determinism check failed", logger.Error(err))
		}
	}

	// Step 6: Save outcomes to file
	if config.OutputFile != "" {
		if err := saveOutcomes(config.OutputFile, outcomes); err != nil {
			log.Warn(ctx, "failed to save outcomes", logger.Error(err))
		} else {
			log.Info(ctx, "outcomes saved", logger.String("file", config.OutputFile))
		}
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if stats.VerificationErrors > 0 {
		return stats, fmt.Errorf("%w: %d of %d checks failed", ErrVerification,
			stats.VerificationErrors, stats.VectorsSubmitted+stats.DeterminismChecked)
	}
	log.Info(ctx, "probe completed successfully")
	return stats, nil
}

// submitVectors posts vectors with a worker pool and returns outcomes in
// input order.
func submitVectors(ctx context.Context, client *HTTPClient, workers int, vectors []Vector) []Outcome {
	outcomes := make([]Outcome, len(vectors))
	var submitted atomic.Int64

	indexChan := make(chan int, workers*2)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range indexChan {
				outcomes[index] = client.Predict(ctx, vectors[index])
				submitted.Add(1)
			}
		}()
	}

	// Send indices to workers
	go func() {
		defer close(indexChan)
		for i := range vectors {
			select {
			case <-ctx.Done():
				return
			case indexChan <- i:
			}
		}
	}()

	wg.Wait()

	// The feeder sends indices in order, so after a cancellation the
	// submitted outcomes form a prefix.
	return outcomes[:submitted.Load()]
}

// saveOutcomes writes outcomes as a JSON array.
func saveOutcomes(filename string, outcomes []Outcome) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(outcomes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// displayFinalStats logs the final probe statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.VectorsSubmitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("vectorsGenerated", stats.VectorsGenerated),
		logger.Int("vectorsSubmitted", stats.VectorsSubmitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected),
		logger.Int("transportFailures", stats.TransportFailures),
		logger.Int("verificationErrors", stats.VerificationErrors),
		logger.Int("determinismChecked", stats.DeterminismChecked),
		logger.Float64("minFatigue", stats.MinFatigue),
		logger.Float64("maxFatigue", stats.MaxFatigue),
		logger.Float64("meanFatigue", stats.MeanFatigue),
		logger.Duration("duration", stats.Duration),
		logger.Float64("requestsPerSecond", perSecond))
}
