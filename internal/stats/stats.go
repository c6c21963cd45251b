// Package stats keeps relay request counters in Redis so every API instance
// reports the same totals.
package stats

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/bank-relay/internal/models"
)

const (
	statsKey     = "relay:stats"
	hourlyPrefix = "relay:stats:hourly:"
	hourlyTTL    = 48 * time.Hour
	hourLayout   = "2006-01-02 15:00"

	fieldTotal      = "total_requests"
	fieldSuccessful = "successful_validations"
	fieldFailed     = "failed_validations"
	fieldErrors     = "errors"
	fieldRejected   = "rejected"
	fieldDurationMS = "duration_ms_total"
)

type Recorder struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRecorder(rdb *redis.Client) *Recorder {
	return &Recorder{rdb: rdb, now: time.Now}
}

// Record counts one relay request in a single transaction.
func (r *Recorder) Record(ctx context.Context, ev models.ConnectionTestEvent) error {
	at := ev.OccurredAt
	if at.IsZero() {
		at = r.now()
	}
	hourKey := hourlyPrefix + at.UTC().Format(hourLayout)

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, statsKey, fieldTotal, 1)
		pipe.HIncrBy(ctx, statsKey, classify(ev), 1)
		pipe.HIncrBy(ctx, statsKey, fieldDurationMS, ev.DurationMS)
		pipe.Incr(ctx, hourKey)
		pipe.Expire(ctx, hourKey, hourlyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record relay stats: %w", err)
	}
	return nil
}

// Snapshot reads the current counters.
func (r *Recorder) Snapshot(ctx context.Context) (models.Stats, error) {
	fields, err := r.rdb.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to read relay stats: %w", err)
	}

	s := models.Stats{
		TotalRequests:         parseCount(fields[fieldTotal]),
		SuccessfulValidations: parseCount(fields[fieldSuccessful]),
		FailedValidations:     parseCount(fields[fieldFailed]),
		Errors:                parseCount(fields[fieldErrors]),
		Rejected:              parseCount(fields[fieldRejected]),
		RequestsByHour:        map[string]int64{},
	}
	if s.TotalRequests > 0 {
		durationMS := parseCount(fields[fieldDurationMS])
		s.AverageExecutionTime = round2(float64(durationMS) / float64(s.TotalRequests) / 1000)
		s.SuccessRate = round2(float64(s.SuccessfulValidations) / float64(s.TotalRequests) * 100)
	}

	var keys []string
	iter := r.rdb.Scan(ctx, 0, hourlyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return models.Stats{}, fmt.Errorf("failed to scan hourly stats: %w", err)
	}
	if len(keys) == 0 {
		return s, nil
	}

	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to read hourly stats: %w", err)
	}
	for i, key := range keys {
		if v, ok := values[i].(string); ok {
			s.RequestsByHour[strings.TrimPrefix(key, hourlyPrefix)] = parseCount(v)
		}
	}
	return s, nil
}

func (r *Recorder) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func classify(ev models.ConnectionTestEvent) string {
	switch ev.Outcome {
	case models.OutcomeForwarded:
		if ev.Success {
			return fieldSuccessful
		}
		return fieldFailed
	case models.OutcomeInvalid:
		return fieldRejected
	default:
		return fieldErrors
	}
}

func parseCount(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
