// Package reliability publishes reports off-box and keeps the local
// databases healthy.
package reliability

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aristath/finreport/internal/analysis"
	"github.com/aristath/finreport/internal/events"
	"github.com/rs/zerolog"
)

// ReportPrefix is the bucket prefix under which reports are published
const ReportPrefix = "reports/"

// minReportsToKeep survive rotation regardless of age
const minReportsToKeep = 3

// ObjectStore is the bucket surface the publisher needs
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
}

// Emitter publishes events
type Emitter interface {
	EmitTyped(module string, data events.EventData)
}

// PublishedReport describes a report stored in the bucket
type PublishedReport struct {
	Key       string    `json:"key"`
	Portfolio string    `json:"portfolio"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// ReportPublisher uploads finished reports as JSON documents
type ReportPublisher struct {
	store   ObjectStore
	emitter Emitter
	log     zerolog.Logger
}

// NewReportPublisher creates a publisher. emitter may be nil.
func NewReportPublisher(store ObjectStore, emitter Emitter, log zerolog.Logger) *ReportPublisher {
	return &ReportPublisher{
		store:   store,
		emitter: emitter,
		log:     log.With().Str("service", "report_publisher").Logger(),
	}
}

// ReportKey is the object key of a report
func ReportKey(portfolio, runID string) string {
	return ReportPrefix + portfolio + "/" + runID + ".json"
}

// Publish uploads report and returns its key
func (p *ReportPublisher) Publish(ctx context.Context, report *analysis.Report) (string, error) {
	if report == nil || report.RunID == "" || report.Portfolio == "" {
		return "", fmt.Errorf("report needs a run ID and portfolio")
	}
	startTime := time.Now()

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	key := ReportKey(report.Portfolio, report.RunID)
	if err := p.store.Upload(ctx, key, bytes.NewReader(payload), "application/json"); err != nil {
		return "", fmt.Errorf("failed to publish report: %w", err)
	}

	p.log.Info().
		Str("key", key).
		Str("checksum", checksum(payload)).
		Int("size_bytes", len(payload)).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Report published")

	if p.emitter != nil {
		p.emitter.EmitTyped("reliability", &events.ReportPublishedData{
			RunID:     report.RunID,
			Portfolio: report.Portfolio,
			Key:       key,
		})
	}
	return key, nil
}

// ListPublished lists a portfolio's published reports, newest first. An
// empty portfolio lists all of them.
func (p *ReportPublisher) ListPublished(ctx context.Context, portfolio string) ([]PublishedReport, error) {
	prefix := ReportPrefix
	if portfolio != "" {
		prefix += portfolio + "/"
	}

	objects, err := p.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list published reports: %w", err)
	}

	now := time.Now()
	reports := make([]PublishedReport, 0, len(objects))
	for _, obj := range objects {
		// reports/{portfolio}/{run_id}.json
		rest := strings.TrimPrefix(obj.Key, ReportPrefix)
		dir, file := path.Split(rest)
		if dir == "" || !strings.HasSuffix(file, ".json") {
			p.log.Warn().Str("key", obj.Key).Msg("Skipping unexpected object")
			continue
		}
		reports = append(reports, PublishedReport{
			Key:       obj.Key,
			Portfolio: strings.TrimSuffix(dir, "/"),
			RunID:     strings.TrimSuffix(file, ".json"),
			Timestamp: obj.LastModified,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(obj.LastModified).Hours()),
		})
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.After(reports[j].Timestamp)
	})
	return reports, nil
}

// Rotate deletes a portfolio's published reports older than retentionDays,
// always keeping the newest few. retentionDays of 0 keeps everything.
func (p *ReportPublisher) Rotate(ctx context.Context, portfolio string, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	reports, err := p.ListPublished(ctx, portfolio)
	if err != nil {
		return 0, err
	}
	if len(reports) <= minReportsToKeep {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, r := range reports[minReportsToKeep:] {
		if !r.Timestamp.Before(cutoff) {
			continue
		}
		if err := p.store.Delete(ctx, r.Key); err != nil {
			p.log.Error().Err(err).Str("key", r.Key).Msg("Failed to delete old report")
			continue
		}
		deleted++
	}

	p.log.Info().
		Str("portfolio", portfolio).
		Int("deleted", deleted).
		Int("remaining", len(reports)-deleted).
		Msg("Report rotation completed")
	return deleted, nil
}

func checksum(data []byte) string {
	return fmt.Sprintf("sha256:%x", sha256.Sum256(data))
}
