package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// AuditRepository records the per-drug outcome of every analysis.
type AuditRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

var _ domain.AnalysisRecorder = (*AuditRepository)(nil)

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *pgxpool.Pool, logger *logrus.Logger) *AuditRepository {
	return &AuditRepository{
		db:  db,
		log: logger,
	}
}

// RecordAnalysis writes one audit row per drug result in a single batch.
func (r *AuditRepository) RecordAnalysis(ctx context.Context, report *domain.AnalysisReport) error {
	if report == nil || len(report.Results) == 0 {
		return nil
	}

	query := `
		INSERT INTO analysis_audit (id, analysis_id, patient_id, drug, risk_label, source)
		VALUES ($1, $2, $3, $4, $5, $6)`

	batch := &pgx.Batch{}
	for _, res := range report.Results {
		batch.Queue(query,
			uuid.NewString(),
			report.AnalysisID,
			res.PatientID,
			res.Drug,
			string(res.RiskAssessment.RiskLabel),
			string(res.Source),
		)
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		r.log.WithFields(logrus.Fields{
			"analysis_id": report.AnalysisID,
			"drugs":       len(report.Results),
			"error":       err,
		}).Error("Failed to record analysis")
		return fmt.Errorf("recording analysis: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"analysis_id": report.AnalysisID,
		"drugs":       len(report.Results),
	}).Debug("Analysis recorded")
	return nil
}

// GetByAnalysisID returns the audit rows of one analysis in insertion order.
func (r *AuditRepository) GetByAnalysisID(ctx context.Context, analysisID string) ([]*domain.AnalysisAuditRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, analysis_id, patient_id, drug, risk_label, source, created_at
		FROM analysis_audit
		WHERE analysis_id = $1
		ORDER BY created_at, drug`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("getting audit records: %w", err)
	}
	defer rows.Close()

	var records []*domain.AnalysisAuditRecord
	for rows.Next() {
		var rec domain.AnalysisAuditRecord
		var label, source string
		if err := rows.Scan(&rec.ID, &rec.AnalysisID, &rec.PatientID, &rec.Drug, &label, &source, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		rec.RiskLabel = domain.RiskLabel(label)
		rec.Source = domain.GuidelineSource(source)
		records = append(records, &rec)
	}
	return records, rows.Err()
}
