package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/guidelines"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GuidelineRepository is the PostgreSQL guideline store.
type GuidelineRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
	now func() time.Time
}

var _ domain.GuidelineStore = (*GuidelineRepository)(nil)

// NewGuidelineRepository creates a new guideline repository
func NewGuidelineRepository(db *pgxpool.Pool, logger *logrus.Logger) *GuidelineRepository {
	return &GuidelineRepository{
		db:  db,
		log: logger,
		now: time.Now,
	}
}

const guidelineSelect = `
	SELECT drug, phenotype, risk_label, confidence::text, severity, dosing,
		   alternatives, monitoring, reference, urgency, created_at, updated_at
	FROM cpic_guidelines`

func scanGuideline(row pgx.Row) (*domain.GuidelineRecord, error) {
	var rec domain.GuidelineRecord
	var phenotype, label, confidence, severity, urgency string
	var alternativesJSON, monitoringJSON []byte

	err := row.Scan(
		&rec.Drug,
		&phenotype,
		&label,
		&confidence,
		&severity,
		&rec.Recommendation.DosingRecommendation,
		&alternativesJSON,
		&monitoringJSON,
		&rec.Recommendation.GuidelineReference,
		&urgency,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	score, err := decimal.NewFromString(confidence)
	if err != nil {
		return nil, fmt.Errorf("parsing confidence %q: %w", confidence, err)
	}
	rec.Phenotype = domain.Phenotype(phenotype)
	rec.Assessment = domain.RiskAssessment{
		RiskLabel:       domain.RiskLabel(label),
		ConfidenceScore: score.InexactFloat64(),
		Severity:        domain.Severity(severity),
	}
	rec.Recommendation.Urgency = domain.Urgency(urgency)

	if err := json.Unmarshal(alternativesJSON, &rec.Recommendation.AlternativeDrugs); err != nil {
		return nil, fmt.Errorf("unmarshaling alternatives: %w", err)
	}
	if err := json.Unmarshal(monitoringJSON, &rec.Recommendation.MonitoringParameters); err != nil {
		return nil, fmt.Errorf("unmarshaling monitoring: %w", err)
	}
	return &rec, nil
}

// GetGuideline implements domain.StructuredGuidelineStore.
func (r *GuidelineRepository) GetGuideline(ctx context.Context, drug string, phenotype domain.Phenotype) (*domain.RiskResult, error) {
	rec, err := scanGuideline(r.db.QueryRow(ctx,
		guidelineSelect+" WHERE drug = $1 AND phenotype = $2",
		guidelines.NormalizeDrug(drug), string(phenotype),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.WithFields(logrus.Fields{
			"drug":      drug,
			"phenotype": phenotype,
			"error":     err,
		}).Error("Failed to get guideline")
		return nil, fmt.Errorf("getting guideline: %w", err)
	}
	return rec.Result(), nil
}

// GetDrugGene implements domain.StructuredGuidelineStore.
func (r *GuidelineRepository) GetDrugGene(ctx context.Context, drug string) (*domain.DrugGeneInfo, error) {
	var info domain.DrugGeneInfo
	err := r.db.QueryRow(ctx,
		"SELECT drug, gene, pathway, drug_class FROM drug_gene_map WHERE drug = $1",
		guidelines.NormalizeDrug(drug),
	).Scan(&info.Drug, &info.Gene, &info.Pathway, &info.DrugClass)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting drug gene: %w", err)
	}
	return &info, nil
}

// UpsertGuideline inserts or replaces the row for (drug, phenotype).
func (r *GuidelineRepository) UpsertGuideline(ctx context.Context, record *domain.GuidelineRecord) error {
	_, err := r.writeGuideline(ctx, r.db, record, true)
	return err
}

// writeGuideline writes one row; with replace false an existing key is left
// untouched and reported as not written.
func (r *GuidelineRepository) writeGuideline(ctx context.Context, q querier, record *domain.GuidelineRecord, replace bool) (bool, error) {
	if record == nil {
		return false, domain.NewValidationError("guideline", "guideline record is required", nil)
	}
	record.Drug = guidelines.NormalizeDrug(record.Drug)

	alternativesJSON, err := json.Marshal(nonNil(record.Recommendation.AlternativeDrugs))
	if err != nil {
		return false, fmt.Errorf("marshaling alternatives: %w", err)
	}
	monitoringJSON, err := json.Marshal(nonNil(record.Recommendation.MonitoringParameters))
	if err != nil {
		return false, fmt.Errorf("marshaling monitoring: %w", err)
	}

	conflict := `ON CONFLICT (drug, phenotype) DO UPDATE SET
			risk_label = EXCLUDED.risk_label,
			confidence = EXCLUDED.confidence,
			severity = EXCLUDED.severity,
			dosing = EXCLUDED.dosing,
			alternatives = EXCLUDED.alternatives,
			monitoring = EXCLUDED.monitoring,
			reference = EXCLUDED.reference,
			urgency = EXCLUDED.urgency,
			updated_at = EXCLUDED.updated_at`
	if !replace {
		conflict = "ON CONFLICT (drug, phenotype) DO NOTHING"
	}

	query := `
		INSERT INTO cpic_guidelines (
			drug, phenotype, risk_label, confidence, severity, dosing,
			alternatives, monitoring, reference, urgency, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4::text::numeric, $5, $6, $7, $8, $9, $10, $11, $11
		) ` + conflict

	now := r.now().UTC()
	confidence := decimal.NewFromFloat(record.Assessment.ConfidenceScore).Round(3)
	tag, err := q.Exec(ctx, query,
		record.Drug,
		string(record.Phenotype),
		string(record.Assessment.RiskLabel),
		confidence.String(),
		string(record.Assessment.Severity),
		record.Recommendation.DosingRecommendation,
		alternativesJSON,
		monitoringJSON,
		record.Recommendation.GuidelineReference,
		string(record.Recommendation.Urgency),
		now,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"drug":      record.Drug,
			"phenotype": record.Phenotype,
			"error":     err,
		}).Error("Failed to write guideline")
		return false, fmt.Errorf("writing guideline: %w", err)
	}

	written := tag.RowsAffected() > 0
	if written {
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		record.UpdatedAt = now
	}
	return written, nil
}

// UpsertDrugGene inserts or replaces the gene mapping for a drug.
func (r *GuidelineRepository) UpsertDrugGene(ctx context.Context, info *domain.DrugGeneInfo) error {
	_, err := r.writeDrugGene(ctx, r.db, info, true)
	return err
}

func (r *GuidelineRepository) writeDrugGene(ctx context.Context, q querier, info *domain.DrugGeneInfo, replace bool) (bool, error) {
	if info == nil {
		return false, domain.NewValidationError("drug_gene", "drug gene row is required", nil)
	}
	info.Drug = guidelines.NormalizeDrug(info.Drug)

	conflict := `ON CONFLICT (drug) DO UPDATE SET
			gene = EXCLUDED.gene,
			pathway = EXCLUDED.pathway,
			drug_class = EXCLUDED.drug_class`
	if !replace {
		conflict = "ON CONFLICT (drug) DO NOTHING"
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO drug_gene_map (drug, gene, pathway, drug_class)
		VALUES ($1, $2, $3, $4) `+conflict,
		info.Drug, info.Gene, info.Pathway, info.DrugClass,
	)
	if err != nil {
		return false, fmt.Errorf("writing drug gene: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListGuidelines returns rows ordered by drug and phenotype; an empty drug lists all.
func (r *GuidelineRepository) ListGuidelines(ctx context.Context, drug string) ([]*domain.GuidelineRecord, error) {
	query := guidelineSelect
	var args []any
	if drug != "" {
		query += " WHERE drug = $1"
		args = append(args, guidelines.NormalizeDrug(drug))
	}
	query += " ORDER BY drug, phenotype"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing guidelines: %w", err)
	}
	defer rows.Close()

	var records []*domain.GuidelineRecord
	for rows.Next() {
		rec, err := scanGuideline(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning guideline: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListDrugGenes returns every drug-gene row ordered by drug.
func (r *GuidelineRepository) ListDrugGenes(ctx context.Context) ([]*domain.DrugGeneInfo, error) {
	rows, err := r.db.Query(ctx, "SELECT drug, gene, pathway, drug_class FROM drug_gene_map ORDER BY drug")
	if err != nil {
		return nil, fmt.Errorf("listing drug genes: %w", err)
	}
	defer rows.Close()

	var infos []*domain.DrugGeneInfo
	for rows.Next() {
		var info domain.DrugGeneInfo
		if err := rows.Scan(&info.Drug, &info.Gene, &info.Pathway, &info.DrugClass); err != nil {
			return nil, fmt.Errorf("scanning drug gene: %w", err)
		}
		infos = append(infos, &info)
	}
	return infos, rows.Err()
}

// Count returns the number of guideline and drug-gene rows.
func (r *GuidelineRepository) Count(ctx context.Context) (int, int, error) {
	var guidelineCount, drugGeneCount int
	err := r.db.QueryRow(ctx,
		"SELECT (SELECT COUNT(*) FROM cpic_guidelines), (SELECT COUNT(*) FROM drug_gene_map)",
	).Scan(&guidelineCount, &drugGeneCount)
	if err != nil {
		return 0, 0, fmt.Errorf("counting guidelines: %w", err)
	}
	return guidelineCount, drugGeneCount, nil
}

// ExportJSON exports every row as an export document.
func (r *GuidelineRepository) ExportJSON(ctx context.Context) ([]byte, error) {
	records, err := r.ListGuidelines(ctx, "")
	if err != nil {
		return nil, err
	}
	genes, err := r.ListDrugGenes(ctx)
	if err != nil {
		return nil, err
	}
	return guidelines.EncodeExport(records, genes, r.now())
}

// ImportJSON imports an export document in one transaction. Existing keys
// are skipped.
func (r *GuidelineRepository) ImportJSON(ctx context.Context, data []byte) (int, error) {
	export, err := guidelines.DecodeExport(data)
	if err != nil {
		return 0, err
	}

	imported := 0
	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, rec := range export.Guidelines {
			written, err := r.writeGuideline(ctx, tx, rec, false)
			if err != nil {
				return err
			}
			if written {
				imported++
			}
		}
		for _, info := range export.DrugGenes {
			written, err := r.writeDrugGene(ctx, tx, info, false)
			if err != nil {
				return err
			}
			if written {
				imported++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("importing guidelines: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"imported": imported,
		"total":    len(export.Guidelines) + len(export.DrugGenes),
	}).Info("Guidelines imported")
	return imported, nil
}

// Close is a no-op; the pool is owned by database.DB.
func (r *GuidelineRepository) Close() error {
	return nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
