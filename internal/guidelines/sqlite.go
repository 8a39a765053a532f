package guidelines

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// SQLiteStore implements domain.GuidelineStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

var _ domain.GuidelineStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite guideline store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}, nil
}

// NewSQLiteStoreFromDB wraps an open database whose schema is already in place.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cpic_guidelines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		drug TEXT NOT NULL,
		phenotype TEXT NOT NULL,
		risk_label TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		severity TEXT NOT NULL,
		dosing TEXT DEFAULT '',
		alternatives TEXT DEFAULT '[]',
		monitoring TEXT DEFAULT '[]',
		reference TEXT DEFAULT '',
		urgency TEXT NOT NULL DEFAULT 'routine',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(drug, phenotype)
	);

	CREATE TABLE IF NOT EXISTS drug_gene_map (
		drug TEXT PRIMARY KEY,
		gene TEXT NOT NULL,
		pathway TEXT DEFAULT '',
		drug_class TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_guidelines_drug ON cpic_guidelines(drug);
	`

	_, err := db.Exec(schema)
	return err
}

const guidelineColumns = `drug, phenotype, risk_label, confidence, severity,
	dosing, alternatives, monitoring, reference, urgency, created_at, updated_at`

func scanGuideline(s scanner) (*domain.GuidelineRecord, error) {
	rec := &domain.GuidelineRecord{}
	var phenotype, label, severity, urgency string
	var alternatives, monitoring string

	err := s.Scan(
		&rec.Drug, &phenotype, &label, &rec.Assessment.ConfidenceScore, &severity,
		&rec.Recommendation.DosingRecommendation, &alternatives, &monitoring,
		&rec.Recommendation.GuidelineReference, &urgency, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Phenotype = domain.Phenotype(phenotype)
	rec.Assessment.RiskLabel = domain.RiskLabel(label)
	rec.Assessment.Severity = domain.Severity(severity)
	rec.Recommendation.Urgency = domain.Urgency(urgency)
	if rec.Recommendation.AlternativeDrugs, err = decodeList(alternatives); err != nil {
		return nil, fmt.Errorf("invalid alternatives for %s/%s: %w", rec.Drug, phenotype, err)
	}
	if rec.Recommendation.MonitoringParameters, err = decodeList(monitoring); err != nil {
		return nil, fmt.Errorf("invalid monitoring for %s/%s: %w", rec.Drug, phenotype, err)
	}
	return rec, nil
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func decodeList(raw string) ([]string, error) {
	items := []string{}
	if raw == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetGuideline implements domain.StructuredGuidelineStore.
func (s *SQLiteStore) GetGuideline(ctx context.Context, drug string, phenotype domain.Phenotype) (*domain.RiskResult, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+guidelineColumns+" FROM cpic_guidelines WHERE drug = ? AND phenotype = ? LIMIT 1",
		NormalizeDrug(drug), string(phenotype),
	)

	rec, err := scanGuideline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guideline: %w", err)
	}
	return rec.Result(), nil
}

// GetDrugGene implements domain.StructuredGuidelineStore.
func (s *SQLiteStore) GetDrugGene(ctx context.Context, drug string) (*domain.DrugGeneInfo, error) {
	info := &domain.DrugGeneInfo{}
	err := s.db.QueryRowContext(ctx,
		"SELECT drug, gene, pathway, drug_class FROM drug_gene_map WHERE drug = ?",
		NormalizeDrug(drug),
	).Scan(&info.Drug, &info.Gene, &info.Pathway, &info.DrugClass)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get drug gene: %w", err)
	}
	return info, nil
}

// UpsertGuideline stores or replaces the row for (drug, phenotype).
func (s *SQLiteStore) UpsertGuideline(ctx context.Context, record *domain.GuidelineRecord) error {
	if record == nil {
		return domain.NewValidationError("guideline", "guideline record is required", nil)
	}
	record.Drug = NormalizeDrug(record.Drug)
	now := s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cpic_guidelines (
			drug, phenotype, risk_label, confidence, severity,
			dosing, alternatives, monitoring, reference, urgency,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(drug, phenotype) DO UPDATE SET
			risk_label = excluded.risk_label,
			confidence = excluded.confidence,
			severity = excluded.severity,
			dosing = excluded.dosing,
			alternatives = excluded.alternatives,
			monitoring = excluded.monitoring,
			reference = excluded.reference,
			urgency = excluded.urgency,
			updated_at = excluded.updated_at
	`,
		record.Drug,
		string(record.Phenotype),
		string(record.Assessment.RiskLabel),
		record.Assessment.ConfidenceScore,
		string(record.Assessment.Severity),
		record.Recommendation.DosingRecommendation,
		encodeList(record.Recommendation.AlternativeDrugs),
		encodeList(record.Recommendation.MonitoringParameters),
		record.Recommendation.GuidelineReference,
		string(record.Recommendation.Urgency),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert guideline: %w", err)
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	return nil
}

// UpsertDrugGene stores or replaces the gene mapping for a drug.
func (s *SQLiteStore) UpsertDrugGene(ctx context.Context, info *domain.DrugGeneInfo) error {
	if info == nil {
		return domain.NewValidationError("drug_gene", "drug gene row is required", nil)
	}
	info.Drug = NormalizeDrug(info.Drug)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drug_gene_map (drug, gene, pathway, drug_class)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(drug) DO UPDATE SET
			gene = excluded.gene,
			pathway = excluded.pathway,
			drug_class = excluded.drug_class
	`, info.Drug, info.Gene, info.Pathway, info.DrugClass)
	if err != nil {
		return fmt.Errorf("failed to upsert drug gene: %w", err)
	}
	return nil
}

// ListGuidelines returns guideline rows ordered by drug and phenotype. An
// empty drug lists every row.
func (s *SQLiteStore) ListGuidelines(ctx context.Context, drug string) ([]*domain.GuidelineRecord, error) {
	query := "SELECT " + guidelineColumns + " FROM cpic_guidelines"
	var args []interface{}
	if drug != "" {
		query += " WHERE drug = ?"
		args = append(args, NormalizeDrug(drug))
	}
	query += " ORDER BY drug, phenotype"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query guidelines: %w", err)
	}
	defer rows.Close()

	var result []*domain.GuidelineRecord
	for rows.Next() {
		rec, err := scanGuideline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ListDrugGenes returns every drug-gene row ordered by drug.
func (s *SQLiteStore) ListDrugGenes(ctx context.Context) ([]*domain.DrugGeneInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT drug, gene, pathway, drug_class FROM drug_gene_map ORDER BY drug")
	if err != nil {
		return nil, fmt.Errorf("failed to query drug genes: %w", err)
	}
	defer rows.Close()

	var result []*domain.DrugGeneInfo
	for rows.Next() {
		info := &domain.DrugGeneInfo{}
		if err := rows.Scan(&info.Drug, &info.Gene, &info.Pathway, &info.DrugClass); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, info)
	}
	return result, rows.Err()
}

// Count returns the number of guideline and drug-gene rows.
func (s *SQLiteStore) Count(ctx context.Context) (guidelines int, drugGenes int, err error) {
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cpic_guidelines").Scan(&guidelines); err != nil {
		return 0, 0, fmt.Errorf("failed to count guidelines: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM drug_gene_map").Scan(&drugGenes); err != nil {
		return 0, 0, fmt.Errorf("failed to count drug genes: %w", err)
	}
	return guidelines, drugGenes, nil
}

// ExportJSON exports every row as an export document.
func (s *SQLiteStore) ExportJSON(ctx context.Context) ([]byte, error) {
	records, err := s.ListGuidelines(ctx, "")
	if err != nil {
		return nil, err
	}
	genes, err := s.ListDrugGenes(ctx)
	if err != nil {
		return nil, err
	}
	return EncodeExport(records, genes, s.now())
}

// ImportJSON imports an export document. Rows whose key already exists are
// skipped; the count of newly written rows is returned.
func (s *SQLiteStore) ImportJSON(ctx context.Context, data []byte) (imported int, err error) {
	export, err := DecodeExport(data)
	if err != nil {
		return 0, err
	}

	for _, rec := range export.Guidelines {
		existing, err := s.GetGuideline(ctx, rec.Drug, rec.Phenotype)
		if err != nil {
			return imported, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil {
			continue
		}
		if err := s.UpsertGuideline(ctx, rec); err != nil {
			return imported, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	for _, info := range export.DrugGenes {
		existing, err := s.GetDrugGene(ctx, info.Drug)
		if err != nil {
			return imported, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil {
			continue
		}
		if err := s.UpsertDrugGene(ctx, info); err != nil {
			return imported, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
