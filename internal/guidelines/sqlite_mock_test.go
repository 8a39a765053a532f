package guidelines

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStoreFromDB(db), mock
}

var guidelineRowColumns = []string{
	"drug", "phenotype", "risk_label", "confidence", "severity",
	"dosing", "alternatives", "monitoring", "reference", "urgency", "created_at", "updated_at",
}

func TestSQLiteStore_GetGuidelineQueryContract(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM cpic_guidelines WHERE drug = ? AND phenotype = ? LIMIT 1")).
		WithArgs("SIMVASTATIN", "PM").
		WillReturnRows(sqlmock.NewRows(guidelineRowColumns).AddRow(
			"SIMVASTATIN", "PM", "Toxic", 0.9, "high",
			"Prescribe a lower dose or consider an alternative statin.", `["Rosuvastatin"]`, `["CK levels"]`,
			"CPIC SLCO1B1-Simvastatin", "urgent", now, now,
		))

	res, err := store.GetGuideline(context.Background(), " simvastatin ", domain.PM)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, domain.TOXIC, res.RiskAssessment.RiskLabel)
	assert.Equal(t, []string{"Rosuvastatin"}, res.ClinicalRecommendation.AlternativeDrugs)
	assert.Equal(t, []string{"CK levels"}, res.ClinicalRecommendation.MonitoringParameters)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_GetGuidelineErrors(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(mock sqlmock.Sqlmock)
		expectErr bool
	}{
		{
			name: "no rows is a miss",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM cpic_guidelines").WillReturnRows(sqlmock.NewRows(guidelineRowColumns))
			},
		},
		{
			name: "driver failure",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM cpic_guidelines").WillReturnError(errors.New("database is locked"))
			},
			expectErr: true,
		},
		{
			name: "corrupt list column",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM cpic_guidelines").WillReturnRows(sqlmock.NewRows(guidelineRowColumns).AddRow(
					"CODEINE", "PM", "Ineffective", 0.9, "high", "", "not-json", "[]", "", "urgent", time.Now(), time.Now(),
				))
			},
			expectErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setup(mock)

			res, err := store.GetGuideline(context.Background(), "CODEINE", domain.PM)
			assert.Nil(t, res)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLiteStore_UpsertDrugGeneContract(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO drug_gene_map (drug, gene, pathway, drug_class)")).
		WithArgs("CLOPIDOGREL", "CYP2C19", "Bioactivation", "Antiplatelet").
		WillReturnResult(sqlmock.NewResult(1, 1))

	info := &domain.DrugGeneInfo{Drug: "clopidogrel", Gene: "CYP2C19", Pathway: "Bioactivation", DrugClass: "Antiplatelet"}
	require.NoError(t, store.UpsertDrugGene(context.Background(), info))
	assert.Equal(t, "CLOPIDOGREL", info.Drug)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_CountError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cpic_guidelines")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM drug_gene_map")).
		WillReturnError(errors.New("no such table: drug_gene_map"))

	_, _, err := store.Count(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count drug genes")
	assert.NoError(t, mock.ExpectationsWereMet())
}
