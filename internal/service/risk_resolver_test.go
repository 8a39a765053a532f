package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/knowledge"
)

// MockGuidelineLookup is a mock implementation of domain.GuidelineLookup
type MockGuidelineLookup struct {
	mock.Mock
}

func (m *MockGuidelineLookup) LookupFull(ctx context.Context, drug, gene, diplotype string) (*domain.RiskResult, error) {
	args := m.Called(ctx, drug, gene, diplotype)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RiskResult), args.Error(1)
}

func (m *MockGuidelineLookup) GeneForDrug(ctx context.Context, drug string) (*domain.DrugGeneInfo, error) {
	args := m.Called(ctx, drug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DrugGeneInfo), args.Error(1)
}

// MockGuidelineStore is a mock implementation of domain.StructuredGuidelineStore
type MockGuidelineStore struct {
	mock.Mock
}

func (m *MockGuidelineStore) GetGuideline(ctx context.Context, drug string, phenotype domain.Phenotype) (*domain.RiskResult, error) {
	args := m.Called(ctx, drug, phenotype)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RiskResult), args.Error(1)
}

func (m *MockGuidelineStore) GetDrugGene(ctx context.Context, drug string) (*domain.DrugGeneInfo, error) {
	args := m.Called(ctx, drug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DrugGeneInfo), args.Error(1)
}

func guidelineResult(label domain.RiskLabel, severity domain.Severity, confidence float64) *domain.RiskResult {
	return &domain.RiskResult{
		RiskAssessment: domain.RiskAssessment{RiskLabel: label, ConfidenceScore: confidence, Severity: severity},
		ClinicalRecommendation: domain.ClinicalRecommendation{
			DosingRecommendation: "From guideline source",
			AlternativeDrugs:     []string{},
			MonitoringParameters: []string{},
			Urgency:              domain.SOON,
		},
	}
}

func TestRiskResolver_StaticTable(t *testing.T) {
	tests := []struct {
		name               string
		drug               string
		phenotype          domain.Phenotype
		expectedLabel      domain.RiskLabel
		expectedSeverity   domain.Severity
		expectedConfidence float64
		expectedUrgency    domain.Urgency
		expectedDosing     string
	}{
		{
			name: "codeine poor metabolizer", drug: "CODEINE", phenotype: domain.PM,
			expectedLabel: domain.INEFFECTIVE, expectedSeverity: domain.SEVERITY_HIGH, expectedConfidence: 0.95,
			expectedUrgency: domain.URGENT,
			expectedDosing:  "AVOID codeine. PMs cannot convert codeine to morphine — no analgesic effect.",
		},
		{
			name: "codeine ultrarapid", drug: "CODEINE", phenotype: domain.URM,
			expectedLabel: domain.TOXIC, expectedSeverity: domain.SEVERITY_CRITICAL, expectedConfidence: 0.95,
			expectedUrgency: domain.EMERGENT,
			expectedDosing:  "AVOID codeine. Ultra-rapid CYP2D6 metabolism → excess morphine → respiratory depression risk.",
		},
		{
			name: "warfarin normal", drug: "WARFARIN", phenotype: domain.NM,
			expectedLabel: domain.SAFE, expectedSeverity: domain.SEVERITY_NONE, expectedConfidence: 0.90,
			expectedUrgency: domain.ROUTINE,
			expectedDosing:  "Standard dose (5 mg/day). Adjust per INR.",
		},
		{
			name: "alias resolves to canonical drug", drug: "coumadin", phenotype: domain.PM,
			expectedLabel: domain.TOXIC, expectedSeverity: domain.SEVERITY_CRITICAL, expectedConfidence: 0.95,
			expectedUrgency: domain.URGENT,
			expectedDosing:  "Reduce dose 50–80%. HIGH BLEEDING RISK. Consider DOAC.",
		},
		{
			name: "unlisted drug", drug: "TYLENOL", phenotype: domain.NM,
			expectedLabel: domain.UNKNOWN_RISK, expectedSeverity: domain.SEVERITY_UNKNOWN, expectedConfidence: 0.0,
			expectedUrgency: domain.ROUTINE,
			expectedDosing:  "No pharmacogenomic data for TYLENOL.",
		},
		{
			name: "undetermined phenotype", drug: "CLOPIDOGREL", phenotype: domain.UNKNOWN_PHENOTYPE,
			expectedLabel: domain.UNKNOWN_RISK, expectedSeverity: domain.SEVERITY_MODERATE, expectedConfidence: 0.5,
			expectedUrgency: domain.SOON,
			expectedDosing:  "Phenotype undetermined. Use CLOPIDOGREL with standard monitoring.",
		},
		{
			name: "malformed phenotype", drug: "CODEINE", phenotype: domain.Phenotype("garbage"),
			expectedLabel: domain.UNKNOWN_RISK, expectedSeverity: domain.SEVERITY_MODERATE, expectedConfidence: 0.5,
			expectedUrgency: domain.SOON,
			expectedDosing:  "Phenotype undetermined. Use CODEINE with standard monitoring.",
		},
		{
			name: "empty phenotype", drug: "WARFARIN", phenotype: domain.Phenotype(""),
			expectedLabel: domain.UNKNOWN_RISK, expectedSeverity: domain.SEVERITY_MODERATE, expectedConfidence: 0.5,
			expectedUrgency: domain.SOON,
			expectedDosing:  "Phenotype undetermined. Use WARFARIN with standard monitoring.",
		},
	}

	resolver := NewRiskResolver(knowledge.Default(), knowledge.Default(), quietLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := resolver.Resolve(context.Background(), domain.RiskQuery{Drug: tt.drug, Phenotype: tt.phenotype})

			assert.Equal(t, tt.expectedLabel, res.RiskAssessment.RiskLabel)
			assert.Equal(t, tt.expectedSeverity, res.RiskAssessment.Severity)
			assert.InDelta(t, tt.expectedConfidence, res.RiskAssessment.ConfidenceScore, 1e-9)
			assert.Equal(t, tt.expectedUrgency, res.ClinicalRecommendation.Urgency)
			assert.Equal(t, tt.expectedDosing, res.ClinicalRecommendation.DosingRecommendation)
			assert.Equal(t, domain.SOURCE_STATIC_KB, res.Source)
			assert.NoError(t, res.Validate())
		})
	}
}

func TestRiskResolver_UndeterminedPhenotypeMonitoring(t *testing.T) {
	resolver := NewRiskResolver(knowledge.Default(), knowledge.Default(), quietLogger())

	res := resolver.Resolve(context.Background(), domain.RiskQuery{Drug: "CODEINE", Phenotype: domain.UNKNOWN_PHENOTYPE})

	assert.Equal(t, []string{"Standard monitoring"}, res.ClinicalRecommendation.MonitoringParameters)
	assert.Empty(t, res.ClinicalRecommendation.AlternativeDrugs)
}

func TestRiskResolver_StaticLogFields(t *testing.T) {
	tests := []struct {
		name      string
		phenotype domain.Phenotype
		valid     bool
		action    bool
	}{
		{"normal metabolizer", domain.NM, true, false},
		{"poor metabolizer", domain.PM, true, true},
		{"malformed phenotype", domain.Phenotype("garbage"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			logger.SetLevel(logrus.DebugLevel)
			resolver := NewRiskResolver(knowledge.Default(), knowledge.Default(), logger)

			resolver.Resolve(context.Background(), domain.RiskQuery{Drug: "WARFARIN", Phenotype: tt.phenotype})

			entry := findEntry(hook, "Risk resolved from static knowledge base")
			require.NotNil(t, entry.Data)
			assert.Equal(t, string(tt.phenotype), entry.Data["phenotype"])
			assert.Equal(t, tt.valid, entry.Data["is_valid"])
			assert.Equal(t, tt.action, entry.Data["clinical_action"])
		})
	}
}

func TestRiskResolver_TierPrecedence(t *testing.T) {
	ctx := context.Background()
	kb := knowledge.Default()
	query := domain.RiskQuery{Drug: "codeine", Phenotype: domain.PM, Gene: "CYP2D6", Diplotype: "*4/*4"}

	t.Run("external guideline answers first", func(t *testing.T) {
		lookup := new(MockGuidelineLookup)
		store := new(MockGuidelineStore)
		lookup.On("LookupFull", mock.Anything, "CODEINE", "CYP2D6", "*4/*4").
			Return(guidelineResult(domain.INEFFECTIVE, domain.SEVERITY_HIGH, 0.92), nil)

		resolver := NewRiskResolver(kb, kb, quietLogger(),
			WithTier(NewExternalGuidelineTier(lookup)), WithTier(NewStructuredStoreTier(store)))
		res := resolver.Resolve(ctx, query)

		assert.Equal(t, domain.SOURCE_EXTERNAL_GUIDELINE, res.Source)
		assert.Equal(t, "From guideline source", res.ClinicalRecommendation.DosingRecommendation)
		lookup.AssertExpectations(t)
		store.AssertNotCalled(t, "GetGuideline", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store answers when external misses", func(t *testing.T) {
		lookup := new(MockGuidelineLookup)
		store := new(MockGuidelineStore)
		lookup.On("LookupFull", mock.Anything, "CODEINE", "CYP2D6", "*4/*4").Return(nil, nil)
		store.On("GetGuideline", mock.Anything, "CODEINE", domain.PM).
			Return(guidelineResult(domain.INEFFECTIVE, domain.SEVERITY_MODERATE, 0.8), nil)

		resolver := NewRiskResolver(kb, kb, quietLogger(),
			WithTier(NewExternalGuidelineTier(lookup)), WithTier(NewStructuredStoreTier(store)))
		res := resolver.Resolve(ctx, query)

		assert.Equal(t, domain.SOURCE_STRUCTURED_STORE, res.Source)
		assert.Equal(t, domain.SEVERITY_MODERATE, res.RiskAssessment.Severity)
		lookup.AssertExpectations(t)
		store.AssertExpectations(t)
	})

	t.Run("external tier skipped without genotype", func(t *testing.T) {
		lookup := new(MockGuidelineLookup)
		store := new(MockGuidelineStore)
		store.On("GetGuideline", mock.Anything, "CODEINE", domain.PM).Return(nil, nil)

		resolver := NewRiskResolver(kb, kb, quietLogger(),
			WithTier(NewExternalGuidelineTier(lookup)), WithTier(NewStructuredStoreTier(store)))
		res := resolver.Resolve(ctx, domain.RiskQuery{Drug: "CODEINE", Phenotype: domain.PM, Gene: "CYP2D6", Diplotype: domain.Unknown})

		assert.Equal(t, domain.SOURCE_STATIC_KB, res.Source)
		assert.Equal(t, domain.INEFFECTIVE, res.RiskAssessment.RiskLabel)
		lookup.AssertNotCalled(t, "LookupFull", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRiskResolver_FallsBackOnFailures(t *testing.T) {
	ctx := context.Background()
	kb := knowledge.Default()
	query := domain.RiskQuery{Drug: "CODEINE", Phenotype: domain.PM, Gene: "CYP2D6", Diplotype: "*4/*4"}

	tests := []struct {
		name  string
		setup func(*MockGuidelineLookup)
	}{
		{
			name: "error",
			setup: func(m *MockGuidelineLookup) {
				m.On("LookupFull", mock.Anything, "CODEINE", "CYP2D6", "*4/*4").Return(nil, errors.New("connection refused"))
			},
		},
		{
			name: "invalid label",
			setup: func(m *MockGuidelineLookup) {
				m.On("LookupFull", mock.Anything, "CODEINE", "CYP2D6", "*4/*4").
					Return(guidelineResult("Dangerous", domain.SEVERITY_HIGH, 0.9), nil)
			},
		},
		{
			name: "confidence out of range",
			setup: func(m *MockGuidelineLookup) {
				m.On("LookupFull", mock.Anything, "CODEINE", "CYP2D6", "*4/*4").
					Return(guidelineResult(domain.TOXIC, domain.SEVERITY_HIGH, 1.5), nil)
			},
		},
		{
			name: "panic",
			setup: func(m *MockGuidelineLookup) {
				m.On("LookupFull", mock.Anything, "CODEINE", "CYP2D6", "*4/*4").Run(func(mock.Arguments) {
					panic("boom")
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			lookup := new(MockGuidelineLookup)
			tt.setup(lookup)

			resolver := NewRiskResolver(kb, kb, logger, WithTier(NewExternalGuidelineTier(lookup)))
			res := resolver.Resolve(ctx, query)

			assert.Equal(t, domain.SOURCE_STATIC_KB, res.Source)
			assert.Equal(t, domain.INEFFECTIVE, res.RiskAssessment.RiskLabel)
			assert.Equal(t, domain.SEVERITY_HIGH, res.RiskAssessment.Severity)

			var warned bool
			for _, entry := range hook.AllEntries() {
				if entry.Level == logrus.WarnLevel && entry.Data["tier"] == string(domain.SOURCE_EXTERNAL_GUIDELINE) {
					warned = true
				}
			}
			assert.True(t, warned, "expected a warning for the failed tier")
		})
	}
}

func TestRiskResolver_TierTimeout(t *testing.T) {
	kb := knowledge.Default()
	store := new(MockGuidelineStore)
	store.On("GetGuideline", mock.Anything, "WARFARIN", domain.NM).
		Run(func(mock.Arguments) { time.Sleep(200 * time.Millisecond) }).
		Return(guidelineResult(domain.TOXIC, domain.SEVERITY_HIGH, 0.9), nil)

	logger, hook := test.NewNullLogger()
	resolver := NewRiskResolver(kb, kb, logger,
		WithTier(NewStructuredStoreTier(store)), WithLookupTimeout(20*time.Millisecond))

	start := time.Now()
	res := resolver.Resolve(context.Background(), domain.RiskQuery{Drug: "WARFARIN", Phenotype: domain.NM})

	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, domain.SOURCE_STATIC_KB, res.Source)
	assert.Equal(t, domain.SAFE, res.RiskAssessment.RiskLabel)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, findEntry(hook, "Guideline tier failed, falling back").Level)
}

func TestRiskResolver_Tiers(t *testing.T) {
	kb := knowledge.Default()
	resolver := NewRiskResolver(kb, kb, quietLogger(),
		WithTier(NewExternalGuidelineTier(new(MockGuidelineLookup))),
		WithTier(nil),
		WithTier(NewStructuredStoreTier(new(MockGuidelineStore))))

	assert.Equal(t, []string{"external_guideline", "structured_store", "static_knowledge_base"}, resolver.Tiers())
}

func findEntry(hook *test.Hook, message string) *logrus.Entry {
	for _, entry := range hook.AllEntries() {
		if entry.Message == message {
			return entry
		}
	}
	return &logrus.Entry{}
}
