package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/knowledge"
	"github.com/pharmaguard-mcp-server/internal/service"
)

const codeinePMVCF = "##fileformat=VCFv4.2\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tSAMPLE\n" +
	"22\t42522755\trs3892097\tC\tT\t99\tPASS\tGENE=CYP2D6;STAR=*4\tGT\t1/1\n"

// staticConfig is a fixed domain.ConfigManager
type staticConfig struct {
	cfg *domain.Config
}

func (s *staticConfig) GetConfig() *domain.Config                 { return s.cfg }
func (s *staticConfig) GetDatabaseConfig() *domain.DatabaseConfig { return &s.cfg.Database }
func (s *staticConfig) GetCPICConfig() *domain.CPICConfig         { return &s.cfg.CPIC }
func (s *staticConfig) GetServerConfig() *domain.ServerConfig     { return &s.cfg.Server }
func (s *staticConfig) Reload() error                             { return nil }
func (s *staticConfig) Validate() error                           { return nil }
func (s *staticConfig) GetDatabaseConnectionString() string       { return "" }
func (s *staticConfig) GetRedisConnectionString() string          { return "" }
func (s *staticConfig) IsProduction() bool                        { return false }
func (s *staticConfig) IsDevelopment() bool                       { return true }

// MockRecorder is a mock implementation of domain.AnalysisRecorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordAnalysis(ctx context.Context, report *domain.AnalysisReport) error {
	return m.Called(ctx, report).Error(0)
}

type ServerTestSuite struct {
	suite.Suite
	server   *Server
	recorder *MockRecorder
	hook     *test.Hook
}

func (s *ServerTestSuite) SetupTest() {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s.hook = hook
	s.recorder = &MockRecorder{}

	cfg := &staticConfig{cfg: &domain.Config{
		Server: domain.ServerConfig{
			Host:           "127.0.0.1",
			Port:           0,
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			IdleTimeout:    5 * time.Second,
			MaxUploadBytes: 1024 * 1024,
		},
		Logging: domain.LoggingConfig{Level: "info", Format: "json"},
	}}
	analyzer := service.NewAnalyzer(knowledge.Default(), logger)
	s.server = NewServer(cfg, analyzer, logger, WithAnalysisRecorder(s.recorder))
}

func (s *ServerTestSuite) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(w, req)
	return w
}

func (s *ServerTestSuite) decodeError(w *httptest.ResponseRecorder) domain.MCPError {
	var body domain.MCPError
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func multipartUpload(t *testing.T, filename string, content []byte, drugs string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("vcf_file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("drugs", drugs))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *ServerTestSuite) TestHealth() {
	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	s.Equal(http.StatusOK, w.Code)

	var body map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("healthy", body["status"])
	s.Equal(Version, body["version"])
	s.Equal("rule_based", body["explanation_provider"])
	s.Len(body["supported_drugs"], 6)
	s.NotEmpty(w.Header().Get("X-Correlation-ID"))
	s.Equal("nosniff", w.Header().Get("X-Content-Type-Options"))
}

func (s *ServerTestSuite) TestSupportedDrugs() {
	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/supported-drugs", nil))
	s.Equal(http.StatusOK, w.Code)

	var body domain.SupportedDrugs
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal([]string{"CODEINE", "WARFARIN", "CLOPIDOGREL", "SIMVASTATIN", "AZATHIOPRINE", "FLUOROURACIL"}, body.Drugs)
	s.Equal("CYP2C19", body.DrugDetails["CLOPIDOGREL"].Gene)
}

func (s *ServerTestSuite) TestAnalyze() {
	s.recorder.On("RecordAnalysis", mock.Anything, mock.AnythingOfType("*domain.AnalysisReport")).Return(nil).Once()

	w := s.do(multipartUpload(s.T(), "patient.VCF", []byte(codeinePMVCF), "codeine, warfarin"))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var report domain.AnalysisReport
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &report))
	s.Equal(2, report.TotalDrugsAnalyzed)
	s.Len(report.AnalysisID, 8)
	s.Equal("CODEINE", report.Results[0].Drug)
	s.Equal(domain.INEFFECTIVE, report.Results[0].RiskAssessment.RiskLabel)
	s.Equal(domain.PM, report.Results[0].PharmacogenomicProfile.Phenotype)
	s.Equal("WARFARIN", report.Results[1].Drug)
	s.recorder.AssertExpectations(s.T())
}

func (s *ServerTestSuite) TestAnalyze_RecorderFailureIsLogged() {
	s.recorder.On("RecordAnalysis", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()

	w := s.do(multipartUpload(s.T(), "patient.vcf", []byte(codeinePMVCF), "CODEINE"))
	s.Equal(http.StatusOK, w.Code)

	var found bool
	for _, e := range s.hook.AllEntries() {
		if e.Message == "Failed to record analysis audit" {
			found = true
		}
	}
	s.True(found)
}

func (s *ServerTestSuite) TestAnalyze_Rejections() {
	tests := []struct {
		name     string
		filename string
		content  []byte
		drugs    string
		code     string
		contains string
	}{
		{"missing file", "", nil, "CODEINE", domain.ErrValidation, "No file uploaded"},
		{"wrong extension", "patient.txt", []byte(codeinePMVCF), "CODEINE", domain.ErrValidation, "Only .vcf files are accepted"},
		{"too large", "big.vcf", bytes.Repeat([]byte("#"), 1024*1024+1), "CODEINE", domain.ErrValidation, "File too large. Maximum size is 1 MB."},
		{"empty file", "empty.vcf", []byte("   \n"), "CODEINE", domain.ErrValidation, "VCF file is empty."},
		{"unparseable", "junk.vcf", []byte("##fileformat=VCFv4.2\n##source=test"), "CODEINE", domain.ErrVCFParsing, "Invalid VCF file"},
		{"no drugs", "patient.vcf", []byte(codeinePMVCF), " , ", domain.ErrValidation, "No drugs specified"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do(multipartUpload(s.T(), tt.filename, tt.content, tt.drugs))
			s.Equal(http.StatusBadRequest, w.Code)
			body := s.decodeError(w)
			s.Equal(tt.code, body.Code)
			s.Contains(body.Message, tt.contains)
			s.NotEmpty(body.RequestID)
		})
	}
	s.recorder.AssertNotCalled(s.T(), "RecordAnalysis", mock.Anything, mock.Anything)
}

func (s *ServerTestSuite) TestParse() {
	payload, err := json.Marshal(ParseRequest{VCF: codeinePMVCF})
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/parse", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)
	s.Equal(http.StatusOK, w.Code)

	var parsed domain.ParseResult
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &parsed))
	s.True(parsed.VCFValid)
	s.Equal(1, parsed.TotalVariants)
	s.Equal([]string{"CYP2D6"}, parsed.GenesFound)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/parse", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = s.do(req)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *ServerTestSuite) TestAssess() {
	tests := []struct {
		name      string
		body      string
		status    int
		riskLabel domain.RiskLabel
	}{
		{"codeine poor metabolizer", `{"drug":"codeine","phenotype":"PM"}`, http.StatusOK, domain.INEFFECTIVE},
		{"codeine ultrarapid", `{"drug":"CODEINE","phenotype":"URM"}`, http.StatusOK, domain.TOXIC},
		{"unknown phenotype", `{"drug":"WARFARIN","phenotype":"unknown"}`, http.StatusOK, domain.UNKNOWN_RISK},
		{"unlisted drug", `{"drug":"TYLENOL","phenotype":"NM"}`, http.StatusOK, domain.UNKNOWN_RISK},
		{"long-form phenotype", `{"drug":"codeine","phenotype":"Poor Metabolizer"}`, http.StatusOK, domain.INEFFECTIVE},
		{"unrecognized phenotype", `{"drug":"CODEINE","phenotype":"FAST"}`, http.StatusOK, domain.UNKNOWN_RISK},
		{"missing drug", `{"phenotype":"PM"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/assess", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := s.do(req)
			s.Require().Equal(tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				return
			}

			var body struct {
				RiskAssessment domain.RiskAssessment  `json:"risk_assessment"`
				Source         domain.GuidelineSource `json:"source"`
			}
			s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
			s.Equal(tt.riskLabel, body.RiskAssessment.RiskLabel)
			s.Equal(domain.SOURCE_STATIC_KB, body.Source)
		})
	}
}

func (s *ServerTestSuite) TestAssessUnrecognizedPhenotype() {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assess", strings.NewReader(`{"drug":"CODEINE","phenotype":"garbage"}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Drug                   string                        `json:"drug"`
		Phenotype              domain.Phenotype              `json:"phenotype"`
		RiskAssessment         domain.RiskAssessment         `json:"risk_assessment"`
		ClinicalRecommendation domain.ClinicalRecommendation `json:"clinical_recommendation"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("CODEINE", body.Drug)
	s.Equal(domain.Phenotype("garbage"), body.Phenotype)
	s.Equal(domain.UNKNOWN_RISK, body.RiskAssessment.RiskLabel)
	s.InDelta(0.5, body.RiskAssessment.ConfidenceScore, 1e-9)
	s.Equal(domain.SEVERITY_MODERATE, body.RiskAssessment.Severity)
	s.Equal(domain.SOON, body.ClinicalRecommendation.Urgency)
}

func (s *ServerTestSuite) TestStartAndShutdown() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("server did not shut down")
	}
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
