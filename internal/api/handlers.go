package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/middleware"
)

// ParseRequest is the body of POST /api/v1/parse.
type ParseRequest struct {
	VCF string `json:"vcf" binding:"required"`
}

// AssessRequest is the body of POST /api/v1/assess.
type AssessRequest struct {
	Drug      string `json:"drug" binding:"required"`
	Phenotype string `json:"phenotype" binding:"required"`
	Gene      string `json:"gene,omitempty"`
	Diplotype string `json:"diplotype,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":               "healthy",
		"timestamp":            time.Now().UTC(),
		"version":              Version,
		"knowledge_version":    s.analyzer.Knowledge().Version(),
		"explanation_provider": s.analyzer.ExplanationProvider(),
		"guideline_tiers":      s.analyzer.RiskTiers(),
		"supported_drugs":      s.analyzer.Knowledge().SupportedDrugs(),
	})
}

func (s *Server) handleSupportedDrugs(c *gin.Context) {
	c.JSON(http.StatusOK, s.analyzer.Knowledge().Supported())
}

func (s *Server) handleAnalyze(c *gin.Context) {
	file, err := c.FormFile("vcf_file")
	if err != nil {
		s.writeError(c, domain.NewValidationError("vcf_file", "No file uploaded", nil))
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".vcf") {
		s.writeError(c, domain.NewValidationError("vcf_file",
			fmt.Sprintf("Invalid file type: %s. Only .vcf files are accepted.", file.Filename), file.Filename))
		return
	}

	limit := s.maxUploadBytes()
	if file.Size > limit {
		s.writeError(c, domain.NewValidationError("vcf_file", tooLargeMessage(limit), file.Size))
		return
	}

	f, err := file.Open()
	if err != nil {
		s.writeError(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		s.writeError(c, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	if int64(len(content)) > limit {
		s.writeError(c, domain.NewValidationError("vcf_file", tooLargeMessage(limit), len(content)))
		return
	}

	report, err := s.analyzer.Analyze(c.Request.Context(), string(content), []string{c.PostForm("drugs")})
	if err != nil {
		s.writeError(c, err)
		return
	}

	if s.recorder != nil {
		if err := s.recorder.RecordAnalysis(c.Request.Context(), report); err != nil {
			s.logger.WithFields(logrus.Fields{
				"analysis_id":    report.AnalysisID,
				"correlation_id": c.GetString(middleware.CorrelationIDKey),
			}).WithError(err).Warn("Failed to record analysis audit")
		}
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) handleParse(c *gin.Context) {
	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.NewValidationError("vcf", "Request body must be JSON with a non-empty vcf field.", nil))
		return
	}
	c.JSON(http.StatusOK, s.analyzer.ParseVariants(req.VCF))
}

func (s *Server) handleAssess(c *gin.Context) {
	var req AssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.NewValidationError("body", "Request body must be JSON with drug and phenotype fields.", nil))
		return
	}

	phenotype := domain.NormalizeQueryPhenotype(req.Phenotype)
	drug := s.analyzer.Knowledge().ResolveDrug(req.Drug)
	result := s.analyzer.AssessRisk(c.Request.Context(), domain.RiskQuery{
		Drug:      drug,
		Phenotype: phenotype,
		Gene:      strings.ToUpper(strings.TrimSpace(req.Gene)),
		Diplotype: strings.TrimSpace(req.Diplotype),
	})
	c.JSON(http.StatusOK, gin.H{
		"drug":                    drug,
		"phenotype":               phenotype,
		"risk_assessment":         result.RiskAssessment,
		"clinical_recommendation": result.ClinicalRecommendation,
		"source":                  result.Source,
	})
}

// writeError maps pipeline errors onto MCPError responses.
func (s *Server) writeError(c *gin.Context, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	var validationErr *domain.ValidationError
	var mcpErr *domain.MCPError
	switch {
	case errors.As(err, &validationErr):
		c.AbortWithStatusJSON(http.StatusBadRequest,
			domain.NewMCPError(domain.ErrValidation, validationErr.Message, validationErr.Field, requestID))
	case errors.As(err, &mcpErr):
		status := http.StatusInternalServerError
		switch mcpErr.Code {
		case domain.ErrVCFParsing, domain.ErrInvalidInput, domain.ErrValidation:
			status = http.StatusBadRequest
		case domain.ErrExternalAPI:
			status = http.StatusBadGateway
		}
		if mcpErr.RequestID == "" {
			mcpErr.RequestID = requestID
		}
		c.AbortWithStatusJSON(status, mcpErr)
	case errors.Is(err, context.DeadlineExceeded):
		c.AbortWithStatusJSON(http.StatusGatewayTimeout,
			domain.NewMCPError("REQUEST_TIMEOUT", "Request timeout", err.Error(), requestID))
	default:
		s.logger.WithField("correlation_id", requestID).WithError(err).Error("Request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			domain.NewMCPError(domain.ErrInternalServer, "Internal server error", "", requestID))
	}
}

func tooLargeMessage(limit int64) string {
	return fmt.Sprintf("File too large. Maximum size is %d MB.", limit/(1024*1024))
}
