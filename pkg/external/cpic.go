package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/recommendation"
)

// Defaults for the CPIC client.
const (
	DefaultCPICBaseURL = "https://api.cpicpgx.org/v1"
	cpicConfidence     = 0.92
	cpicPairPathway    = "CPIC Level A/B gene-drug pair"
	maxResponseBytes   = 8 << 20
)

// CPICClient queries the public CPIC guideline API (PostgREST). Responses are
// cached by full request URL; misses are reported as (nil, nil).
type CPICClient struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	cache      Cache
	cacheTTL   time.Duration
	logger     *logrus.Logger
}

// NewCPICClient creates a new CPIC API client. A nil cache disables caching.
func NewCPICClient(config domain.CPICConfig, cache Cache, logger *logrus.Logger) *CPICClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultCPICBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultCacheTTL
	}

	return &CPICClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		rateLimit:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker: newCircuitBreaker("CPIC", CircuitBreakerConfig{
			MaxRequests: config.BreakerMaxFails,
			Interval:    config.BreakerInterval,
			Timeout:     config.BreakerOpenDelay,
		}, logger),
		cache:    cache,
		cacheTTL: config.CacheTTL,
		logger:   logger,
	}
}

// flexString accepts a JSON string, number, boolean, array or null and keeps
// a display form. Arrays are joined with ", ".
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '[':
		var items []flexString
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if it != "" {
				parts = append(parts, string(it))
			}
		}
		*f = flexString(strings.Join(parts, ", "))
	default:
		*f = flexString(b)
	}
	return nil
}

// DiplotypeResult is a CPIC diplotype to phenotype translation.
type DiplotypeResult struct {
	Gene             string `json:"gene"`
	Diplotype        string `json:"diplotype"`
	Phenotype        string `json:"phenotype"`
	ActivityScore    string `json:"activity_score,omitempty"`
	EHRPriority      string `json:"ehr_priority,omitempty"`
	ConsultationText string `json:"consultation_text,omitempty"`
	Allele1Function  string `json:"allele1_function,omitempty"`
	Allele2Function  string `json:"allele2_function,omitempty"`
}

type diplotypeRow struct {
	GeneSymbol       string     `json:"genesymbol"`
	Diplotype        string     `json:"diplotype"`
	GeneResult       string     `json:"generesult"`
	ActivityScore    flexString `json:"activityscore"`
	EHRPriority      flexString `json:"ehrpriority"`
	ConsultationText flexString `json:"consultationtext"`
	Function1        flexString `json:"diplotype_function1"`
	Function2        flexString `json:"diplotype_function2"`
}

// DrugInfo is a CPIC drug record.
type DrugInfo struct {
	DrugID       string `json:"drugid"`
	Name         string `json:"name"`
	RxNormID     string `json:"rxnorm,omitempty"`
	ATCID        string `json:"atc,omitempty"`
	GuidelineURL string `json:"guideline_url,omitempty"`
}

type drugRow struct {
	DrugID       flexString `json:"drugid"`
	Name         string     `json:"name"`
	RxNormID     flexString `json:"rxnormid"`
	ATCID        flexString `json:"atcid"`
	GuidelineURL flexString `json:"guidelineurl"`
}

// GenePair is one CPIC gene-drug pair.
type GenePair struct {
	Gene          string `json:"gene"`
	Drug          string `json:"drug"`
	CPICLevel     string `json:"cpic_level"`
	Status        string `json:"status"`
	EvidenceLevel string `json:"evidence_level"`
	FDATesting    string `json:"fda_pgx_testing"`
}

type pairRow struct {
	GeneSymbol  string     `json:"genesymbol"`
	DrugName    string     `json:"drugname"`
	CPICLevel   flexString `json:"cpiclevel"`
	CPICStatus  flexString `json:"cpicstatus"`
	PGKBCALevel flexString `json:"pgkbcalevel"`
	PGxTesting  flexString `json:"pgxtesting"`
}

// AlleleFunction is the CPIC function assignment for one allele.
type AlleleFunction struct {
	Gene          string `json:"gene"`
	Allele        string `json:"allele"`
	Function      string `json:"function"`
	ActivityValue string `json:"activity_value,omitempty"`
	ClinVar       string `json:"clinvar,omitempty"`
}

type alleleRow struct {
	Name             string     `json:"name"`
	FunctionalStatus flexString `json:"functionalstatus"`
	ActivityValue    flexString `json:"activityvalue"`
	ClinVar          flexString `json:"clinvar"`
}

// Recommendation is a normalized CPIC recommendation plus its source metadata.
type Recommendation struct {
	Result                 domain.RiskResult `json:"result"`
	Implication            string            `json:"implication"`
	ClassificationStrength string            `json:"classification_strength"`
	Comments               string            `json:"comments"`
	Population             string            `json:"population"`
	Version                string            `json:"version,omitempty"`
	GuidelineURL           string            `json:"guideline_url,omitempty"`
}

type recommendationRow struct {
	DrugRecommendation string                `json:"drugrecommendation"`
	Implications       json.RawMessage       `json:"implications"`
	Classification     json.RawMessage       `json:"classification"`
	Comments           flexString            `json:"comments"`
	Population         flexString            `json:"population"`
	Version            flexString            `json:"version"`
	LookupKey          map[string]flexString `json:"lookupkey"`
	Guideline          json.RawMessage       `json:"guideline"`
}

// DiplotypeToPhenotype translates a diplotype into CPIC's phenotype text. When
// the exact diplotype is unknown the reversed allele order is tried.
func (c *CPICClient) DiplotypeToPhenotype(ctx context.Context, gene, diplotype string) (*DiplotypeResult, error) {
	params := url.Values{}
	params.Set("genesymbol", "eq."+gene)
	params.Set("diplotype", "eq."+diplotype)

	var rows []diplotypeRow
	if err := c.get(ctx, "/diplotype", params, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if a1, a2, ok := strings.Cut(diplotype, "/"); ok {
			params.Set("diplotype", "eq."+a2+"/"+a1)
			if err := c.get(ctx, "/diplotype", params, &rows); err != nil {
				return nil, err
			}
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	res := &DiplotypeResult{
		Gene:             row.GeneSymbol,
		Diplotype:        row.Diplotype,
		Phenotype:        row.GeneResult,
		ActivityScore:    string(row.ActivityScore),
		EHRPriority:      string(row.EHRPriority),
		ConsultationText: string(row.ConsultationText),
		Allele1Function:  string(row.Function1),
		Allele2Function:  string(row.Function2),
	}
	if res.Gene == "" {
		res.Gene = gene
	}
	if res.Diplotype == "" {
		res.Diplotype = diplotype
	}
	return res, nil
}

// GetDrug looks a drug up by case-insensitive substring and returns the first match.
func (c *CPICClient) GetDrug(ctx context.Context, name string) (*DrugInfo, error) {
	params := url.Values{}
	params.Set("name", "ilike.*"+name+"*")

	var rows []drugRow
	if err := c.get(ctx, "/drug", params, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	info := &DrugInfo{
		DrugID:       string(row.DrugID),
		Name:         row.Name,
		RxNormID:     string(row.RxNormID),
		ATCID:        string(row.ATCID),
		GuidelineURL: string(row.GuidelineURL),
	}
	if info.Name == "" {
		info.Name = name
	}
	return info, nil
}

// GetRecommendation finds the recommendation for a drug and gene phenotype.
// Rows for the general population are preferred.
func (c *CPICClient) GetRecommendation(ctx context.Context, drug, gene, phenotype string) (*Recommendation, error) {
	info, err := c.GetDrug(ctx, drug)
	if err != nil || info == nil || info.DrugID == "" {
		return nil, err
	}

	lookupKey, err := json.Marshal(map[string]string{gene: phenotype})
	if err != nil {
		return nil, fmt.Errorf("failed to encode lookup key: %w", err)
	}

	params := url.Values{}
	params.Set("drugid", "eq."+info.DrugID)
	params.Set("lookupkey", "cs."+string(lookupKey))

	var rows []recommendationRow
	if err := c.get(ctx, "/recommendation", params, &rows); err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		best := rows[0]
		for _, row := range rows {
			pop := strings.ToLower(string(row.Population))
			if pop == "general" || pop == "" {
				best = row
				break
			}
		}
		rec := normalizeRecommendation(best, gene)
		return &rec, nil
	}

	broad := url.Values{}
	broad.Set("drugid", "eq."+info.DrugID)
	var all []recommendationRow
	if err := c.get(ctx, "/recommendation", broad, &all); err != nil {
		return nil, err
	}
	for _, row := range all {
		if strings.EqualFold(string(row.LookupKey[gene]), phenotype) {
			rec := normalizeRecommendation(row, gene)
			return &rec, nil
		}
	}
	return nil, nil
}

// ListPairs returns CPIC gene-drug pairs, optionally filtered by CPIC level.
func (c *CPICClient) ListPairs(ctx context.Context, level string) ([]GenePair, error) {
	params := url.Values{}
	params.Set("select", "genesymbol,drugname,cpiclevel,cpicstatus,pgkbcalevel,pgxtesting,guidelineid")
	if level != "" {
		params.Set("cpiclevel", "eq."+level)
	}

	var rows []pairRow
	if err := c.get(ctx, "/pair", params, &rows); err != nil {
		return nil, err
	}
	pairs := make([]GenePair, 0, len(rows))
	for _, row := range rows {
		pairs = append(pairs, GenePair{
			Gene:          row.GeneSymbol,
			Drug:          row.DrugName,
			CPICLevel:     string(row.CPICLevel),
			Status:        string(row.CPICStatus),
			EvidenceLevel: string(row.PGKBCALevel),
			FDATesting:    string(row.PGxTesting),
		})
	}
	return pairs, nil
}

// FindGeneForDrug returns the primary CPIC gene for a drug. An exact drug
// name at level A or B wins, otherwise the first substring match is used.
func (c *CPICClient) FindGeneForDrug(ctx context.Context, drug string) (string, error) {
	pairs, err := c.ListPairs(ctx, "")
	if err != nil {
		return "", err
	}
	needle := strings.ToLower(drug)
	for _, p := range pairs {
		if strings.ToLower(p.Drug) == needle && (p.CPICLevel == "A" || p.CPICLevel == "B") {
			return p.Gene, nil
		}
	}
	for _, p := range pairs {
		if strings.Contains(strings.ToLower(p.Drug), needle) {
			return p.Gene, nil
		}
	}
	return "", nil
}

// GetAlleleFunction returns CPIC's function assignment for one allele.
func (c *CPICClient) GetAlleleFunction(ctx context.Context, gene, allele string) (*AlleleFunction, error) {
	params := url.Values{}
	params.Set("genesymbol", "eq."+gene)
	params.Set("name", "eq."+allele)

	var rows []alleleRow
	if err := c.get(ctx, "/allele", params, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	return &AlleleFunction{
		Gene:          gene,
		Allele:        allele,
		Function:      string(row.FunctionalStatus),
		ActivityValue: string(row.ActivityValue),
		ClinVar:       string(row.ClinVar),
	}, nil
}

// GetGeneAlleles lists every allele CPIC defines for a gene.
func (c *CPICClient) GetGeneAlleles(ctx context.Context, gene string) ([]AlleleFunction, error) {
	params := url.Values{}
	params.Set("genesymbol", "eq."+gene)
	params.Set("select", "name,functionalstatus,activityvalue")

	var rows []alleleRow
	if err := c.get(ctx, "/allele", params, &rows); err != nil {
		return nil, err
	}
	alleles := make([]AlleleFunction, 0, len(rows))
	for _, row := range rows {
		alleles = append(alleles, AlleleFunction{
			Gene:          gene,
			Allele:        row.Name,
			Function:      string(row.FunctionalStatus),
			ActivityValue: string(row.ActivityValue),
		})
	}
	return alleles, nil
}

// LookupFull implements domain.GuidelineLookup: diplotype to phenotype, then
// phenotype to recommendation. Either step missing yields (nil, nil).
func (c *CPICClient) LookupFull(ctx context.Context, drug, gene, diplotype string) (*domain.RiskResult, error) {
	dip, err := c.DiplotypeToPhenotype(ctx, gene, diplotype)
	if err != nil {
		return nil, err
	}
	if dip == nil || dip.Phenotype == "" {
		return nil, nil
	}

	rec, err := c.GetRecommendation(ctx, drug, gene, dip.Phenotype)
	if err != nil || rec == nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"drug":           drug,
		"gene":           gene,
		"diplotype":      diplotype,
		"cpic_phenotype": dip.Phenotype,
		"risk_label":     rec.Result.RiskAssessment.RiskLabel,
	}).Debug("CPIC recommendation found")

	res := rec.Result
	return &res, nil
}

// GeneForDrug implements domain.GuidelineLookup.
func (c *CPICClient) GeneForDrug(ctx context.Context, drug string) (*domain.DrugGeneInfo, error) {
	gene, err := c.FindGeneForDrug(ctx, drug)
	if err != nil || gene == "" {
		return nil, err
	}
	info := &domain.DrugGeneInfo{Drug: drug, Gene: gene, Pathway: cpicPairPathway}
	if d, err := c.GetDrug(ctx, drug); err == nil && d != nil {
		info.DrugClass = d.ATCID
	}
	return info, nil
}

// Available reports whether the API answers with at least one drug.
func (c *CPICClient) Available(ctx context.Context) bool {
	params := url.Values{}
	params.Set("limit", "1")
	var rows []json.RawMessage
	if err := c.get(ctx, "/drug", params, &rows); err != nil {
		return false
	}
	return len(rows) > 0
}

func normalizeRecommendation(row recommendationRow, gene string) Recommendation {
	implication := implicationFor(row.Implications, gene)
	comments := string(row.Comments)
	outcome := recommendation.Classify(row.DrugRecommendation, implication)
	extractFrom := row.DrugRecommendation + " " + comments

	var classification struct {
		Term string `json:"term"`
	}
	_ = json.Unmarshal(row.Classification, &classification)

	var guideline struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	_ = json.Unmarshal(row.Guideline, &guideline)

	population := string(row.Population)
	if population == "" {
		population = "general"
	}

	return Recommendation{
		Result: domain.RiskResult{
			RiskAssessment: domain.RiskAssessment{
				RiskLabel:       outcome.RiskLabel,
				ConfidenceScore: cpicConfidence,
				Severity:        outcome.Severity,
			},
			ClinicalRecommendation: domain.ClinicalRecommendation{
				DosingRecommendation: row.DrugRecommendation,
				AlternativeDrugs:     recommendation.ExtractAlternatives(extractFrom),
				MonitoringParameters: recommendation.ExtractMonitoring(extractFrom),
				GuidelineReference:   guideline.Name,
				Urgency:              outcome.Urgency,
			},
			Source: domain.SOURCE_EXTERNAL_GUIDELINE,
		},
		Implication:            implication,
		ClassificationStrength: classification.Term,
		Comments:               comments,
		Population:             population,
		Version:                string(row.Version),
		GuidelineURL:           guideline.URL,
	}
}

// implicationFor reads implications[gene] when implications is an object and
// falls back to the raw text otherwise.
func implicationFor(raw json.RawMessage, gene string) string {
	if len(raw) == 0 {
		return ""
	}
	var byGene map[string]flexString
	if err := json.Unmarshal(raw, &byGene); err == nil {
		return string(byGene[gene])
	}
	var text flexString
	if err := json.Unmarshal(raw, &text); err == nil {
		return string(text)
	}
	return ""
}

// get fetches path with params into out, consulting the cache first. Only
// successful responses are cached.
func (c *CPICClient) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	if c.cache != nil {
		if data, ok, err := c.cache.Get(ctx, endpoint); err == nil && ok {
			if err := json.Unmarshal(data, out); err == nil {
				return nil
			}
		}
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, endpoint)
	})
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"endpoint":    endpoint,
			"duration_ms": time.Since(start).Milliseconds(),
		}).WithError(err).Warn("CPIC request failed")
		return fmt.Errorf("CPIC request %s failed: %w", path, breakerError(err))
	}
	body := result.([]byte)

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode CPIC response from %s: %w", path, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, endpoint, body, c.cacheTTL); err != nil {
			c.logger.WithError(err).Debug("Failed to cache CPIC response")
		}
	}
	return nil
}

func (c *CPICClient) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "PharmaGuard-MCP-Server/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CPIC API returned status %d: %s", resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

func truncateBody(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
