package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fitfield/tryon-backend/pkg/config"
	"github.com/fitfield/tryon-backend/pkg/enums"
	"github.com/fitfield/tryon-backend/pkg/logger"
)

var (
	errReplicateTokenRequired  = errors.New("replicate api token is required")
	errReplicateLoggerRequired = errors.New("replicate logger is required")
)

// Replicate runs renders synchronously: SubmitRender performs the full round
// trip and parks the finished image in a TTL-bounded in-process cache under a
// synthetic job id, which GetResult later claims.
type Replicate struct {
	apiToken   string
	baseURL    string
	version    string
	httpClient *http.Client
	logger     *logger.Logger
	results    *resultCache
}

// NewReplicate validates the token and builds the adapter.
func NewReplicate(cfg config.ReplicateConfig, logg *logger.Logger) (*Replicate, error) {
	if logg == nil {
		return nil, errReplicateLoggerRequired
	}
	apiToken := strings.TrimSpace(cfg.APIToken)
	if apiToken == "" {
		return nil, errReplicateTokenRequired
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Replicate{
		apiToken:   apiToken,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		version:    cfg.Version,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logg,
		results:    newResultCache(ttl),
	}, nil
}

func (r *Replicate) Name() enums.ProviderName {
	return enums.ProviderNameReplicate
}

func (r *Replicate) SupportedCategories() []enums.GarmentCategory {
	return []enums.GarmentCategory{
		enums.GarmentCategoryTops,
		enums.GarmentCategoryBottoms,
		enums.GarmentCategoryDresses,
	}
}

type replicatePredictionRequest struct {
	Version string                   `json:"version"`
	Input   replicatePredictionInput `json:"input"`
}

type replicatePredictionInput struct {
	HumanImage   string `json:"human_img"`
	GarmentImage string `json:"garm_img"`
	Category     string `json:"category"`
}

type replicatePredictionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output"`
	Error  any    `json:"error"`
}

// SubmitRender blocks on the prediction and caches the finished image.
func (r *Replicate) SubmitRender(ctx context.Context, person, garment Image, opts SubmitOptions) (*Submission, error) {
	personURI, err := person.DataURI()
	if err != nil {
		return nil, err
	}
	garmentURI, err := garment.DataURI()
	if err != nil {
		return nil, err
	}

	payload := replicatePredictionRequest{
		Version: r.version,
		Input: replicatePredictionInput{
			HumanImage:   personURI,
			GarmentImage: garmentURI,
			Category:     r.category(opts.Category),
		},
	}

	headers := map[string]string{
		"Authorization": "Bearer " + r.apiToken,
		// Holds the request open until the prediction finishes.
		"Prefer": "wait=60",
	}

	var out replicatePredictionResponse
	url := r.baseURL + "/v1/predictions"
	if err := doJSON(ctx, r.httpClient, r.Name(), http.MethodPost, url, headers, payload, &out); err != nil {
		return nil, err
	}

	if out.Status != "succeeded" {
		message := "prediction did not succeed"
		if s, ok := out.Error.(string); ok && s != "" {
			message = s
		}
		return nil, &Error{Provider: r.Name(), StatusCode: http.StatusBadGateway, Message: message}
	}

	imageURL := firstOutputURL(out.Output)
	if imageURL == "" {
		return nil, &Error{Provider: r.Name(), StatusCode: http.StatusBadGateway, Message: "prediction succeeded without output"}
	}

	jobID := uuid.NewString()
	r.results.Put(jobID, Result{ImageURL: imageURL})
	r.logger.Info(r.logger.WithProvider(ctx, r.Name().String()), "render completed inline")
	return &Submission{JobID: jobID}, nil
}

// GetResult claims a cached synchronous result; nil, nil once it has expired.
func (r *Replicate) GetResult(_ context.Context, jobID string) (*Result, error) {
	result, ok := r.results.Get(jobID)
	if !ok {
		return nil, nil
	}
	return result, nil
}

// ResetCache drops all cached results.
func (r *Replicate) ResetCache() {
	r.results.Reset()
}

func (r *Replicate) category(category enums.GarmentCategory) string {
	switch category {
	case enums.GarmentCategoryBottoms:
		return "lower_body"
	case enums.GarmentCategoryDresses:
		return "dresses"
	default:
		return "upper_body"
	}
}

func firstOutputURL(output any) string {
	switch v := output.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
