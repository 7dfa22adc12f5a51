package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fitfield/tryon-backend/pkg/config"
	"github.com/fitfield/tryon-backend/pkg/enums"
	"github.com/fitfield/tryon-backend/pkg/logger"
)

var (
	errFashnAPIKeyRequired = errors.New("fashn api key is required")
	errFashnLoggerRequired = errors.New("fashn logger is required")
)

// fashnCategories maps domain categories onto the model's vocabulary.
var fashnCategories = map[enums.GarmentCategory]string{
	enums.GarmentCategoryTops:      "tops",
	enums.GarmentCategoryBottoms:   "bottoms",
	enums.GarmentCategoryDresses:   "one-pieces",
	enums.GarmentCategoryOuterwear: "tops",
}

// Fashn drives renders through the Fashn try-on API. Submissions return
// immediately; the finished image arrives on the completion webhook.
type Fashn struct {
	apiKey     string
	baseURL    string
	modelID    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewFashn validates the credentials and builds the adapter.
func NewFashn(cfg config.FashnConfig, logg *logger.Logger) (*Fashn, error) {
	if logg == nil {
		return nil, errFashnLoggerRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errFashnAPIKeyRequired
	}
	return &Fashn{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		modelID:    cfg.ModelID,
		httpClient: defaultHTTPClient(),
		logger:     logg,
	}, nil
}

func (f *Fashn) Name() enums.ProviderName {
	return enums.ProviderNameFashn
}

func (f *Fashn) SupportedCategories() []enums.GarmentCategory {
	return []enums.GarmentCategory{
		enums.GarmentCategoryTops,
		enums.GarmentCategoryBottoms,
		enums.GarmentCategoryDresses,
		enums.GarmentCategoryOuterwear,
	}
}

type fashnRunRequest struct {
	ModelName  string         `json:"model_name"`
	Inputs     fashnRunInputs `json:"inputs"`
	WebhookURL string         `json:"webhook_url,omitempty"`
}

type fashnRunInputs struct {
	ModelImage   string `json:"model_image"`
	GarmentImage string `json:"garment_image"`
	Category     string `json:"category"`
}

type fashnRunResponse struct {
	ID string `json:"id"`
}

type fashnStatusResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  *struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// SubmitRender uploads both images inline and returns the provider job id.
func (f *Fashn) SubmitRender(ctx context.Context, person, garment Image, opts SubmitOptions) (*Submission, error) {
	personURI, err := person.DataURI()
	if err != nil {
		return nil, err
	}
	garmentURI, err := garment.DataURI()
	if err != nil {
		return nil, err
	}

	category, ok := fashnCategories[opts.Category]
	if !ok {
		category = "auto"
	}

	payload := fashnRunRequest{
		ModelName: f.modelID,
		Inputs: fashnRunInputs{
			ModelImage:   personURI,
			GarmentImage: garmentURI,
			Category:     category,
		},
		WebhookURL: opts.CallbackURL,
	}

	var out fashnRunResponse
	err = doJSON(ctx, f.httpClient, f.Name(), http.MethodPost, f.baseURL+"/v1/run", f.authHeaders(), payload, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &Error{Provider: f.Name(), StatusCode: http.StatusBadGateway, Message: "submission accepted without an id"}
	}

	f.logger.Info(f.logger.WithProvider(ctx, f.Name().String()), "render submitted")
	return &Submission{JobID: out.ID}, nil
}

// GetResult polls the job; nil, nil means still running.
func (f *Fashn) GetResult(ctx context.Context, jobID string) (*Result, error) {
	var out fashnStatusResponse
	url := fmt.Sprintf("%s/v1/status/%s", f.baseURL, jobID)
	if err := doJSON(ctx, f.httpClient, f.Name(), http.MethodGet, url, f.authHeaders(), nil, &out); err != nil {
		return nil, err
	}

	switch out.Status {
	case "completed":
		if len(out.Output) == 0 {
			return nil, &Error{Provider: f.Name(), StatusCode: http.StatusBadGateway, Message: "completed job has no output"}
		}
		return &Result{ImageURL: out.Output[0]}, nil
	case "failed", "canceled":
		message := "render failed"
		if out.Error != nil {
			message = out.Error.Message
		}
		return nil, &Error{Provider: f.Name(), StatusCode: http.StatusUnprocessableEntity, Message: message}
	default:
		return nil, nil
	}
}

func (f *Fashn) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + f.apiKey}
}
