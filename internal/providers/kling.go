package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fitfield/tryon-backend/pkg/config"
	"github.com/fitfield/tryon-backend/pkg/enums"
	"github.com/fitfield/tryon-backend/pkg/logger"
)

var (
	errKlingKeysRequired   = errors.New("kling access and secret keys are required")
	errKlingLoggerRequired = errors.New("kling logger is required")
)

const klingTokenTTL = 30 * time.Minute

// Kling drives renders through the Kling virtual try-on API. Each request is
// authenticated with a short-lived HS256 token minted from the key pair.
type Kling struct {
	accessKey  string
	secretKey  string
	baseURL    string
	modelID    string
	httpClient *http.Client
	logger     *logger.Logger
	now        func() time.Time
}

// NewKling validates the key pair and builds the adapter.
func NewKling(cfg config.KlingConfig, logg *logger.Logger) (*Kling, error) {
	if logg == nil {
		return nil, errKlingLoggerRequired
	}
	accessKey := strings.TrimSpace(cfg.AccessKey)
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if accessKey == "" || secretKey == "" {
		return nil, errKlingKeysRequired
	}
	return &Kling{
		accessKey:  accessKey,
		secretKey:  secretKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		modelID:    cfg.ModelID,
		httpClient: defaultHTTPClient(),
		logger:     logg,
		now:        time.Now,
	}, nil
}

func (k *Kling) Name() enums.ProviderName {
	return enums.ProviderNameKling
}

func (k *Kling) SupportedCategories() []enums.GarmentCategory {
	return []enums.GarmentCategory{
		enums.GarmentCategoryTops,
		enums.GarmentCategoryBottoms,
		enums.GarmentCategoryDresses,
		enums.GarmentCategoryOuterwear,
	}
}

type klingSubmitRequest struct {
	ModelName   string `json:"model_name"`
	HumanImage  string `json:"human_image"`
	ClothImage  string `json:"cloth_image"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type klingEnvelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type klingSubmitData struct {
	TaskID string `json:"task_id"`
}

type klingTaskData struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	TaskStatusMsg string `json:"task_status_msg"`
	TaskResult    struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"task_result"`
}

// SubmitRender uploads both images inline and returns the provider task id.
func (k *Kling) SubmitRender(ctx context.Context, person, garment Image, opts SubmitOptions) (*Submission, error) {
	personURI, err := person.DataURI()
	if err != nil {
		return nil, err
	}
	garmentURI, err := garment.DataURI()
	if err != nil {
		return nil, err
	}

	headers, err := k.authHeaders()
	if err != nil {
		return nil, err
	}

	payload := klingSubmitRequest{
		ModelName:   k.modelID,
		HumanImage:  personURI,
		ClothImage:  garmentURI,
		CallbackURL: opts.CallbackURL,
	}

	var out klingEnvelope[klingSubmitData]
	url := k.baseURL + "/v1/images/kolors-virtual-try-on"
	if err := doJSON(ctx, k.httpClient, k.Name(), http.MethodPost, url, headers, payload, &out); err != nil {
		return nil, err
	}
	if out.Code != 0 || out.Data.TaskID == "" {
		return nil, &Error{Provider: k.Name(), StatusCode: http.StatusBadGateway, Message: out.Message}
	}

	k.logger.Info(k.logger.WithProvider(ctx, k.Name().String()), "render submitted")
	return &Submission{JobID: out.Data.TaskID}, nil
}

// GetResult polls the task; nil, nil means still running.
func (k *Kling) GetResult(ctx context.Context, jobID string) (*Result, error) {
	headers, err := k.authHeaders()
	if err != nil {
		return nil, err
	}

	var out klingEnvelope[klingTaskData]
	url := fmt.Sprintf("%s/v1/images/kolors-virtual-try-on/%s", k.baseURL, jobID)
	if err := doJSON(ctx, k.httpClient, k.Name(), http.MethodGet, url, headers, nil, &out); err != nil {
		return nil, err
	}
	if out.Code != 0 {
		return nil, &Error{Provider: k.Name(), StatusCode: http.StatusBadGateway, Message: out.Message}
	}

	switch out.Data.TaskStatus {
	case "succeed":
		if len(out.Data.TaskResult.Images) == 0 {
			return nil, &Error{Provider: k.Name(), StatusCode: http.StatusBadGateway, Message: "succeeded task has no images"}
		}
		return &Result{ImageURL: out.Data.TaskResult.Images[0].URL}, nil
	case "failed":
		return nil, &Error{Provider: k.Name(), StatusCode: http.StatusUnprocessableEntity, Message: out.Data.TaskStatusMsg}
	default:
		return nil, nil
	}
}

// authHeaders mints the short-lived bearer token the API expects.
func (k *Kling) authHeaders() (map[string]string, error) {
	now := k.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": k.accessKey,
		"exp": now.Add(klingTokenTTL).Unix(),
		"nbf": now.Add(-5 * time.Second).Unix(),
	})
	signed, err := token.SignedString([]byte(k.secretKey))
	if err != nil {
		return nil, fmt.Errorf("signing kling token: %w", err)
	}
	return map[string]string{"Authorization": "Bearer " + signed}, nil
}
