package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"Dreamy/core"
	"Dreamy/lib/sl"
)

const maxErrorBody = 1 << 20

// Dalle calls the OpenAI images endpoint. One Generate is one HTTP request,
// failures are never retried.
type Dalle struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

func NewDalle(conf *core.Config, log *slog.Logger) *Dalle {
	return &Dalle{
		apiKey:  conf.OpenAI.ApiKey,
		baseURL: strings.TrimRight(conf.OpenAI.BaseURL, "/"),
		model:   conf.OpenAI.Model,
		httpClient: &http.Client{
			Timeout: conf.OpenAI.Timeout,
		},
		log: log.With(sl.Module("dall-e")),
	}
}

// Generate returns the base64 payloads of the generated images in the order
// the provider returned them. An empty slice is a valid result.
func (d *Dalle) Generate(ctx context.Context, req core.GenerationRequest) ([]string, error) {
	jsonBytes, err := json.Marshal(NewImageRequest(d.model, req))
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/images/generations", bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	d.log.With(
		slog.String("size", string(req.Size)),
		slog.Int("n", req.Count),
		slog.String("prompt", sl.Truncate(req.Prompt, 50)),
		sl.Secret(d.apiKey),
	).Debug("image request")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, &core.ServiceError{Code: "transport_error", Message: err.Error()}
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			d.log.Warn("closing body", sl.Err(err))
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, responseError(resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.ServiceError{Status: resp.StatusCode, Code: "read_error", Message: err.Error()}
	}
	var imageResponse ImageGenerationResponse
	if err := json.Unmarshal(body, &imageResponse); err != nil {
		return nil, &core.ServiceError{Status: resp.StatusCode, Code: "decode_error", Message: fmt.Sprintf("decoding response: %v", err)}
	}
	if imageResponse.Error != nil && imageResponse.Error.Message != "" {
		return nil, classify(resp.StatusCode, imageResponse.Error)
	}

	payloads := make([]string, 0, len(imageResponse.Data))
	for _, data := range imageResponse.Data {
		payloads = append(payloads, data.B64JSON)
	}
	d.log.With(
		slog.Int("requested", req.Count),
		slog.Int("received", len(payloads)),
	).Info("images generated")

	return payloads, nil
}

func responseError(status int, body []byte) error {
	var errorResponse ImageGenerationResponse
	if json.Unmarshal(body, &errorResponse) == nil && errorResponse.Error != nil && errorResponse.Error.Message != "" {
		return classify(status, errorResponse.Error)
	}
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(status)
	}
	return classify(status, &Error{Message: message, Type: "http_error"})
}

func classify(status int, apiErr *Error) error {
	code := apiErr.code()
	if status == http.StatusUnauthorized || isAuthCode(code) {
		return fmt.Errorf("%w: %s", core.ErrAuthentication, apiErr.Message)
	}
	return &core.ServiceError{Status: status, Code: code, Message: apiErr.Message}
}

func isAuthCode(code string) bool {
	switch code {
	case "invalid_api_key", "authentication_error", "invalid_authentication", "missing_api_key":
		return true
	}
	return false
}
