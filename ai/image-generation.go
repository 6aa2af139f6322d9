package ai

import "Dreamy/core"

const responseFormatB64 = "b64_json"

// ImageGenerationRequest represents a request to DALL-E API
type ImageGenerationRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

// ImageGenerationResponse represents the response from DALL-E API
type ImageGenerationResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
	Error   *Error      `json:"error"`
}

// ImageData represents a single generated image
type ImageData struct {
	URL           string `json:"url"`
	B64JSON       string `json:"b64_json"`
	RevisedPrompt string `json:"revised_prompt"`
}

// Error is the error object OpenAI puts in failed responses
type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    any    `json:"code"`
}

func (e *Error) code() string {
	if s, ok := e.Code.(string); ok && s != "" {
		return s
	}
	return e.Type
}

// NewImageRequest creates a new image generation request
func NewImageRequest(model string, req core.GenerationRequest) *ImageGenerationRequest {
	return &ImageGenerationRequest{
		Model:          model,
		Prompt:         req.Prompt,
		N:              req.Count,
		Size:           string(req.Size),
		ResponseFormat: responseFormatB64,
	}
}
