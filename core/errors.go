package core

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPrompt    = errors.New("empty prompt")
	ErrPromptTooLong  = errors.New("prompt too long")
	ErrInvalidSize    = errors.New("unsupported image size")
	ErrInvalidCount   = errors.New("image count out of range")
	ErrNoImages       = errors.New("no images generated")
	ErrAuthentication = errors.New("authentication failed")
	ErrMalformedImage = errors.New("malformed image payload")
)

// ServiceError is any provider failure other than authentication.
// Error returns the provider message unchanged.
type ServiceError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// IsWarning reports whether err blocks a submission without being a failure:
// input validation or an empty provider result.
func IsWarning(err error) bool {
	return isValidation(err) || errors.Is(err, ErrNoImages)
}

func isValidation(err error) bool {
	return errors.Is(err, ErrEmptyPrompt) ||
		errors.Is(err, ErrPromptTooLong) ||
		errors.Is(err, ErrInvalidSize) ||
		errors.Is(err, ErrInvalidCount)
}

// UserMessage converts a submission error into the text shown to the user
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyPrompt):
		return "Please enter a prompt."
	case errors.Is(err, ErrPromptTooLong):
		return fmt.Sprintf("The prompt is limited to %d characters.", MaxPromptLength)
	case errors.Is(err, ErrInvalidSize):
		return "Please select a supported image size."
	case errors.Is(err, ErrInvalidCount):
		return fmt.Sprintf("Number of images must be between %d and %d.", MinImages, MaxImages)
	case errors.Is(err, ErrNoImages):
		return "No images generated."
	case errors.Is(err, ErrAuthentication):
		return "Authentication error: Please check your OpenAI API key."
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return "An error occurred: " + se.Message
	}
	return "An error occurred: " + err.Error()
}
