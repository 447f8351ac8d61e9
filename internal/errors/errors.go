// Package errors holds the error kinds the service distinguishes and their
// mapping onto HTTP status codes.
package errors

import (
	"context"
	stderrors "errors"
	"net/http"
)

// Kind names an error class in JSON error bodies.
type Kind string

const (
	KindBadRequest  Kind = "bad_request"
	KindImageDecode Kind = "image_decode"
	KindInference   Kind = "inference"
	KindArtifact    Kind = "artifact"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

// ArtifactLoadError is raised at startup when the model bundle is missing or
// inconsistent. It is fatal.
type ArtifactLoadError struct {
	ErrorMsg string
	Err      error
}

func (e *ArtifactLoadError) Error() string { return join(e.ErrorMsg, e.Err) }
func (e *ArtifactLoadError) Unwrap() error { return e.Err }

// BadRequestError means the request carried no usable image payload.
type BadRequestError struct {
	ErrorMsg string
	Err      error
}

func (e *BadRequestError) Error() string { return join(e.ErrorMsg, e.Err) }
func (e *BadRequestError) Unwrap() error { return e.Err }

// ImageDecodeError means the payload bytes are not a decodable image.
type ImageDecodeError struct {
	ErrorMsg string
	Err      error
}

func (e *ImageDecodeError) Error() string { return join(e.ErrorMsg, e.Err) }
func (e *ImageDecodeError) Unwrap() error { return e.Err }

// InferenceError is a model execution fault.
type InferenceError struct {
	ErrorMsg string
	Err      error
}

func (e *InferenceError) Error() string { return join(e.ErrorMsg, e.Err) }
func (e *InferenceError) Unwrap() error { return e.Err }

func NewArtifactLoadError(msg string, err error) error {
	return &ArtifactLoadError{ErrorMsg: msg, Err: err}
}

func NewBadRequestError(msg string, err error) error {
	return &BadRequestError{ErrorMsg: msg, Err: err}
}

func NewImageDecodeError(msg string, err error) error {
	return &ImageDecodeError{ErrorMsg: msg, Err: err}
}

func NewInferenceError(msg string, err error) error {
	return &InferenceError{ErrorMsg: msg, Err: err}
}

// Classify returns the HTTP status and kind for err.
func Classify(err error) (int, Kind) {
	var (
		badReq   *BadRequestError
		decode   *ImageDecodeError
		infer    *InferenceError
		artifact *ArtifactLoadError
	)
	switch {
	case err == nil:
		return http.StatusOK, ""
	case stderrors.As(err, &badReq):
		return http.StatusBadRequest, KindBadRequest
	case stderrors.As(err, &decode):
		return http.StatusBadRequest, KindImageDecode
	case stderrors.As(err, &infer):
		return http.StatusInternalServerError, KindInference
	case stderrors.As(err, &artifact):
		return http.StatusInternalServerError, KindArtifact
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, KindUnavailable
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

// HTTPStatus returns the status code err should be reported with.
func HTTPStatus(err error) int {
	status, _ := Classify(err)
	return status
}

func join(msg string, err error) string {
	if err == nil {
		return msg
	}
	if msg == "" {
		return err.Error()
	}
	return msg + ": " + err.Error()
}
