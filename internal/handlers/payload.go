package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	apperrors "github.com/Brownie44l1/damage-api/internal/errors"
)

// ImageField is the multipart form field carrying the image.
const ImageField = "image"

// multipart parts beyond this size are spooled to disk by net/http
const maxMemory = 10 << 20

// Encoding records how the image arrived.
type Encoding int

const (
	EncodingRaw Encoding = iota
	EncodingMultipart
)

func (e Encoding) String() string {
	if e == EncodingMultipart {
		return "multipart"
	}
	return "raw"
}

// Payload is the image bytes extracted from a request, tagged with the
// encoding they came in. Downstream stages only see Data.
type Payload struct {
	Encoding Encoding
	Data     []byte
}

// ExtractPayload reads the image from r. A multipart body (one whose
// content type carries a boundary) must have an "image" field; any other
// body is taken as the raw image bytes. Bodies over maxBytes are rejected.
func ExtractPayload(w http.ResponseWriter, r *http.Request, maxBytes int64) (Payload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if isMultipart(r) {
		data, err := readMultipartImage(r)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Encoding: EncodingMultipart, Data: data}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return Payload{}, bodyError(err, maxBytes)
	}
	if len(data) == 0 {
		return Payload{}, apperrors.NewBadRequestError("empty request body, send the image as raw bytes or as multipart field \"image\"", nil)
	}
	return Payload{Encoding: EncodingRaw, Data: data}, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != ""
}

func readMultipartImage(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, bodyError(err, maxErr.Limit)
		}
		return nil, apperrors.NewBadRequestError("failed to parse multipart form", err)
	}
	// parts over maxMemory are spooled to temp files, and the router hands us
	// a copy of the request that net/http never cleans up
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile(ImageField)
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, apperrors.NewBadRequestError("failed to read image field", err)
		}
		if len(data) == 0 {
			return nil, apperrors.NewBadRequestError("image field is empty", nil)
		}
		return data, nil
	case errors.Is(err, http.ErrMissingFile):
		// some clients send the bytes as a plain form value
		if v := r.MultipartForm.Value[ImageField]; len(v) > 0 && v[0] != "" {
			return []byte(v[0]), nil
		}
		return nil, apperrors.NewBadRequestError("no image provided, use \"image\" as the form field name", nil)
	default:
		return nil, apperrors.NewBadRequestError("failed to read image field", err)
	}
}

func bodyError(err error, limit int64) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperrors.NewBadRequestError(fmt.Sprintf("request body exceeds %d bytes", limit), nil)
	}
	return apperrors.NewBadRequestError("failed to read request body", err)
}
