package types

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
)

var ErrMissingFile = errors.New("file is required")

type UploadRequest struct {
	File *multipart.FileHeader
}

// NewUploadRequestFromContext reads the multipart "file" field. A request
// without the field yields an UploadRequest whose Validate fails.
func NewUploadRequestFromContext(ctx echo.Context) (*UploadRequest, error) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return &UploadRequest{}, nil
		}
		return nil, err
	}

	return &UploadRequest{File: fh}, nil
}

func (r *UploadRequest) Validate() error {
	if r.File == nil {
		return ErrMissingFile
	}

	return nil
}

type DownloadRequest struct {
	Code string `param:"code"`
}

func NewDownloadRequestFromContext(ctx echo.Context) (*DownloadRequest, error) {
	var body DownloadRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}
