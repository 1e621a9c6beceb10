package controller

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	httpdto "github.com/vibast-solutions/ms-go-filedrop/app/dto/http"
	"github.com/vibast-solutions/ms-go-filedrop/app/service"
	"github.com/vibast-solutions/ms-go-filedrop/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	msgInvalidUpload = "Invalid request"
	msgUploadFailed  = "failed to store file"
	msgFileNotFound  = "File not found."
	msgFileExpired   = "This file has expired."
	msgEnterCode     = "Enter the 6 digit code."
)

type TransferController struct {
	transfers service.TransferService
}

func NewTransferController(transfers service.TransferService) *TransferController {
	return &TransferController{transfers: transfers}
}

func (c *TransferController) Index(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "index", newPage(ctx, "Home"))
}

func (c *TransferController) UploadPage(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "upload", newPage(ctx, "Upload"))
}

// DownloadPage shows the code form, or forwards a submitted code to the
// download endpoint.
func (c *TransferController) DownloadPage(ctx echo.Context) error {
	page := newPage(ctx, "Download")

	code := strings.TrimSpace(ctx.QueryParam("code"))
	if code == "" {
		return ctx.Render(http.StatusOK, "download", page)
	}
	if !service.IsValidCode(code) {
		page.Form = map[string]string{"code": code}
		page.Errors = types.FieldErrors{"code": {msgEnterCode}}
		return ctx.Render(http.StatusOK, "download", page)
	}
	return ctx.Redirect(http.StatusFound, "/download/"+code+"/")
}

func (c *TransferController) Upload(ctx echo.Context) error {
	req, err := types.NewUploadRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind upload request")
		return ctx.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(msgInvalidUpload))
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Upload validation failed: no file")
		return ctx.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(msgInvalidUpload))
	}

	file, err := req.File.Open()
	if err != nil {
		logrus.WithError(err).Error("Failed to open uploaded file")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(msgUploadFailed))
	}
	defer file.Close()

	logrus.WithFields(logrus.Fields{
		"filename": req.File.Filename,
		"size":     req.File.Size,
	}).Info("Upload request received")

	result, err := c.transfers.Upload(ctx.Request().Context(), service.UploadInput{
		Name:    req.File.Filename,
		Size:    req.File.Size,
		Content: file,
	})
	if err != nil {
		if errors.Is(err, service.ErrBadRequest) {
			logrus.Debug("Upload rejected: empty content")
			return ctx.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(msgInvalidUpload))
		}
		logrus.WithError(err).WithField("filename", req.File.Filename).Error("Upload failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(msgUploadFailed))
	}

	logrus.WithFields(logrus.Fields{
		"filename":   result.Filename,
		"size":       result.Size,
		"expires_at": result.ExpiresAt,
	}).Info("File uploaded")

	return ctx.JSON(http.StatusOK, httpdto.UploadResponse{
		Success:   true,
		Code:      result.Code,
		Filename:  result.Filename,
		ExpiresAt: httpdto.ISOTime(result.ExpiresAt),
	})
}

func (c *TransferController) Download(ctx echo.Context) error {
	req, err := types.NewDownloadRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind download request")
		return ctx.String(http.StatusNotFound, msgFileNotFound)
	}

	result, err := c.transfers.Download(ctx.Request().Context(), req.Code)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			logrus.Debug("Download failed: unknown code")
			return ctx.String(http.StatusNotFound, msgFileNotFound)
		}
		if errors.Is(err, service.ErrGone) {
			logrus.Warn("Download failed: transfer expired")
			return ctx.String(http.StatusGone, msgFileExpired)
		}
		logrus.WithError(err).Error("Download failed")
		return echo.ErrInternalServerError
	}
	defer result.Content.Close()

	header := ctx.Response().Header()
	header.Set(echo.HeaderContentDisposition, contentDisposition(result.Name))
	header.Set(echo.HeaderXContentTypeOptions, "nosniff")
	// Every BlobStore rejects a Put whose body length differs from the declared
	// size, so the recorded size is the length of the stored content.
	if result.Size >= 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(result.Size, 10))
	}

	logrus.WithFields(logrus.Fields{
		"filename": result.Name,
		"size":     result.Size,
	}).Info("File downloaded")

	return ctx.Stream(http.StatusOK, contentType(result.Name), result.Content)
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return echo.MIMEOctetStream
}

// contentDisposition always sends a quoted ASCII filename and adds the RFC
// 5987 form when the name has characters outside it.
func contentDisposition(name string) string {
	var fallback strings.Builder
	plain := true
	for _, r := range name {
		switch {
		case r == '"' || r == '\\':
			fallback.WriteByte('\\')
			fallback.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			plain = false
		case r > 0x7e:
			fallback.WriteByte('_')
			plain = false
		default:
			fallback.WriteRune(r)
		}
	}

	value := `attachment; filename="` + fallback.String() + `"`
	if !plain {
		value += "; filename*=UTF-8''" + encodeExtValue(name)
	}
	return value
}

func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isAttrChar(ch) {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}
	return b.String()
}

func isAttrChar(ch byte) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", ch) >= 0
}
