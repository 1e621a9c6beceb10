package types

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestUploadRequestFromMultipart(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "report.pdf")
	if err != nil {
		t.Fatalf("create form file failed: %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.7"))
	_ = w.Close()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	ctx := e.NewContext(req, httptest.NewRecorder())

	body, err := NewUploadRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if err := body.Validate(); err != nil {
		t.Fatalf("expected valid upload, got %v", err)
	}
	if body.File.Filename != "report.pdf" || body.File.Size != 8 {
		t.Fatalf("unexpected file header: %s %d", body.File.Filename, body.File.Size)
	}
}

func TestUploadRequestMissingFile(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("a=b"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	ctx := e.NewContext(req, httptest.NewRecorder())

	body, err := NewUploadRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no bind error, got %v", err)
	}
	if !errors.Is(body.Validate(), ErrMissingFile) {
		t.Fatalf("expected ErrMissingFile")
	}
}

func TestDownloadRequest(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/download/123456", nil)
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.SetParamNames("code")
	ctx.SetParamValues("123456")

	body, err := NewDownloadRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if body.Code != "123456" {
		t.Fatalf("expected code 123456, got %q", body.Code)
	}
}
