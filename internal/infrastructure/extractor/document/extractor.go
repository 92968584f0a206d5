package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/kirillkom/fin-extract/internal/core/domain"
	"github.com/kirillkom/fin-extract/internal/core/ports"
)

const (
	FormatCSV         = "csv"
	FormatText        = "text"
	FormatSpreadsheet = "spreadsheet"
	FormatPDF         = "pdf"
	FormatImage       = "image"

	// formatLegacySpreadsheet marks binary .xls workbooks, which have no decoder.
	formatLegacySpreadsheet = "xls"
)

const mediaTypeLegacyExcel = "application/vnd.ms-excel"

// oleSignature opens every OLE2 compound file, the container of .xls workbooks.
var oleSignature = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}

type Config struct {
	Timeout  time.Duration
	MaxBytes int64
	// LocalPrefix is the public URL prefix served from Storage; matching
	// sources are read directly instead of over HTTP.
	LocalPrefix string
}

// Extractor fetches a source document and turns it into plain text.
type Extractor struct {
	httpClient  *http.Client
	ocr         ports.OCREngine
	storage     ports.ObjectStorage
	localPrefix string
	maxBytes    int64
}

func New(ocr ports.OCREngine, storage ports.ObjectStorage, cfg Config) *Extractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &Extractor{
		httpClient:  &http.Client{Timeout: timeout},
		ocr:         ocr,
		storage:     storage,
		localPrefix: strings.TrimRight(cfg.LocalPrefix, "/"),
		maxBytes:    maxBytes,
	}
}

func (e *Extractor) Extract(ctx context.Context, sourceRef string) (domain.ExtractedText, error) {
	data, contentType, err := e.fetch(ctx, sourceRef)
	if err != nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrFetch, "fetch source", err)
	}
	if len(data) == 0 {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrFetch, "fetch source", errors.New("empty document"))
	}

	format, mediaType := detectFormat(contentType, sourceRef, data)
	var text string
	switch format {
	case formatLegacySpreadsheet:
		return domain.ExtractedText{}, domain.WrapError(domain.ErrFetch, "decode spreadsheet", errors.New("legacy .xls workbooks are not supported, save as .xlsx or .csv"))
	case FormatCSV, FormatText:
		text, err = decodeText(data, contentType)
	case FormatSpreadsheet:
		text, err = spreadsheetToCSV(data)
	case FormatPDF:
		text, err = pdfText(data)
	default:
		if e.ocr == nil {
			return domain.ExtractedText{}, domain.WrapError(domain.ErrFetch, "ocr", errors.New("no ocr engine configured"))
		}
		text, err = e.ocr.Recognize(ctx, data, mediaType)
		if err != nil {
			return domain.ExtractedText{}, fmt.Errorf("ocr image: %w", err)
		}
	}
	if err != nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrFetch, "decode "+format, err)
	}
	return domain.ExtractedText{Text: text, Format: format}, nil
}

func (e *Extractor) fetch(ctx context.Context, sourceRef string) ([]byte, string, error) {
	if key, ok := e.localKey(sourceRef); ok {
		rc, err := e.storage.Open(ctx, key)
		if err != nil {
			return nil, "", fmt.Errorf("open stored object: %w", err)
		}
		defer rc.Close()
		data, err := e.readLimited(rc)
		if err != nil {
			return nil, "", err
		}
		return data, mime.TypeByExtension(path.Ext(key)), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceRef, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get %s: %w", sourceRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("get %s: status %s", sourceRef, resp.Status)
	}
	data, err := e.readLimited(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (e *Extractor) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", e.maxBytes)
	}
	return data, nil
}

func (e *Extractor) localKey(sourceRef string) (string, bool) {
	if e.storage == nil || e.localPrefix == "" {
		return "", false
	}
	prefix := e.localPrefix + "/"
	if !strings.HasPrefix(sourceRef, prefix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(sourceRef, prefix))
	if err != nil || key == "" || strings.ContainsAny(key, "/?#") {
		return "", false
	}
	return key, true
}

// detectFormat picks the decoder from the declared content type, then the URL
// extension, then the bytes themselves. Anything unrecognized is treated as an image.
// application/vnd.ms-excel is also sent for CSV downloads, so it only settles
// the format once the extension and the bytes rule out text.
func detectFormat(contentType, sourceRef string, data []byte) (format, mediaType string) {
	mediaType, _, _ = mime.ParseMediaType(contentType)
	declaredExcel := mediaType == mediaTypeLegacyExcel
	if f := formatForMediaType(mediaType); f != "" {
		return f, mediaType
	}

	ext := ""
	if u, err := url.Parse(sourceRef); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	switch ext {
	case ".csv":
		return FormatCSV, "text/csv"
	case ".txt":
		return FormatText, "text/plain"
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatSpreadsheet, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".pdf":
		return FormatPDF, "application/pdf"
	case ".xls", ".xlt":
		return formatLegacySpreadsheet, mediaTypeLegacyExcel
	}

	if bytes.HasPrefix(data, oleSignature) {
		return formatLegacySpreadsheet, mediaTypeLegacyExcel
	}
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	f := formatForMediaType(sniffed)
	if declaredExcel {
		switch f {
		case FormatText:
			return FormatCSV, "text/csv"
		case FormatSpreadsheet:
			return f, sniffed
		}
		return formatLegacySpreadsheet, mediaTypeLegacyExcel
	}
	if f != "" && f != FormatText {
		return f, sniffed
	}
	if byExt := mime.TypeByExtension(ext); strings.HasPrefix(byExt, "image/") {
		return FormatImage, byExt
	}
	return FormatImage, sniffed
}

func formatForMediaType(mediaType string) string {
	switch {
	case mediaType == "text/csv", mediaType == "application/csv":
		return FormatCSV
	case mediaType == "text/plain":
		return FormatText
	case strings.Contains(mediaType, "spreadsheetml"):
		return FormatSpreadsheet
	// xlsx workbooks are zip archives and sniff as such.
	case mediaType == "application/zip", mediaType == "application/x-zip-compressed":
		return FormatSpreadsheet
	case mediaType == "application/pdf":
		return FormatPDF
	case strings.HasPrefix(mediaType, "image/"):
		return FormatImage
	default:
		return ""
	}
}
