package imports

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// 1枚あたりの上限
const maxImageBytes = 10 << 20

// HTTPFetcher は Image URL 列の画像を取得する。http / https / data URI に対応。
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxImageBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, raw string) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), "data:") {
		return decodeDataURI(raw, f.maxBytes)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("invalid image url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported image url scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", f.maxBytes)
	}
	return data, filenameFor(path.Base(u.Path), resp.Header.Get("Content-Type")), nil
}

// data:[<mediatype>][;base64],<data>
func decodeDataURI(raw string, limit int64) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data uri")
	}
	mediaType := meta
	isBase64 := false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		mediaType, isBase64 = m, true
	}

	var data []byte
	if isBase64 {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("invalid data uri: %w", err)
		}
		data = b
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("invalid data uri: %w", err)
		}
		data = []byte(s)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("image exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty data uri")
	}
	return data, filenameFor("", mediaType), nil
}

// 拡張子が無ければ Content-Type から補う
func filenameFor(base, contentType string) string {
	if base == "" || base == "/" || base == "." {
		base = "image"
	}
	if path.Ext(base) != "" {
		return base
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return base
	}
	switch mt {
	case "image/jpeg":
		return base + ".jpg"
	case "image/png":
		return base + ".png"
	case "image/gif":
		return base + ".gif"
	case "image/webp":
		return base + ".webp"
	}
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		return base + exts[0]
	}
	return base
}
