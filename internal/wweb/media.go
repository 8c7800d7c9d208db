package wweb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MediaKind is the closed set of payload families the platform accepts.
type MediaKind int

const (
	MediaDocument MediaKind = iota
	MediaImage
	MediaVideo
	MediaAudio
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	default:
		return "document"
	}
}

// Artifact is a resolved, classified media attachment.
type Artifact struct {
	Kind        MediaKind
	Data        []byte
	ContentType string
	FileName    string
}

// Resolver fetches media references (URL or local path) and classifies them.
type Resolver struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

type ResolverConfig struct {
	MaxSizeBytes int64
	Timeout      time.Duration
	Logger       *slog.Logger
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = 32 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Resolver{
		client:   newMediaClient(cfg.Timeout),
		maxBytes: cfg.MaxSizeBytes,
		logger:   cfg.Logger,
	}
}

// newMediaClient returns a pooled HTTP client for attachment downloads.
func newMediaClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Resolve fetches the referenced media and classifies it into an Artifact.
// A reference that cannot be fetched fails the whole operation.
func (r *Resolver) Resolve(ctx context.Context, ref string) (Artifact, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return r.resolveURL(ctx, ref)
	}
	return r.resolveFile(ref)
}

func (r *Resolver) resolveURL(ctx context.Context, rawURL string) (Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrMediaFetch, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrMediaFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Artifact{}, fmt.Errorf("%w: HTTP %d from %s", ErrMediaFetch, resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrMediaFetch, err)
	}
	if int64(len(data)) > r.maxBytes {
		return Artifact{}, fmt.Errorf("%w: attachment exceeds %d bytes", ErrMediaFetch, r.maxBytes)
	}

	contentType := baseContentType(resp.Header.Get("Content-Type"))
	return Classify(data, contentType, fileNameFromURL(rawURL)), nil
}

func (r *Resolver) resolveFile(path string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrMediaFetch, err)
	}
	if info.Size() > r.maxBytes {
		return Artifact{}, fmt.Errorf("%w: attachment exceeds %d bytes", ErrMediaFetch, r.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrMediaFetch, err)
	}

	contentType := baseContentType(mime.TypeByExtension(filepath.Ext(path)))
	return Classify(data, contentType, filepath.Base(path)), nil
}

// Classify maps a content type onto the closed media variant. It is a pure
// function of its inputs: anything without a recognizable type family falls
// back to a document with default filename and mimetype.
func Classify(data []byte, contentType, fileName string) Artifact {
	switch {
	case strings.HasPrefix(contentType, "audio/"):
		// The platform requires explicit opus codec signaling for generic
		// ogg audio to play as a push-to-talk voice note.
		if contentType == "audio/ogg" {
			contentType = "audio/ogg; codecs=opus"
		}
		return Artifact{Kind: MediaAudio, Data: data, ContentType: contentType, FileName: fileName}
	case strings.HasPrefix(contentType, "video/"):
		return Artifact{Kind: MediaVideo, Data: data, ContentType: contentType, FileName: fileName}
	case strings.HasPrefix(contentType, "image/"):
		return Artifact{Kind: MediaImage, Data: data, ContentType: contentType, FileName: fileName}
	default:
		if fileName == "" {
			fileName = "file"
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return Artifact{Kind: MediaDocument, Data: data, ContentType: contentType, FileName: fileName}
	}
}

// baseContentType strips parameters: "audio/ogg; rate=16000" -> "audio/ogg".
func baseContentType(header string) string {
	if header == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(header); err == nil {
		return mt
	}
	return strings.TrimSpace(strings.Split(header, ";")[0])
}

func fileNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := filepath.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
