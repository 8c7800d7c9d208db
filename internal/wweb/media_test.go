package wweb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestClassify_ContentTypeFamilies(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		fileName    string
		wantKind    MediaKind
		wantType    string
		wantName    string
	}{
		{
			name:        "generic ogg becomes opus voice note",
			contentType: "audio/ogg",
			wantKind:    MediaAudio,
			wantType:    "audio/ogg; codecs=opus",
		},
		{
			name:        "other audio passes through",
			contentType: "audio/mpeg",
			wantKind:    MediaAudio,
			wantType:    "audio/mpeg",
		},
		{
			name:        "video",
			contentType: "video/mp4",
			wantKind:    MediaVideo,
			wantType:    "video/mp4",
		},
		{
			name:        "image",
			contentType: "image/png",
			fileName:    "pic.png",
			wantKind:    MediaImage,
			wantType:    "image/png",
			wantName:    "pic.png",
		},
		{
			name:        "pdf falls back to document",
			contentType: "application/pdf",
			fileName:    "doc.pdf",
			wantKind:    MediaDocument,
			wantType:    "application/pdf",
			wantName:    "doc.pdf",
		},
		{
			name:     "unknown type and name gets document defaults",
			wantKind: MediaDocument,
			wantType: "application/octet-stream",
			wantName: "file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art := Classify([]byte("data"), tt.contentType, tt.fileName)
			if art.Kind != tt.wantKind {
				t.Errorf("Kind: got %v, want %v", art.Kind, tt.wantKind)
			}
			if art.ContentType != tt.wantType {
				t.Errorf("ContentType: got %q, want %q", art.ContentType, tt.wantType)
			}
			if tt.wantName != "" && art.FileName != tt.wantName {
				t.Errorf("FileName: got %q, want %q", art.FileName, tt.wantName)
			}
		})
	}
}

func TestBuildPayload(t *testing.T) {
	if p := BuildPayload("hi", nil); p.Text != "hi" || p.Image != nil || p.Document != nil {
		t.Errorf("plain text payload: got %+v", p)
	}

	audio := Classify([]byte("a"), "audio/ogg", "")
	if p := BuildPayload("ignored", &audio); !p.PTT || p.Mimetype != "audio/ogg; codecs=opus" || p.Caption != "" {
		t.Errorf("voice note payload: got %+v", p)
	}

	image := Classify([]byte("i"), "image/png", "")
	if p := BuildPayload("caption here", &image); string(p.Image) != "i" || p.Caption != "caption here" || p.Mimetype != "image/png" {
		t.Errorf("image payload: got %+v", p)
	}

	video := Classify([]byte("v"), "video/mp4", "")
	if p := BuildPayload("vid", &video); string(p.Video) != "v" || p.Caption != "vid" {
		t.Errorf("video payload: got %+v", p)
	}

	doc := Classify([]byte("d"), "", "")
	if p := BuildPayload("see attached", &doc); p.FileName != "file" || p.Mimetype != "application/octet-stream" || p.Caption != "see attached" {
		t.Errorf("document payload: got %+v", p)
	}
}

func TestResolve_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	r := NewResolver(ResolverConfig{Logger: testLogger()})
	art, err := r.Resolve(context.Background(), srv.URL+"/photo.jpg")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if art.Kind != MediaImage {
		t.Errorf("Kind: got %v", art.Kind)
	}
	if art.ContentType != "image/jpeg" {
		t.Errorf("ContentType: got %q (parameters should be stripped)", art.ContentType)
	}
	if art.FileName != "photo.jpg" {
		t.Errorf("FileName: got %q", art.FileName)
	}
	if string(art.Data) != "jpeg-bytes" {
		t.Errorf("Data: got %q", art.Data)
	}
}

func TestResolve_HTTPErrorFailsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	r := NewResolver(ResolverConfig{Logger: testLogger()})
	if _, err := r.Resolve(context.Background(), srv.URL); !errors.Is(err, ErrMediaFetch) {
		t.Fatalf("expected ErrMediaFetch, got %v", err)
	}
}

func TestResolve_OversizeFailsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	r := NewResolver(ResolverConfig{MaxSizeBytes: 1024, Logger: testLogger()})
	if _, err := r.Resolve(context.Background(), srv.URL); !errors.Is(err, ErrMediaFetch) {
		t.Fatalf("expected ErrMediaFetch, got %v", err)
	}
}

func TestResolve_LocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(ResolverConfig{Logger: testLogger()})
	art, err := r.Resolve(context.Background(), path)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if art.Kind != MediaDocument {
		t.Errorf("Kind: got %v", art.Kind)
	}
	if art.FileName != "report.pdf" {
		t.Errorf("FileName: got %q", art.FileName)
	}
}

func TestResolve_MissingFileFailsFetch(t *testing.T) {
	r := NewResolver(ResolverConfig{Logger: testLogger()})
	if _, err := r.Resolve(context.Background(), "/no/such/file.bin"); !errors.Is(err, ErrMediaFetch) {
		t.Fatalf("expected ErrMediaFetch, got %v", err)
	}
}
