package attachment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDirectLink(t *testing.T) {
	t.Parallel()

	got := DirectLink("https://www.dropbox.com/s/abc/receipt.jpg?dl=0")
	if got != "https://dl.dropboxusercontent.com/s/abc/receipt.jpg" {
		t.Fatalf("unexpected link %s", got)
	}
}

func newDropboxForTest(t *testing.T, handler http.Handler) *Dropbox {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	d, err := NewDropbox(nil, DropboxOptions{AccessToken: "tok", ContentURL: srv.URL, APIURL: srv.URL})
	if err != nil {
		t.Fatalf("new dropbox: %v", err)
	}
	return d
}

func TestDropboxUploadShares(t *testing.T) {
	t.Parallel()

	var uploadedArg map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/files/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &uploadedArg)
		body, _ := io.ReadAll(r.Body)
		if string(body) != "data" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"path_display":"/receipts/r.jpg"}`))
	})
	mux.HandleFunc("/sharing/create_shared_link_with_settings", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"url":"https://www.dropbox.com/s/x/r.jpg?dl=0"}`))
	})
	d := newDropboxForTest(t, mux)

	url, err := d.Upload(context.Background(), []byte("data"), "r.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://dl.dropboxusercontent.com/s/x/r.jpg" {
		t.Fatalf("unexpected url %s", url)
	}
	if uploadedArg["path"] != "/receipts/r.jpg" || uploadedArg["autorename"] != true {
		t.Fatalf("unexpected upload arg %#v", uploadedArg)
	}
}

func TestDropboxUploadReusesExistingLink(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/files/upload", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/sharing/create_shared_link_with_settings", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	mux.HandleFunc("/sharing/list_shared_links", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"links":[{"url":"https://www.dropbox.com/s/old/r.jpg?dl=0"}]}`))
	})
	d := newDropboxForTest(t, mux)

	url, err := d.Upload(context.Background(), []byte("data"), "r.jpg", "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://dl.dropboxusercontent.com/s/old/r.jpg" {
		t.Fatalf("unexpected url %s", url)
	}
}

func TestDropboxUploadFailure(t *testing.T) {
	t.Parallel()

	d := newDropboxForTest(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	if _, err := d.Upload(context.Background(), []byte("data"), "r.jpg", ""); err == nil {
		t.Fatal("expected upload error")
	}
	if _, err := d.Upload(context.Background(), nil, "r.jpg", ""); err != ErrEmptyPayload {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}
