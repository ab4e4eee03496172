package attachment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"
)

// DropboxOptions configures the Dropbox uploader.
type DropboxOptions struct {
	AccessToken string
	Folder      string
	ContentURL  string
	APIURL      string
	Timeout     time.Duration
}

// Dropbox uploads receipts into a folder and shares them publicly.
type Dropbox struct {
	token      string
	folder     string
	contentURL string
	apiURL     string
	http       *http.Client
	logger     *slog.Logger
}

// NewDropbox validates opts and returns an uploader.
func NewDropbox(log *slog.Logger, opts DropboxOptions) (*Dropbox, error) {
	if strings.TrimSpace(opts.AccessToken) == "" {
		return nil, errors.New("dropbox: access token is required")
	}
	if strings.TrimSpace(opts.Folder) == "" {
		opts.Folder = "/receipts"
	}
	if opts.ContentURL == "" {
		opts.ContentURL = "https://content.dropboxapi.com/2"
	}
	if opts.APIURL == "" {
		opts.APIURL = "https://api.dropboxapi.com/2"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dropbox{
		token:      opts.AccessToken,
		folder:     "/" + strings.Trim(opts.Folder, "/"),
		contentURL: strings.TrimRight(opts.ContentURL, "/"),
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		http:       &http.Client{Timeout: opts.Timeout},
		logger:     log.With(slog.String("storage", "dropbox")),
	}, nil
}

type dropboxLink struct {
	URL string `json:"url"`
}

// Upload stores data under the receipts folder and returns a direct-download link.
func (d *Dropbox) Upload(ctx context.Context, data []byte, name, _ string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}
	target := path.Join(d.folder, path.Base("/"+name))
	arg, err := json.Marshal(map[string]any{"path": target, "mode": "add", "autorename": true, "mute": false})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.contentURL+"/files/upload", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dropbox-API-Arg", string(arg))
	var uploaded struct {
		PathDisplay string `json:"path_display"`
	}
	if status, err := d.do(req, &uploaded); err != nil {
		return "", fmt.Errorf("dropbox upload: %w", err)
	} else if status != http.StatusOK {
		return "", fmt.Errorf("dropbox upload: status %d", status)
	}
	if uploaded.PathDisplay != "" {
		target = uploaded.PathDisplay
	}

	link, err := d.share(ctx, target)
	if err != nil {
		return "", err
	}
	d.logger.Info("receipt uploaded", slog.String("path", target))
	return DirectLink(link), nil
}

func (d *Dropbox) share(ctx context.Context, target string) (string, error) {
	var created dropboxLink
	status, err := d.postJSON(ctx, "/sharing/create_shared_link_with_settings", map[string]any{
		"path":     target,
		"settings": map[string]any{"requested_visibility": "public"},
	}, &created)
	if err != nil {
		return "", fmt.Errorf("dropbox share: %w", err)
	}
	switch status {
	case http.StatusOK:
		if created.URL != "" {
			return created.URL, nil
		}
	case http.StatusConflict:
		var listed struct {
			Links []dropboxLink `json:"links"`
		}
		status, err := d.postJSON(ctx, "/sharing/list_shared_links", map[string]any{"path": target}, &listed)
		if err != nil {
			return "", fmt.Errorf("dropbox list links: %w", err)
		}
		if status == http.StatusOK && len(listed.Links) > 0 && listed.Links[0].URL != "" {
			return listed.Links[0].URL, nil
		}
	}
	return "", fmt.Errorf("dropbox share: no public link for %s (status %d)", target, status)
}

func (d *Dropbox) postJSON(ctx context.Context, endpoint string, body any, out any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL+endpoint, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Content-Type", "application/json")
	return d.do(req, out)
}

// do executes req and decodes a 200 body into out.
func (d *Dropbox) do(req *http.Request, out any) (int, error) {
	resp, err := d.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}

// DirectLink turns a Dropbox share link into a direct-download URL.
func DirectLink(shared string) string {
	link := strings.Replace(shared, "www.dropbox.com", "dl.dropboxusercontent.com", 1)
	return strings.Replace(link, "?dl=0", "", 1)
}
