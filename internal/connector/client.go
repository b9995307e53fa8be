package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/google/uuid"

	"cms-browser/internal/infra/logx"
	"cms-browser/internal/provider"
)

const (
	defaultPageSize = 100
	maxBrowsePages  = 500
)

// Client talks to the CMS connector endpoints for browsing and uploading assets.
type Client struct {
	http    *http.Client
	base    string
	token   string
	metrics *Metrics
}

// New creates a client using the retrying, rate-limited transport tuned from the environment.
func New(base, token string) *Client {
	return NewWithOptions(base, token, DefaultTransportOptionsFromEnv())
}

// NewWithOptions creates a client with custom transport options (tests).
func NewWithOptions(base, token string, opts TransportOptions) *Client {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	logx.RegisterSecret(token)
	return &Client{
		http:    &http.Client{Transport: NewRetryingLimiterTransport(opts)},
		base:    strings.TrimRight(base, "/"),
		token:   token,
		metrics: opts.Metrics,
	}
}

// Metrics exposes the transport counters.
func (c *Client) Metrics() *Metrics { return c.metrics }

// ---------- Browse ----------

// BrowseRequest is the body of POST /browse. A nil FolderID browses the root.
type BrowseRequest struct {
	AssetTypes              []string            `json:"assetTypes"`
	ResultTypes             []provider.ItemType `json:"resultTypes"`
	FolderID                *string             `json:"folderId"`
	BrowseContextDocumentID *string             `json:"browseContextDocumentId"`
	HierarchyItems          []provider.Item     `json:"hierarchyItems,omitempty"`
	Query                   map[string]string   `json:"query,omitempty"`
	Limit                   int                 `json:"limit"`
	Offset                  int                 `json:"offset"`
}

// BrowseResponse is one page of folder contents.
type BrowseResponse struct {
	TotalItemCount int             `json:"totalItemCount"`
	Items          []provider.Item `json:"items"`
	HierarchyItems []provider.Item `json:"hierarchyItems,omitempty"`
}

// Browse fetches all pages of a folder. HierarchyItems of the first page
// are returned as-is; servers without jump-in-tree support leave it empty.
func (c *Client) Browse(ctx context.Context, req BrowseRequest) (BrowseResponse, error) {
	if req.Limit <= 0 {
		req.Limit = defaultPageSize
	}
	var out BrowseResponse
	seen := make(map[string]bool)
	for page := 0; page < maxBrowsePages; page++ {
		var payload BrowseResponse
		if err := c.postJSON(ctx, "browse", "/browse", req, &payload); err != nil {
			return BrowseResponse{}, err
		}
		if page == 0 {
			out.HierarchyItems = payload.HierarchyItems
		}
		out.TotalItemCount = payload.TotalItemCount

		fresh := 0
		for _, it := range payload.Items {
			if it.ID != "" {
				if seen[it.ID] {
					continue
				}
				seen[it.ID] = true
			}
			out.Items = append(out.Items, it)
			fresh++
		}

		// a server ignoring offset keeps sending the same page
		if fresh == 0 || len(payload.Items) < req.Limit || (payload.TotalItemCount > 0 && len(out.Items) >= payload.TotalItemCount) {
			break
		}
		req.Offset += req.Limit
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rc := &RetryCounters{}
	req = req.WithContext(WithRetryCounters(req.Context(), rc))

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()
	if rc.Total > 0 {
		logx.Infof("connector: %s needed %d retries (429=%d 5xx=%d net=%d)", op, rc.Total, rc.Status429, rc.Status5xx, rc.Net)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		se := &provider.StatusError{Op: op, Status: res.StatusCode}
		if s := strings.TrimSpace(string(msg)); s != "" {
			se.Err = errors.New(s)
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// ---------- Upload ----------

type uploadRequest struct {
	Type     string  `json:"type"`
	FolderID *string `json:"folderId"`
}

// Upload sends one file as multipart form data to POST /asset.
func (c *Client) Upload(ctx context.Context, assetType, folderID string, f provider.File) (provider.Item, error) {
	if f.Body == nil {
		return provider.Item{}, errors.New("upload: file has no body")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	meta := uploadRequest{Type: assetType}
	if folderID != "" {
		meta.FolderID = &folderID
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return provider.Item{}, fmt.Errorf("upload: encode request: %w", err)
	}
	if err := mw.WriteField("request", string(metaJSON)); err != nil {
		return provider.Item{}, fmt.Errorf("upload: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return provider.Item{}, fmt.Errorf("upload: %w", err)
	}
	n, err := io.Copy(part, f.Body)
	if err != nil {
		return provider.Item{}, fmt.Errorf("upload: read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return provider.Item{}, fmt.Errorf("upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/asset", &buf)
	if err != nil {
		return provider.Item{}, fmt.Errorf("upload: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var item provider.Item
	if err := c.do(req, "upload", &item); err != nil {
		return provider.Item{}, err
	}
	if item.Type == "" {
		item.Type = provider.TypeFile
	}
	if item.Label == "" {
		item.Label = f.Name
	}
	c.metrics.AddUploaded(n)
	return item, nil
}
