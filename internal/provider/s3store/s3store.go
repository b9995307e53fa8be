// Package s3store implements provider.DataProvider over an S3 bucket.
// Folders are key prefixes ending in "/" and files are objects.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"cms-browser/internal/infra/logx"
	"cms-browser/internal/provider"
	"cms-browser/internal/store"
)

// API is the subset of the S3 client the provider uses.
type API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ClientConfig holds the connection settings for the bucket.
type ClientConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewClient builds an S3 client. A custom endpoint switches to path style
// addressing so S3 compatible servers work.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
		logx.RegisterSecret(cfg.SecretKey)
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Provider lists and uploads assets stored under a bucket.
type Provider struct {
	api    API
	bucket string
	cfg    provider.Config
	store  store.Store
	now    func() time.Time
}

var _ provider.DataProvider = (*Provider)(nil)

func New(api API, bucket string, cfg provider.Config, st store.Store) *Provider {
	return &Provider{api: api, bucket: bucket, cfg: cfg, store: st, now: time.Now}
}

func (p *Provider) RootHierarchyItem() provider.Item { return p.cfg.RootItem() }

func (p *Provider) UploadOptions() provider.UploadOptions {
	return provider.UploadOptions{
		MaxFileSizeInBytes: p.cfg.UploadMaxFileSizeInBytes,
		MimeTypesToAccept:  p.cfg.UploadMimeTypesToAccept,
	}
}

// GetFolderContents lists one prefix level. The bucket is always read
// fresh, so noCache and trail are not needed: the trail follows from the prefix.
func (p *Provider) GetFolderContents(ctx context.Context, _ string, folder provider.Item, _ bool, _ []provider.Item) (provider.BrowseResult, error) {
	prefix := folder.ID
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var items []provider.Item
	var token *string
	for {
		out, err := p.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return provider.BrowseResult{}, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, cp := range out.CommonPrefixes {
			pfx := aws.ToString(cp.Prefix)
			items = append(items, provider.Item{ID: pfx, Label: baseName(pfx), Type: provider.TypeFolder})
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				// folder marker
				continue
			}
			it := provider.Item{ID: key, Label: baseName(key), Type: provider.TypeFile}
			if obj.Size != nil {
				it.Metadata = map[string]any{"size": *obj.Size}
			}
			items = append(items, it)
		}
		if token == nil && prefix != "" && len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
			return provider.BrowseResult{}, &provider.StatusError{Op: "list " + prefix, Status: http.StatusNotFound, Err: provider.ErrNotFound}
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	logx.Debugw("s3 list", zap.String("bucket", p.bucket), zap.String("prefix", prefix), zap.Int("items", len(items)))
	return provider.BrowseResult{
		Items:          provider.Filter(items, p.cfg.ResultTypes),
		HierarchyItems: p.trail(prefix),
	}, nil
}

func (p *Provider) trail(prefix string) []provider.Item {
	out := []provider.Item{p.cfg.RootItem()}
	acc := ""
	for _, seg := range strings.Split(strings.TrimSuffix(prefix, "/"), "/") {
		if seg == "" {
			continue
		}
		acc += seg + "/"
		out = append(out, provider.Item{ID: acc, Label: seg, Type: provider.TypeFolder})
	}
	return out
}

// Upload stores the first file under folderID.
func (p *Provider) Upload(ctx context.Context, folderID string, files []provider.File) (provider.Item, error) {
	if !p.cfg.CanUpload() {
		return provider.Item{}, fmt.Errorf("%s: %w", p.cfg.Name, provider.ErrUploadUnsupported)
	}
	if len(files) == 0 || files[0].Body == nil {
		return provider.Item{}, errors.New("upload: no file body")
	}
	f := files[0]
	prefix := folderID
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	key := prefix + path.Base(f.Name)

	in := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   f.Body,
	}
	if f.ContentType != "" {
		in.ContentType = aws.String(f.ContentType)
	}
	if f.Size > 0 {
		in.ContentLength = aws.Int64(f.Size)
	}
	start := p.now()
	if _, err := p.api.PutObject(ctx, in); err != nil {
		return provider.Item{}, fmt.Errorf("%w: put %s: %w", provider.ErrUploadServer, key, err)
	}
	logx.Infow("s3 upload", zap.String("key", key), zap.Int64("size", f.Size), zap.Duration("took", p.now().Sub(start)))
	return provider.Item{ID: key, Label: path.Base(key), Type: provider.TypeFile}, nil
}

func (p *Provider) LastOpenedState() (provider.LastOpenedState, bool) {
	if p.store == nil {
		return provider.LastOpenedState{}, false
	}
	st, ok, err := p.store.Load(p.cfg.Name)
	if err != nil {
		logx.Warnf("last opened state %s: %v", p.cfg.Name, err)
		return provider.LastOpenedState{}, false
	}
	return st, ok
}

func (p *Provider) StoreLastOpenedState(hierarchy []provider.Item, selected *provider.Item) error {
	if p.store == nil {
		return nil
	}
	return p.store.Save(p.cfg.Name, provider.LastOpenedState{HierarchyItems: hierarchy, SelectedItem: selected})
}

func baseName(key string) string {
	return path.Base(strings.TrimSuffix(key, "/"))
}
