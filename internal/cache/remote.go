package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"qik/internal/qikerr"
)

// Remote is an S3-compatible cache backend: write-through to an
// underlying Local mirror, downloading on a local miss before serving.
// Grounded on original_source/qik/s3/cache.py's S3Cache (on_miss
// downloads, post_set uploads); minio-go replaces boto3 as the S3 client
// since it's the S3-compatible SDK the example pack actually imports.
type Remote struct {
	Local  *Local
	Client *minio.Client
	Bucket string
	Prefix string
}

// RemoteConfig carries the connection parameters for an S3-compatible
// endpoint, mirroring the original's Client struct fields.
type RemoteConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UseSSL          bool
	Bucket          string
	Prefix          string
}

func NewRemote(local *Local, cfg RemoteConfig) (*Remote, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, qikerr.Wrap(qikerr.RemoteCacheUnavailable, cfg.Endpoint, err)
	}
	return &Remote{Local: local, Client: client, Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

func (c *Remote) remotePrefix(slug, fingerprint string) string {
	return filepath.ToSlash(filepath.Join(c.Prefix, slug, fingerprint))
}

// Has probes the local mirror only — remaining a pure, non-mutating check
// (spec §9's cache-status purity resolution) rather than triggering a
// remote download as a side effect.
func (c *Remote) Has(ctx context.Context, slug, fingerprint string) (bool, error) {
	return c.Local.Has(ctx, slug, fingerprint)
}

func (c *Remote) Get(ctx context.Context, slug, fingerprint string) (*Entry, error) {
	has, err := c.Local.Has(ctx, slug, fingerprint)
	if err != nil {
		return nil, err
	}
	if !has {
		if err := c.downloadDir(ctx, slug, fingerprint); err != nil {
			return nil, err
		}
	}
	return c.Local.Get(ctx, slug, fingerprint)
}

func (c *Remote) Put(ctx context.Context, entry *Entry) error {
	if err := c.Local.Put(ctx, entry); err != nil {
		return err
	}
	return c.uploadDir(ctx, entry.Slug, entry.Fingerprint)
}

func (c *Remote) downloadDir(ctx context.Context, slug, fingerprint string) error {
	prefix := c.remotePrefix(slug, fingerprint)
	objects := c.Client.ListObjects(ctx, c.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for obj := range objects {
		if obj.Err != nil {
			return qikerr.Wrap(qikerr.RemoteCacheUnavailable, fingerprint, obj.Err)
		}
		rel, err := filepath.Rel(prefix, obj.Key)
		if err != nil {
			return qikerr.Wrap(qikerr.RemoteCacheUnavailable, fingerprint, err)
		}
		target := filepath.Join(c.Local.entryDir(slug, fingerprint), filepath.FromSlash(rel))
		if err := c.Client.FGetObject(ctx, c.Bucket, obj.Key, target, minio.GetObjectOptions{}); err != nil {
			return qikerr.Wrap(qikerr.RemoteCacheUnavailable, fingerprint, err)
		}
	}
	return nil
}

func (c *Remote) uploadDir(ctx context.Context, slug, fingerprint string) error {
	entry, err := c.Local.Get(ctx, slug, fingerprint)
	if err != nil || entry == nil {
		return err
	}
	prefix := c.remotePrefix(slug, fingerprint)

	data, err := entryMetadataJSON(entry)
	if err != nil {
		return err
	}
	if err := c.putObject(ctx, prefix+"/metadata.json", data); err != nil {
		return err
	}
	for i, a := range entry.Artifacts {
		key := filepath.ToSlash(filepath.Join(prefix, "artifacts", indexBlobName(i)))
		if err := c.putObject(ctx, key, a.Content); err != nil {
			return err
		}
	}
	return nil
}

func (c *Remote) putObject(ctx context.Context, key string, data []byte) error {
	_, err := c.Client.PutObject(ctx, c.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return qikerr.Wrap(qikerr.RemoteCacheUnavailable, key, err)
	}
	return nil
}

func entryMetadataJSON(entry *Entry) ([]byte, error) {
	stripped := *entry
	stripped.Artifacts = make([]Artifact, len(entry.Artifacts))
	for i, a := range entry.Artifacts {
		stripped.Artifacts[i] = Artifact{Path: a.Path}
	}
	return json.MarshalIndent(stripped, "", "  ")
}

func indexBlobName(i int) string {
	return strconv.Itoa(i) + ".blob"
}
