// Package s3backup copies the content of a kvfile.Store to and from
// S3-compatible object storage (AWS S3, Cloudflare R2, Backblaze B2, minio).
package s3backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kjk/kvfile"
	"github.com/kjk/kvfile/log"
	"github.com/kjk/kvfile/u"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
	// use http instead of https, for local minio servers
	Insecure     bool
	RequestTrace io.Writer
}

type Client struct {
	Client *minio.Client
	Bucket string
}

func validateConfig(c *Config) error {
	if c == nil {
		return errors.New("must provide config")
	}
	var missing []string
	if c.Access == "" {
		missing = append(missing, "Access")
	}
	if c.Secret == "" {
		missing = append(missing, "Secret")
	}
	if c.Bucket == "" {
		missing = append(missing, "Bucket")
	}
	if c.Endpoint == "" {
		missing = append(missing, "Endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing config fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// New creates a client and checks that the bucket exists
func New(ctx context.Context, config *Config) (*Client, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	c := config
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	if c.RequestTrace != nil {
		mc.TraceOn(c.RequestTrace)
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	return &Client{
		Client: mc,
		Bucket: c.Bucket,
	}, nil
}

// Upload stores brotli-compressed content of s (as written to its
// backing file) under remotePath
func (c *Client) Upload(ctx context.Context, s *kvfile.Store, remotePath string) (minio.UploadInfo, error) {
	timeStart := time.Now()
	d, err := s.ExportJSON()
	if err != nil {
		return minio.UploadInfo{}, err
	}
	compressed, err := u.CompressData(d, u.CompressionBrotli)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	opts := minio.PutObjectOptions{
		ContentType:     "application/json",
		ContentEncoding: "br",
	}
	r := bytes.NewReader(compressed)
	info, err := c.Client.PutObject(ctx, c.Bucket, remotePath, r, int64(len(compressed)), opts)
	if err != nil {
		return info, fmt.Errorf("upload of '%s' to '%s' failed: %w", s.Path(), remotePath, err)
	}
	log.EventWithDuration("s3backup.upload", time.Since(timeStart), "remote", remotePath, "size", len(compressed))
	return info, nil
}

// Download replaces the whole content of s with a backup
// previously stored by Upload()
func (c *Client) Download(ctx context.Context, s *kvfile.Store, remotePath string) error {
	timeStart := time.Now()
	obj, err := c.Client.GetObject(ctx, c.Bucket, remotePath, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()
	compressed, err := io.ReadAll(obj)
	if err != nil {
		return fmt.Errorf("download of '%s' failed: %w", remotePath, err)
	}
	d, err := u.DecompressData(compressed, u.CompressionBrotli)
	if err != nil {
		return fmt.Errorf("decompressing '%s' failed: %w", remotePath, err)
	}
	if err = s.ImportJSON(d); err != nil {
		return err
	}
	log.EventWithDuration("s3backup.download", time.Since(timeStart), "remote", remotePath, "size", len(compressed))
	return nil
}

func (c *Client) Exists(ctx context.Context, remotePath string) bool {
	_, err := c.Client.StatObject(ctx, c.Bucket, remotePath, minio.StatObjectOptions{})
	return err == nil
}

func (c *Client) Remove(ctx context.Context, remotePath string) error {
	return c.Client.RemoveObject(ctx, c.Bucket, remotePath, minio.RemoveObjectOptions{})
}
