// Package minioproxy implements rpc.StorageRpc against a real S3-compatible
// storage cluster through github.com/minio/minio-go/v7. Every gateway key
// maps to one object in a single fixed bucket; ObjectMetadata rides as S3
// user metadata headers, since the cluster itself has no notion of chunk
// trees.
package minioproxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/objectgw/gateway/internal/digest"
	"github.com/objectgw/gateway/internal/gwerr"
	"github.com/objectgw/gateway/internal/rpc"
)

const (
	metaChecksum = "Checksum"
	metaDSize    = "Dsize"
	metaCNumber  = "Cnumber"
	metaDel      = "Del"
)

// Store is a StorageRpc backend backed by a MinIO (or any S3-compatible)
// cluster.
type Store struct {
	client *minio.Client
	bucket string
}

// Config carries the connection parameters for a cluster-backed Store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// New dials the cluster described by cfg and ensures its target bucket
// exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, gwerr.Internal("minioproxy.New", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, gwerr.Internal("minioproxy.New", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, gwerr.Internal("minioproxy.New", err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return gwerr.Timeout(op, err)
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey", "NoSuchBucket":
			return gwerr.NotFound(op, err)
		}
	}

	return gwerr.Internal(op, err)
}

func metaFromInfo(info minio.ObjectInfo) (rpc.ObjectMetadata, error) {
	meta := rpc.ObjectMetadata{
		DSize:     info.Size,
		Timestamp: info.LastModified,
	}

	if v := info.UserMetadata[metaCNumber]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return rpc.ObjectMetadata{}, gwerr.Internal("minioproxy.metaFromInfo", err)
		}
		meta.CNumber = n
	}

	if v := info.UserMetadata[metaDSize]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return rpc.ObjectMetadata{}, gwerr.Internal("minioproxy.metaFromInfo", err)
		}
		meta.DSize = n
	}

	meta.Del = info.UserMetadata[metaDel] == "1"

	if v := info.UserMetadata[metaChecksum]; v != "" {
		checksum, err := parseChecksum(v)
		if err != nil {
			return rpc.ObjectMetadata{}, gwerr.Internal("minioproxy.metaFromInfo", err)
		}
		meta.Checksum = checksum
	}

	return meta, nil
}

func parseChecksum(hexStr string) ([]byte, error) {
	out := make([]byte, len(hexStr)/2)
	for i := range out {
		_, err := fmt.Sscanf(hexStr[i*2:i*2+2], "%02x", &out[i])
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func checksumHex(checksum []byte) string {
	return fmt.Sprintf("%x", checksum)
}

// Get implements rpc.StorageRpc.
func (s *Store) Get(ctx context.Context, key string) (rpc.ObjectMetadata, []byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return rpc.ObjectMetadata{}, nil, mapErr("minioproxy.Get", err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return rpc.ObjectMetadata{}, nil, mapErr("minioproxy.Get", err)
	}

	meta, err := metaFromInfo(info)
	if err != nil {
		return rpc.ObjectMetadata{}, nil, err
	}

	if meta.CNumber > 0 {
		return meta, nil, nil
	}

	body, err := io.ReadAll(obj)
	if err != nil {
		return rpc.ObjectMetadata{}, nil, gwerr.Internal("minioproxy.Get", err)
	}

	return meta, body, nil
}

// GetWithETagHint implements rpc.StorageRpc using SetMatchETagExcept: the
// cluster itself reports the match, sparing us a body fetch.
func (s *Store) GetWithETagHint(ctx context.Context, key string, etagHint []byte) (rpc.ObjectMetadata, []byte, bool, error) {
	opts := minio.GetObjectOptions{}
	if len(etagHint) > 0 {
		if err := opts.SetMatchETagExcept(checksumHex(etagHint)); err != nil {
			return rpc.ObjectMetadata{}, nil, false, gwerr.Internal("minioproxy.GetWithETagHint", err)
		}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return rpc.ObjectMetadata{}, nil, false, mapErr("minioproxy.GetWithETagHint", err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "304" {
			return rpc.ObjectMetadata{}, nil, true, nil
		}
		return rpc.ObjectMetadata{}, nil, false, mapErr("minioproxy.GetWithETagHint", err)
	}

	meta, err := metaFromInfo(info)
	if err != nil {
		return rpc.ObjectMetadata{}, nil, false, err
	}

	if meta.CNumber > 0 {
		return meta, nil, false, nil
	}

	body, err := io.ReadAll(obj)
	if err != nil {
		return rpc.ObjectMetadata{}, nil, false, gwerr.Internal("minioproxy.GetWithETagHint", err)
	}

	return meta, body, false, nil
}

// GetRange implements rpc.StorageRpc.
func (s *Store) GetRange(ctx context.Context, key string, start, end int64) (rpc.ObjectMetadata, []byte, error) {
	if start < 0 || end < start {
		return rpc.ObjectMetadata{}, nil, gwerr.BadRange("minioproxy.GetRange", nil)
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(start, end); err != nil {
		return rpc.ObjectMetadata{}, nil, gwerr.BadRange("minioproxy.GetRange", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return rpc.ObjectMetadata{}, nil, mapErr("minioproxy.GetRange", err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return rpc.ObjectMetadata{}, nil, mapErr("minioproxy.GetRange", err)
	}

	meta, err := metaFromInfo(info)
	if err != nil {
		return rpc.ObjectMetadata{}, nil, err
	}

	body, err := io.ReadAll(obj)
	if err != nil {
		return rpc.ObjectMetadata{}, nil, gwerr.Internal("minioproxy.GetRange", err)
	}

	return meta, body, nil
}

// Head implements rpc.StorageRpc.
func (s *Store) Head(ctx context.Context, key string) (rpc.ObjectMetadata, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return rpc.ObjectMetadata{}, mapErr("minioproxy.Head", err)
	}
	return metaFromInfo(info)
}

// Put implements rpc.StorageRpc.
func (s *Store) Put(ctx context.Context, key string, body []byte, size int64, opts rpc.PutOptions) ([]byte, error) {
	userMeta := map[string]string{}

	var checksum []byte
	if opts.Manifest {
		checksum = opts.Digest
		userMeta[metaCNumber] = strconv.Itoa(opts.TotalChunks)
		userMeta[metaDSize] = strconv.FormatInt(size, 10)
		userMeta[metaChecksum] = checksumHex(checksum)

		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{
			UserMetadata: userMeta,
			ContentType:  "application/octet-stream",
		})
		if err != nil {
			return nil, mapErr("minioproxy.Put", err)
		}
		return checksum, nil
	}

	sum := digest.Sum(body)
	checksum = sum[:]
	userMeta[metaCNumber] = "0"
	userMeta[metaDSize] = strconv.FormatInt(size, 10)
	userMeta[metaChecksum] = checksumHex(checksum)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), size, minio.PutObjectOptions{
		UserMetadata: userMeta,
		ContentType:  "application/octet-stream",
	})
	if err != nil {
		return nil, mapErr("minioproxy.Put", err)
	}

	return checksum, nil
}

// Delete implements rpc.StorageRpc. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil
		}
		return mapErr("minioproxy.Delete", err)
	}
	return nil
}
