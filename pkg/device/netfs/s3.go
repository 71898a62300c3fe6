package netfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	derrors "github.com/marmos91/dittonet/pkg/errors"
)

// S3API is the subset of the S3 client used by s3:// sessions.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Client builds the S3 client on first use so a missing AWS setup only
// fails s3:// targets.
type s3Client struct {
	cfg S3Config

	mu     sync.Mutex
	client S3API
}

func (c *s3Client) get(ctx context.Context) (S3API, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.cfg.Region)}
	if c.cfg.AccessKeyID != "" && c.cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.cfg.AccessKeyID, c.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	c.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.cfg.Endpoint)
		}
		o.UsePathStyle = c.cfg.ForcePathStyle
	})
	return c.client, nil
}

// s3Proto serves s3://bucket/key targets. Objects are streamed with
// GetObject; writes are collected and stored with one PutObject on Close.
type s3Proto struct {
	client  *s3Client
	timeout time.Duration

	api    S3API
	bucket string
	key    string
	mode   Mode
	body   *stream
	cancel context.CancelFunc
	wbuf   bytes.Buffer
	dirty  bool
}

func newS3Proto(client *s3Client, timeout time.Duration) Factory {
	return func() Protocol { return &s3Proto{client: client, timeout: timeout} }
}

func objectKey(u *ParsedURL) (bucket, key string, err error) {
	if u.Host == "" {
		return "", "", derrors.BadRequest("s3.open", "missing bucket")
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func (p *s3Proto) Open(ctx context.Context, u *ParsedURL, mode Mode) error {
	bucket, key, err := objectKey(u)
	if err != nil {
		return err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return derrors.BadRequest("s3.open", "missing object key")
	}

	api, err := p.client.get(ctx)
	if err != nil {
		return derrors.Open("s3.open", err)
	}
	p.api, p.bucket, p.key, p.mode = api, bucket, key, mode

	if mode.Has(ModeWrite) && !mode.Has(ModeRead) {
		p.dirty = true
		return nil
	}
	return p.get(ctx, 0)
}

func (p *s3Proto) get(ctx context.Context, offset int64) error {
	session, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)

	in := &s3.GetObjectInput{Bucket: aws.String(p.bucket), Key: aws.String(p.key)}
	if offset > 0 {
		in.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	out, err := p.api.GetObject(session, in)
	stop()
	if err != nil {
		cancel()
		if isInvalidRange(err) {
			p.body = newStream(emptyBody{}, 0)
			return nil
		}
		return s3Error("s3.get", err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	p.body = newStream(out.Body, size)
	p.cancel = cancel
	return nil
}

func (p *s3Proto) Read(ctx context.Context, buf []byte) (int, error) {
	if p.body == nil {
		return 0, derrors.BadRequest("s3.read", "opened write-only")
	}
	return p.body.Read(ctx, buf)
}

func (p *s3Proto) Write(_ context.Context, buf []byte) (int, error) {
	if !p.mode.Has(ModeWrite) {
		return 0, derrors.BadRequest("s3.write", "opened read-only")
	}
	p.dirty = true
	return p.wbuf.Write(buf)
}

func (p *s3Proto) closeBody() {
	if p.body != nil {
		_ = p.body.Close()
		p.body = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *s3Proto) Close() error {
	p.closeBody()
	if !p.dirty || p.api == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	_, err := p.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key),
		Body:   bytes.NewReader(p.wbuf.Bytes()),
	})
	p.dirty = false
	p.wbuf.Reset()
	if err != nil {
		return s3Error("s3.put", err)
	}
	return nil
}

func (p *s3Proto) Available() int {
	if p.body == nil {
		return 0
	}
	return p.body.Available()
}

func (p *s3Proto) EOF() bool {
	return p.body != nil && p.body.EOF()
}

func (p *s3Proto) Seek(ctx context.Context, pos int64) error {
	if p.body == nil {
		return derrors.Unsupported("s3.seek")
	}
	p.closeBody()
	return p.get(ctx, pos)
}

// ReadDir lists one level below the URL path using "/" as delimiter.
func (p *s3Proto) ReadDir(ctx context.Context, u *ParsedURL) ([]DirEntry, error) {
	bucket, prefix, err := objectKey(u)
	if err != nil {
		return nil, err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	api, err := p.client.get(ctx)
	if err != nil {
		return nil, derrors.Open("s3.list", err)
	}

	var out []DirEntry
	paginator := s3.NewListObjectsV2Paginator(api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s3Error("s3.list", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			out = append(out, DirEntry{Name: name, IsDir: true})
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" {
				continue
			}
			out = append(out, DirEntry{Name: name, Size: aws.ToInt64(obj.Size), ModTime: aws.ToTime(obj.LastModified)})
		}
	}
	return out, nil
}

func (p *s3Proto) Remove(ctx context.Context, u *ParsedURL) error {
	bucket, key, err := objectKey(u)
	if err != nil {
		return err
	}
	api, err := p.client.get(ctx)
	if err != nil {
		return derrors.Open("s3.delete", err)
	}
	_, err = api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	return s3Error("s3.delete", err)
}

// Rename copies the object and deletes the source.
func (p *s3Proto) Rename(ctx context.Context, from, to *ParsedURL) error {
	bucket, src, err := objectKey(from)
	if err != nil {
		return err
	}
	_, dst, err := objectKey(to)
	if err != nil {
		return err
	}
	api, err := p.client.get(ctx)
	if err != nil {
		return derrors.Open("s3.rename", err)
	}

	source := (&url.URL{Path: bucket + "/" + src}).EscapedPath()
	if _, err := api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(source),
	}); err != nil {
		return s3Error("s3.rename", err)
	}
	_, err = api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(src)})
	return s3Error("s3.rename", err)
}

// Mkdir creates the zero-byte "dir/" marker object.
func (p *s3Proto) Mkdir(ctx context.Context, u *ParsedURL) error {
	bucket, key, err := objectKey(u)
	if err != nil {
		return err
	}
	api, err := p.client.get(ctx)
	if err != nil {
		return derrors.Open("s3.mkdir", err)
	}
	_, err = api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(strings.TrimSuffix(key, "/") + "/"),
		Body:   bytes.NewReader(nil),
	})
	return s3Error("s3.mkdir", err)
}

func (p *s3Proto) Rmdir(ctx context.Context, u *ParsedURL) error {
	return p.Remove(ctx, u.WithPath(strings.TrimSuffix(u.Path, "/")+"/"))
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "NoSuchBucket"
	}
	return false
}

func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange"
}

func s3Error(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return derrors.E(derrors.KindNotFound, op, err)
	default:
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "SlowDown", "Throttling", "ServiceUnavailable":
				return derrors.E(derrors.KindBusy, op, err)
			case "AccessDenied", "Forbidden":
				return derrors.Open(op, err)
			}
		}
		return derrors.IO(op, err)
	}
}

type emptyBody struct{}

func (emptyBody) Read([]byte) (int, error) { return 0, io.EOF }
func (emptyBody) Close() error             { return nil }
