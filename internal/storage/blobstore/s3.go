package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// metaChecksum — ключ пользовательских метаданных объекта с SHA-256.
const metaChecksum = "sha256"

// s3API — подмножество клиента S3, используемое S3Store.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options — параметры подключения к S3-совместимому хранилищу.
type S3Options struct {
	Bucket string
	Region string
	// Endpoint — адрес MinIO/Ceph; пусто — AWS
	Endpoint  string
	AccessKey string
	SecretKey string
	// Prefix — префикс ключей объектов, например "uploads/"
	Prefix string
}

// S3Store — blob'ы как объекты в бакете S3.
type S3Store struct {
	client s3API
	bucket string
	prefix string
	locate LocatorFunc
}

// NewS3Store создаёт клиент S3 и S3Store.
func NewS3Store(ctx context.Context, opts S3Options, locate LocatorFunc) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации AWS: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			// MinIO и Ceph не поддерживают virtual-hosted style по умолчанию
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, opts.Bucket, opts.Prefix, locate), nil
}

func newS3Store(client s3API, bucket, prefix string, locate LocatorFunc) *S3Store {
	if locate == nil {
		locate = NewLocatorFunc(nil, nil)
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix, locate: locate}
}

// key возвращает ключ объекта для locator'а.
func (s *S3Store) key(locator string) string {
	return s.prefix + locator
}

// Put буферизует поток во временный файл, считая SHA-256, и загружает
// его одним PutObject. Объект появляется в бакете только целиком.
func (s *S3Store) Put(ctx context.Context, r io.Reader, originalName string) (*PutResult, error) {
	locator := s.locate(originalName)
	if !validLocator(locator) {
		return nil, fmt.Errorf("некорректный locator %q", locator)
	}

	tmp, err := os.CreateTemp("", "studyshare-upload-*")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hasher := sha256.New()
	size, err := io.Copy(tmp, io.TeeReader(r, hasher))
	if err != nil {
		return nil, fmt.Errorf("ошибка буферизации данных: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("ошибка перемотки временного файла: %w", err)
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(locator)),
		Body:          tmp,
		ContentLength: aws.Int64(size),
		Metadata:      map[string]string{metaChecksum: checksum},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки объекта %s: %w", locator, err)
	}

	return &PutResult{Locator: locator, Size: size, Checksum: checksum}, nil
}

// Open открывает объект на чтение. Body не поддерживает Seek.
func (s *S3Store) Open(ctx context.Context, locator string) (*Blob, error) {
	if !validLocator(locator) {
		return nil, ErrNotFound
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(locator)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения объекта %s: %w", locator, err)
	}

	return &Blob{
		Body:    out.Body,
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

// Exists проверяет наличие объекта через HeadObject.
func (s *S3Store) Exists(ctx context.Context, locator string) (bool, error) {
	if !validLocator(locator) {
		return false, nil
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(locator)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки объекта %s: %w", locator, err)
	}
	return true, nil
}

// Delete удаляет объект. DeleteObject в S3 идемпотентен.
func (s *S3Store) Delete(ctx context.Context, locator string) error {
	if !validLocator(locator) {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(locator)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("ошибка удаления объекта %s: %w", locator, err)
	}
	return nil
}

// List обходит все объекты под префиксом постранично.
func (s *S3Store) List(ctx context.Context) ([]Entry, error) {
	var result []Entry

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("ошибка листинга бакета %s: %w", s.bucket, err)
		}
		for _, obj := range page.Contents {
			locator := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if !validLocator(locator) {
				continue
			}
			result = append(result, Entry{Locator: locator, ModTime: aws.ToTime(obj.LastModified)})
		}
	}
	return result, nil
}

// Ping проверяет доступность бакета.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("бакет %s недоступен: %w", s.bucket, err)
	}
	return nil
}

// isS3NotFound распознаёт ответы S3 об отсутствии объекта.
func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
