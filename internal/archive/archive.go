// Package archive implements optional cold-archival of output files
// before the retention engine deletes them, across S3, GCS, and Azure
// Blob Storage. A provider of "none" makes Upload a no-op so the
// retention engine runs unchanged when no archive destination is
// configured.
package archive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"google.golang.org/api/option"

	"github.com/videoforge/videoforge/internal/apperr"
)

// Archiver moves a finished output file to cold storage ahead of local
// deletion by the retention engine.
type Archiver struct {
	provider string // "none" | "s3" | "gcs" | "azure"
	bucket   string
	region   string
	kmsKeyID string

	s3Client    *s3.Client
	kmsClient   *kms.Client
	gcsClient   *storage.Client
	azureClient *azblob.Client
}

// New constructs an Archiver for the configured provider. An empty or
// "none" provider yields an Archiver whose Upload is a no-op, so
// callers never need to branch on whether archival is configured.
func New(ctx context.Context, provider, bucket, region string, kmsKeyID string) (*Archiver, error) {
	a := &Archiver{provider: provider, bucket: bucket, region: region, kmsKeyID: kmsKeyID}

	switch provider {
	case "", "none":
		return a, nil

	case "s3":
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, apperr.Wrap(apperr.Fatal, "load AWS config", err)
		}
		a.s3Client = s3.NewFromConfig(cfg)
		if kmsKeyID != "" {
			a.kmsClient = kms.NewFromConfig(cfg)
		}
		return a, nil

	case "gcs":
		client, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
		if err != nil {
			return nil, apperr.Wrap(apperr.Fatal, "create GCS client", err)
		}
		a.gcsClient = client
		return a, nil

	case "azure":
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, apperr.Wrap(apperr.Fatal, "create Azure credentials", err)
		}
		client, err := azblob.NewClient(fmt.Sprintf("https://%s.blob.core.windows.net", bucket), cred, nil)
		if err != nil {
			return nil, apperr.Wrap(apperr.Fatal, "create Azure client", err)
		}
		a.azureClient = client
		return a, nil

	default:
		return nil, apperr.Newf(apperr.Validation, "unsupported archive provider %q", provider)
	}
}

// Enabled reports whether this Archiver actually archives anything.
func (a *Archiver) Enabled() bool {
	return a.provider != "" && a.provider != "none"
}

// Upload copies the file at localPath to cold storage under key before
// the retention engine deletes the local copy. A no-op Archiver
// returns nil immediately.
func (a *Archiver) Upload(ctx context.Context, localPath, key string) error {
	if !a.Enabled() {
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "open file for archival", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "stat file for archival", err)
	}

	switch a.provider {
	case "s3":
		input := &s3.PutObjectInput{
			Bucket:        aws.String(a.bucket),
			Key:           aws.String(key),
			Body:          f,
			ContentLength: aws.Int64(info.Size()),
		}
		if a.kmsKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(a.kmsKeyID)

			encCtx, err := a.dataKeyEncryptionContext(ctx, key)
			if err != nil {
				return err
			}
			input.SSEKMSEncryptionContext = aws.String(encCtx)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
		_, err := a.s3Client.PutObject(ctx, input)
		if err != nil {
			return apperr.Wrap(apperr.Fatal, "archive to S3", err)
		}
		return nil

	case "gcs":
		w := a.gcsClient.Bucket(a.bucket).Object(key).NewWriter(ctx)
		if _, err := io.Copy(w, f); err != nil {
			w.Close()
			return apperr.Wrap(apperr.Fatal, "archive to GCS", err)
		}
		if err := w.Close(); err != nil {
			return apperr.Wrap(apperr.Fatal, "close GCS writer", err)
		}
		return nil

	case "azure":
		if _, err := a.azureClient.UploadStream(ctx, a.bucket, key, f, nil); err != nil {
			return apperr.Wrap(apperr.Fatal, "archive to Azure", err)
		}
		return nil

	default:
		return nil
	}
}

// dataKeyEncryptionContext calls KMS to generate (and immediately
// discard) a data key under a.kmsKeyID with an encryption context
// scoped to bucket/key, both to fail fast if the key is disabled or
// unreachable before spending upload bandwidth, and to return the
// base64-encoded JSON context S3 must echo back to KMS on every
// subsequent decrypt of the archived object.
func (a *Archiver) dataKeyEncryptionContext(ctx context.Context, key string) (string, error) {
	encCtx := map[string]string{"bucket": a.bucket, "key": key}

	_, err := a.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:             aws.String(a.kmsKeyID),
		KeySpec:           kmstypes.DataKeySpecAes256,
		EncryptionContext: encCtx,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Fatal, "verify KMS key for archival", err)
	}

	raw, err := json.Marshal(encCtx)
	if err != nil {
		return "", apperr.Wrap(apperr.Fatal, "encode KMS encryption context", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
