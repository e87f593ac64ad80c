package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOArchiver keeps a raw copy of every acknowledged postback for
// dispute resolution with partner houses.
type MinIOArchiver struct {
	client *minio.Client
	bucket string
}

func NewMinIOArchiver(endpoint, accessKey, secretKey, bucket string) (*MinIOArchiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOArchiver{
		client: client,
		bucket: bucket,
	}, nil
}

func (m *MinIOArchiver) Archive(ctx context.Context, houseIdentifier, recordID string, payload interface{}, timestamp time.Time) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal postback: %w", err)
	}

	// house/year/month/day/record_id.json
	objectPath := fmt.Sprintf("%s/%d/%02d/%02d/%s.json",
		houseIdentifier,
		timestamp.Year(),
		timestamp.Month(),
		timestamp.Day(),
		recordID,
	)

	_, err = m.client.PutObject(ctx, m.bucket, objectPath, bytes.NewReader(jsonData), int64(len(jsonData)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	return nil
}
