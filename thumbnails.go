package main

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// thumbnailStore saves a food photo and returns the URL clients load it from.
type thumbnailStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// s3Thumbnails stores photos in an S3 bucket. URLs are built from baseURL
// (a CDN in front of the bucket) or the bucket's virtual-hosted endpoint.
type s3Thumbnails struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// newS3Thumbnails loads AWS credentials from the default chain.
func newS3Thumbnails(ctx context.Context, bucket, region, baseURL string) (*s3Thumbnails, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &s3Thumbnails{
		client:  s3.NewFromConfig(cfg),
		bucket:  bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (s *s3Thumbnails) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// thumbnailKey names a user's photo object: food-photos/<user>/<uuid><ext>.
func thumbnailKey(userID int, contentType string) string {
	var ext string
	switch contentType {
	case "image/jpeg", "image/jpg":
		ext = ".jpg"
	default:
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		} else if _, sub, ok := strings.Cut(contentType, "/"); ok {
			ext = "." + sub
		}
	}
	return fmt.Sprintf("food-photos/%d/%s%s", userID, uuid.NewString(), ext)
}
