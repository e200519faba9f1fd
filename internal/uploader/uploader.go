package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
)

// Uploader ships rotated archive files to S3 so offline consumers (topic
// modeling, analytics) can pick them up.
type Uploader struct {
	s3Client    *s3.Client
	bucket      string
	deleteAfter bool
	maxRetries  int
	logger      zerolog.Logger
}

// flyTokenRetriever implements stscreds.IdentityTokenRetriever against the
// Fly.io OIDC socket API.
type flyTokenRetriever struct {
	socketPath string
	audience   string
}

// GetIdentityToken fetches an OIDC token over the machine-local Unix socket.
func (f *flyTokenRetriever) GetIdentityToken() ([]byte, error) {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", f.socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}

	reqBody, err := json.Marshal(map[string]string{"aud": f.audience})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := client.Post("http://localhost/v1/tokens/oidc", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	token, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	return token, nil
}

// New creates an uploader using OIDC web-identity authentication.
func New(ctx context.Context, bucket, region, roleARN string, deleteAfter bool, maxRetries int, logger zerolog.Logger) (*Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if roleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		tokenRetriever := &flyTokenRetriever{
			socketPath: "/.fly/api",
			audience:   "sts.amazonaws.com",
		}
		credProvider := stscreds.NewWebIdentityRoleProvider(stsClient, roleARN, tokenRetriever)
		cfg.Credentials = aws.NewCredentialsCache(credProvider)
	}

	return &Uploader{
		s3Client:    s3.NewFromConfig(cfg),
		bucket:      bucket,
		deleteAfter: deleteAfter,
		maxRetries:  maxRetries,
		logger:      logger.With().Str("component", "uploader").Logger(),
	}, nil
}

// NewWithStaticCredentials creates an uploader using static credentials
// (legacy).
func NewWithStaticCredentials(ctx context.Context, bucket, region, accessKeyID, secretAccessKey string, deleteAfter bool, maxRetries int, logger zerolog.Logger) (*Uploader, error) {
	credProvider := credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credProvider),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Uploader{
		s3Client:    s3.NewFromConfig(cfg),
		bucket:      bucket,
		deleteAfter: deleteAfter,
		maxRetries:  maxRetries,
		logger:      logger.With().Str("component", "uploader").Logger(),
	}, nil
}

// ScanAndUploadExisting queues any .jsonl files a previous run left behind.
func (u *Uploader) ScanAndUploadExisting(ctx context.Context, outputDir string) error {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}

	var leftovers []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		leftovers = append(leftovers, filepath.Join(outputDir, entry.Name()))
	}

	if len(leftovers) == 0 {
		return nil
	}

	u.logger.Info().Int("count", len(leftovers)).Msg("shipping leftover archive files")
	for _, path := range leftovers {
		go u.uploadWithRetry(ctx, path)
	}

	return nil
}

// Start ships every file announced on fileChan until ctx is cancelled.
func (u *Uploader) Start(ctx context.Context, fileChan <-chan string) error {
	for {
		select {
		case localPath := <-fileChan:
			// Upload off the loop so a slow transfer never blocks rotation.
			go u.uploadWithRetry(ctx, localPath)

		case <-ctx.Done():
			u.logger.Info().Msg("uploader shutting down")
			return ctx.Err()
		}
	}
}

// uploadWithRetry uploads one file with bounded exponential backoff; on final
// failure the file stays on disk for the next startup rescan.
func (u *Uploader) uploadWithRetry(ctx context.Context, localPath string) {
	filename := filepath.Base(localPath)

	s3Key, err := generateS3Key(filename)
	if err != nil {
		u.logger.Error().Err(err).Str("file", filename).Msg("cannot derive object key")
		return
	}

	for attempt := 0; attempt <= u.maxRetries; attempt++ {
		err := u.uploadFile(ctx, localPath, s3Key)
		if err == nil {
			u.logger.Info().Str("file", filename).Str("key", s3Key).Msg("uploaded")

			if u.deleteAfter {
				if err := os.Remove(localPath); err != nil {
					u.logger.Error().Err(err).Str("file", filename).Msg("delete after upload failed")
				}
			}
			return
		}

		if attempt < u.maxRetries {
			wait := time.Duration(1<<uint(attempt)) * time.Second
			u.logger.Warn().Err(err).
				Str("file", filename).
				Int("attempt", attempt+1).
				Dur("retry_in", wait).
				Msg("upload failed, retrying")

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}
	}

	u.logger.Error().Str("file", filename).Int("attempts", u.maxRetries).Msg("upload abandoned, file left on disk")
}

func (u *Uploader) uploadFile(ctx context.Context, localPath, s3Key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	_, err = u.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(s3Key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	return nil
}

// generateS3Key derives a date-partitioned object key from an archive
// filename.
// Input:  twitch_somechannel_20260314_1509.jsonl
// Output: 2026/03/14/twitch/somechannel/twitch_somechannel_20260314_1509.jsonl
func generateS3Key(filename string) (string, error) {
	nameWithoutExt := strings.TrimSuffix(filename, ".jsonl")

	// Channel names may contain underscores, so parse from the end.
	parts := strings.Split(nameWithoutExt, "_")
	if len(parts) < 4 {
		return "", fmt.Errorf("invalid filename format: %s", filename)
	}

	platform := parts[0]
	dateStr := parts[len(parts)-2]
	timeStr := parts[len(parts)-1]
	channel := strings.Join(parts[1:len(parts)-2], "_")

	t, err := time.Parse("20060102_1504", dateStr+"_"+timeStr)
	if err != nil {
		return "", fmt.Errorf("parse timestamp: %w", err)
	}

	return fmt.Sprintf("%04d/%02d/%02d/%s/%s/%s",
		t.Year(), t.Month(), t.Day(), platform, channel, filename), nil
}
