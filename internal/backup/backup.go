// Package backup uploads periodic snapshots of the SQLite database to S3.
package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	dbPath string
	logger *log.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewUploader builds an S3 uploader using the default AWS credential
// chain. Bucket and database path are required; the prefix may be empty.
func NewUploader(ctx context.Context, bucket, prefix, dbPath string, logger *log.Logger) (*Uploader, error) {
	if logger == nil {
		logger = log.Default()
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("backup: load aws config: %w", err)
	}
	return &Uploader{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		dbPath: dbPath,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Upload pushes one snapshot, keyed by the current UTC timestamp.
func (u *Uploader) Upload(ctx context.Context) error {
	file, err := os.Open(u.dbPath)
	if err != nil {
		return fmt.Errorf("backup: open database: %w", err)
	}
	defer file.Close()

	key := path.Join(u.prefix, time.Now().UTC().Format("20060102T150405Z")+".db")
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("backup: put object %s: %w", key, err)
	}
	u.logger.Printf("backup: uploaded s3://%s/%s", u.bucket, key)
	return nil
}

// Start launches periodic uploads until Stop is called.
func (u *Uploader) Start(interval time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.started {
		return
	}
	u.started = true
	go u.loop(interval)
}

func (u *Uploader) Stop() {
	u.mu.Lock()
	if !u.started || u.stopped {
		u.mu.Unlock()
		return
	}
	u.stopped = true
	close(u.stopCh)
	u.mu.Unlock()
	<-u.doneCh
}

func (u *Uploader) loop(interval time.Duration) {
	defer close(u.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			if err := u.Upload(ctx); err != nil {
				u.logger.Printf("%v", err)
			}
			cancel()
		case <-u.stopCh:
			return
		}
	}
}
