package r2s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	Uploaded      uint64
	Failed        uint64
	Dropped       uint64
}

// Uploader is what a Mirror needs from a Client.
type Uploader interface {
	PutFile(ctx context.Context, key, localPath string) error
}

// Mirror copies park snapshots off-site in the background. Keys are the
// file's path relative to dataDir under prefix.
type Mirror struct {
	up      Uploader
	dataDir string
	prefix  string
	log     *logrus.Entry

	jobs     chan string
	wg       sync.WaitGroup
	maxRetry time.Duration

	uploaded atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

func NewMirror(up Uploader, dataDir, prefix string, workers, queue int) *Mirror {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 256
	}
	m := &Mirror{
		up:       up,
		dataDir:  dataDir,
		prefix:   strings.Trim(prefix, "/"),
		log:      logrus.WithField("component", "mirror"),
		jobs:     make(chan string, queue),
		maxRetry: 2 * time.Minute,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.upload(p)
			}
		}()
	}
	return m
}

// Enqueue never blocks; a full queue drops the file.
func (m *Mirror) Enqueue(localPath string) {
	select {
	case m.jobs <- localPath:
	default:
		m.dropped.Add(1)
		m.log.WithField("path", localPath).Warn("mirror queue full, dropping upload")
	}
}

// Close waits for queued uploads to finish.
func (m *Mirror) Close() {
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	return Stats{
		QueueDepth:    len(m.jobs),
		QueueCapacity: cap(m.jobs),
		Uploaded:      m.uploaded.Load(),
		Failed:        m.failed.Load(),
		Dropped:       m.dropped.Load(),
	}
}

func (m *Mirror) upload(localPath string) {
	key, err := m.objectKey(localPath)
	if err != nil {
		m.failed.Add(1)
		m.log.WithError(err).WithField("path", localPath).Warn("mirror skip")
		return
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = m.maxRetry
	op := func() error {
		err := m.up.PutFile(context.Background(), key, localPath)
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, bo); err != nil {
		m.failed.Add(1)
		m.log.WithError(err).WithField("key", key).Error("mirror upload failed")
		return
	}
	m.uploaded.Add(1)
	m.log.WithField("key", key).Debug("mirrored")
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	base, err := filepath.Abs(m.dataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, base)
	}
	if m.prefix != "" {
		rel = path.Join(m.prefix, rel)
	}
	return rel, nil
}
