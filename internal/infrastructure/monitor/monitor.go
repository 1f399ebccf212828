package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/doc2sys/internal/core/ports"
)

const (
	DefaultSchedule    = "*/5 * * * *"
	DefaultParallelism = 4
)

type Options struct {
	// Schedule is a standard five-field cron expression.
	Schedule    string
	Parallelism int
	// UserID owns documents picked up from the folder.
	UserID string
	Logger *slog.Logger
}

// FolderMonitor uploads every regular file found in a folder and removes it once stored.
// Files that fail to upload stay in place for the next scan.
type FolderMonitor struct {
	dir      string
	ingestor ports.DocumentIngestor
	opts     Options
	logger   *slog.Logger
}

func New(dir string, ingestor ports.DocumentIngestor, opts Options) (*FolderMonitor, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("monitor folder is required")
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("parse monitor schedule %q: %w", opts.Schedule, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FolderMonitor{
		dir:      dir,
		ingestor: ingestor,
		opts:     opts,
		logger:   logger.With("folder", dir),
	}, nil
}

// Start schedules scans until ctx is cancelled. Overlapping scans are skipped.
func (m *FolderMonitor) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(m.opts.Schedule, func() {
		if _, err := m.Scan(ctx); err != nil {
			m.logger.Error("monitor.scan_failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule folder scan: %w", err)
	}
	c.Start()
	m.logger.Info("monitor.started", "schedule", m.opts.Schedule, "parallelism", m.opts.Parallelism)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		m.logger.Info("monitor.stopped")
	}()
	return nil
}

// Scan uploads the folder's files once and returns how many were ingested.
func (m *FolderMonitor) Scan(ctx context.Context) (int, error) {
	files, err := m.listFiles()
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}

	var uploaded atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(m.opts.Parallelism)
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := m.ingest(ctx, path); err != nil {
				m.logger.Warn("monitor.upload_failed", "file", filepath.Base(path), "error", err)
				return nil
			}
			uploaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	n := int(uploaded.Load())
	m.logger.Info("monitor.scan_done", "found", len(files), "uploaded", n)
	return n, ctx.Err()
}

func (m *FolderMonitor) listFiles() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read monitor folder: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(m.dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (m *FolderMonitor) ingest(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	name := filepath.Base(path)
	doc, err := m.ingestor.Upload(ctx, m.opts.UserID, name, mime.TypeByExtension(filepath.Ext(name)), f)
	closeErr := f.Close()
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close file: %w", closeErr)
	}
	if err := os.Remove(path); err != nil {
		m.logger.Warn("monitor.remove_failed", "file", name, "document_id", doc.ID, "error", err)
		return nil
	}
	m.logger.Info("monitor.file_ingested", "file", name, "document_id", doc.ID)
	return nil
}
