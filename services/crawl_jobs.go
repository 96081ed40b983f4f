package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/itish2003/ragkb/crawler"
	"github.com/itish2003/ragkb/models"
)

// CrawlFunc crawls a site and ingests it, returning the stored document.
type CrawlFunc func(ctx context.Context, rootURL string) (*models.DocumentMetadata, error)

// CrawlJobs runs crawls in the background and remembers their outcome.
type CrawlJobs struct {
	ctx context.Context
	run CrawlFunc

	mu   sync.RWMutex
	jobs map[string]*models.CrawlStatus
	wg   sync.WaitGroup
}

// NewCrawlJobs binds background crawls to ctx; cancelling it fails every
// running job.
func NewCrawlJobs(ctx context.Context, run CrawlFunc) *CrawlJobs {
	return &CrawlJobs{ctx: ctx, run: run, jobs: make(map[string]*models.CrawlStatus)}
}

// Start validates rootURL and launches the crawl.
func (j *CrawlJobs) Start(rootURL string) (models.CrawlStatus, error) {
	if _, err := crawler.Seed(rootURL); err != nil {
		return models.CrawlStatus{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	job := &models.CrawlStatus{
		ID:        uuid.New().String(),
		URL:       rootURL,
		State:     crawler.Crawling.String(),
		StartedAt: time.Now().UTC(),
	}
	j.mu.Lock()
	j.jobs[job.ID] = job
	snapshot := *job
	j.mu.Unlock()

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		meta, err := j.run(j.ctx, rootURL)

		j.mu.Lock()
		defer j.mu.Unlock()
		finished := time.Now().UTC()
		job.FinishedAt = &finished
		if err != nil {
			job.State = crawler.Failed.String()
			job.Error = err.Error()
			log.Printf("SERVICE: Crawl job %s for %s failed: %v", job.ID, rootURL, err)
			return
		}
		job.State = crawler.Finished.String()
		job.Document = meta
	}()

	log.Printf("SERVICE: Crawl job %s started for %s", snapshot.ID, rootURL)
	return snapshot, nil
}

// Get returns a snapshot of one job.
func (j *CrawlJobs) Get(id string) (models.CrawlStatus, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	job, ok := j.jobs[id]
	if !ok {
		return models.CrawlStatus{}, fmt.Errorf("%w: crawl job %s", ErrNotFound, id)
	}
	return *job, nil
}

// List returns every job, newest first.
func (j *CrawlJobs) List() []models.CrawlStatus {
	j.mu.RLock()
	out := make([]models.CrawlStatus, 0, len(j.jobs))
	for _, job := range j.jobs {
		out = append(out, *job)
	}
	j.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	return out
}

// Wait blocks until every started job has finished.
func (j *CrawlJobs) Wait() {
	j.wg.Wait()
}
