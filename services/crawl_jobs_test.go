package services

import (
	"context"
	"errors"
	"testing"

	"github.com/itish2003/ragkb/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrawlJobs_Lifecycle(t *testing.T) {
	release := make(chan struct{})
	jobs := NewCrawlJobs(context.Background(), func(ctx context.Context, rootURL string) (*models.DocumentMetadata, error) {
		<-release
		if rootURL == "https://broken.example" {
			return nil, errors.New("seed unreachable")
		}
		return &models.DocumentMetadata{FileName: "example_com", FileExtension: ".txt"}, nil
	})

	ok, err := jobs.Start("https://example.com/docs")
	require.NoError(t, err)
	assert.Equal(t, "crawling", ok.State)
	assert.NotEmpty(t, ok.ID)

	bad, err := jobs.Start("https://broken.example")
	require.NoError(t, err)

	running, err := jobs.Get(ok.ID)
	require.NoError(t, err)
	assert.Equal(t, "crawling", running.State)
	assert.Nil(t, running.FinishedAt)

	close(release)
	jobs.Wait()

	done, err := jobs.Get(ok.ID)
	require.NoError(t, err)
	assert.Equal(t, "finished", done.State)
	require.NotNil(t, done.Document)
	assert.Equal(t, "example_com.txt", done.Document.DocumentID())
	assert.NotNil(t, done.FinishedAt)

	failed, err := jobs.Get(bad.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", failed.State)
	assert.Equal(t, "seed unreachable", failed.Error)

	assert.Len(t, jobs.List(), 2)
}

func TestCrawlJobs_Validation(t *testing.T) {
	jobs := NewCrawlJobs(context.Background(), func(context.Context, string) (*models.DocumentMetadata, error) {
		t.Fatal("must not run")
		return nil, nil
	})

	_, err := jobs.Start("not a url")
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = jobs.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
