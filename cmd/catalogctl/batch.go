package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
)

// batchFile is the YAML target list. Year, term and mode set defaults for targets that omit them.
type batchFile struct {
	Year    int                    `yaml:"year"`
	Term    string                 `yaml:"term"`
	Mode    string                 `yaml:"mode"`
	Targets []dto.IngestionRequest `yaml:"targets"`
}

type batchRunner interface {
	Ingest(ctx context.Context, req dto.IngestionRequest) (*dto.IngestionResponse, error)
	Preview(ctx context.Context, req dto.IngestionRequest) (*dto.PreviewResponse, error)
}

type batchResult struct {
	InstitutionID string
	Lectures      int
	Inserted      int
	Updated       int
	Duration      time.Duration
	Err           error
}

func loadTargets(path string) ([]dto.IngestionRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read target file: %w", err)
	}
	var file batchFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse target file: %w", err)
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("target file %s lists no targets", path)
	}
	targets := make([]dto.IngestionRequest, len(file.Targets))
	for i, t := range file.Targets {
		if t.Year == 0 {
			t.Year = file.Year
		}
		if t.Term == "" {
			t.Term = file.Term
		}
		if t.Mode == "" {
			t.Mode = file.Mode
		}
		t.InstitutionID = strings.TrimSpace(t.InstitutionID)
		t.Mode = strings.ToLower(strings.TrimSpace(t.Mode))
		targets[i] = t
	}
	return targets, nil
}

// runBatch ingests targets with at most concurrency in flight. A failed target does not cancel the others;
// results keep the order of targets.
func runBatch(ctx context.Context, runner batchRunner, targets []dto.IngestionRequest, concurrency int, preview bool) ([]batchResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]batchResult, len(targets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, target := range targets {
		g.Go(func() error {
			started := time.Now()
			res := batchResult{InstitutionID: target.InstitutionID}
			if preview {
				out, err := runner.Preview(gctx, target)
				res.Err = err
				if out != nil && out.Catalog != nil {
					res.Lectures = len(out.Catalog.Lectures)
				}
			} else {
				out, err := runner.Ingest(gctx, target)
				res.Err = err
				if out != nil {
					res.Inserted, res.Updated = out.InsertedCount, out.UpdatedCount
					if out.Catalog != nil {
						res.Lectures = len(out.Catalog.Lectures)
					}
				}
			}
			res.Duration = time.Since(started)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return results, fmt.Errorf("%d of %d targets failed", failed, len(targets))
	}
	return results, nil
}
