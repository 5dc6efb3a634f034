package core

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"permitdesk/pkg/domain"
)

// defaultFanout bounds how many partitions are read concurrently during a
// federated query.
const defaultFanout = 8

// Filters narrows a federated project query. Zero-value fields match
// everything.
type Filters struct {
	Statuses []domain.ProjectStatus
	Reviewer string
	Type     string
}

func (f Filters) matches(p domain.Project) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if p.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Reviewer != "" && (p.Reviewer == nil || *p.Reviewer != f.Reviewer) {
		return false
	}
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	return true
}

// Report describes the coverage of a federated query. Failed partitions are
// skipped rather than aborting the merge, so callers can distinguish a
// complete answer from a partial one.
type Report struct {
	PartitionsScanned int
	Failed            []string
}

// Partial reports whether at least one partition read failed.
func (r Report) Partial() bool { return len(r.Failed) > 0 }

// Federation answers cross-owner project queries by scatter-gather over the
// per-owner partitions of the projects collection. Reads are weakly
// consistent: a write racing the partition enumeration may be missed.
type Federation struct {
	store   domain.EntityStore
	log     zerolog.Logger
	metrics MetricsRecorder
	fanout  int
}

// NewFederation builds a federation layer over store.
func NewFederation(store domain.EntityStore, log zerolog.Logger, metrics MetricsRecorder) *Federation {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Federation{
		store:   store,
		log:     log.With().Str("component", "federation").Logger(),
		metrics: metrics,
		fanout:  defaultFanout,
	}
}

// FindAll returns every project matching f across all owner partitions,
// newest first.
func (fd *Federation) FindAll(ctx context.Context, f Filters) ([]domain.Project, Report, error) {
	return fd.scatter(ctx, f)
}

// FindByReviewer returns projects assigned to reviewerID, narrowed by f.
func (fd *Federation) FindByReviewer(ctx context.Context, reviewerID string, f Filters) ([]domain.Project, Report, error) {
	f.Reviewer = reviewerID
	return fd.scatter(ctx, f)
}

// FindByStatus returns projects in any of the given statuses, narrowed by f.
func (fd *Federation) FindByStatus(ctx context.Context, statuses []domain.ProjectStatus, f Filters) ([]domain.Project, Report, error) {
	f.Statuses = statuses
	return fd.scatter(ctx, f)
}

// FindByApplicant reads a single owner partition. No fan-out is needed, so a
// failure here is a real error rather than a partial result.
func (fd *Federation) FindByApplicant(ctx context.Context, ownerID string, f Filters) ([]domain.Project, error) {
	records, err := fd.store.List(ctx, domain.ProjectsOf(ownerID), fd.pushdown(f))
	if err != nil {
		return nil, err
	}
	projects, err := decodeProjects(records)
	if err != nil {
		return nil, err
	}
	out := projects[:0]
	for _, p := range projects {
		if f.matches(p) {
			out = append(out, p)
		}
	}
	sortProjects(out)
	return out, nil
}

// ReviewerInbox returns the working set of a reviewer: projects assigned to
// them plus the unassigned claimable pool. When a project appears in both
// reads, the assigned occurrence wins the dedup.
func (fd *Federation) ReviewerInbox(ctx context.Context, reviewerID string) ([]domain.Project, Report, error) {
	assigned, rep1, err := fd.scatter(ctx, Filters{Reviewer: reviewerID})
	if err != nil {
		return nil, rep1, err
	}
	pool, rep2, err := fd.scatter(ctx, Filters{Statuses: []domain.ProjectStatus{domain.ProjectSubmitted, domain.ProjectUnderReview}})
	if err != nil {
		return nil, rep2, err
	}

	merged := assigned
	seen := make(map[string]struct{}, len(assigned))
	for _, p := range assigned {
		seen[p.OwnerID+"/"+p.ID] = struct{}{}
	}
	for _, p := range pool {
		if p.Reviewer != nil {
			continue
		}
		if _, dup := seen[p.OwnerID+"/"+p.ID]; dup {
			continue
		}
		merged = append(merged, p)
	}
	sortProjects(merged)

	rep := Report{
		PartitionsScanned: rep1.PartitionsScanned + rep2.PartitionsScanned,
		Failed:            append(rep1.Failed, rep2.Failed...),
	}
	return merged, rep, nil
}

// pushdown maps f onto the store's single-equality query when it can: only
// an exact-one-status filter translates.
func (fd *Federation) pushdown(f Filters) domain.Query {
	if len(f.Statuses) == 1 {
		return domain.Query{Field: "status", Equals: string(f.Statuses[0])}
	}
	return domain.Query{}
}

func (fd *Federation) scatter(ctx context.Context, f Filters) ([]domain.Project, Report, error) {
	partitions, err := fd.store.ListPartitions(ctx, "projects")
	if err != nil {
		return nil, Report{}, err
	}

	var (
		mu      sync.Mutex
		results = make([][]domain.Project, len(partitions))
		failed  []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fd.fanout)
	query := fd.pushdown(f)
	for i, partition := range partitions {
		i, partition := i, partition
		g.Go(func() error {
			records, err := fd.store.List(gctx, domain.CollectionPath{Collection: "projects", Partition: partition}, query)
			if err != nil {
				// Degrade gracefully: record the gap, keep merging.
				fd.log.Warn().Err(err).Str("partition", partition).Msg("partition read failed")
				mu.Lock()
				failed = append(failed, partition)
				mu.Unlock()
				return nil
			}
			projects, err := decodeProjects(records)
			if err != nil {
				fd.log.Warn().Err(err).Str("partition", partition).Msg("partition decode failed")
				mu.Lock()
				failed = append(failed, partition)
				mu.Unlock()
				return nil
			}
			results[i] = projects
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Report{}, err
	}

	seen := make(map[string]struct{})
	var merged []domain.Project
	for _, projects := range results {
		for _, p := range projects {
			if !f.matches(p) {
				continue
			}
			key := p.OwnerID + "/" + p.ID
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, p)
		}
	}
	sortProjects(merged)

	sort.Strings(failed)
	fd.metrics.ObserveScan(len(partitions), len(failed))
	return merged, Report{PartitionsScanned: len(partitions), Failed: failed}, nil
}

// sortProjects orders newest first, ID ascending on equal timestamps so the
// order is deterministic.
func sortProjects(projects []domain.Project) {
	sort.Slice(projects, func(i, j int) bool {
		if !projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].CreatedAt.After(projects[j].CreatedAt)
		}
		return projects[i].ID < projects[j].ID
	})
}
