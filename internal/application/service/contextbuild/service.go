// Package contextbuild assembles the prompt context of a mediation turn:
// the complete transcript of the current conflict plus the top ranked
// background from profiles, past conflicts and calendar insights.
package contextbuild

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/anishgillella/serene-sub003/internal/errors"
	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

const primarySource = "primary"

// Config holds the build tunables
type Config struct {
	TopK           int
	PrimaryTimeout time.Duration
}

type contextService struct {
	primary   *PrimaryFetcher
	secondary *SecondaryFetcher
	selector  *Selector
	cache     interfaces.SessionCache
	cfg       Config
	now       func() time.Time
}

// NewContextService wires the build stages together
func NewContextService(
	primary *PrimaryFetcher,
	secondary *SecondaryFetcher,
	selector *Selector,
	cache interfaces.SessionCache,
	cfg Config,
) interfaces.ContextService {
	if cfg.PrimaryTimeout <= 0 {
		cfg.PrimaryTimeout = 10 * time.Second
	}
	return &contextService{
		primary:   primary,
		secondary: secondary,
		selector:  selector,
		cache:     cache,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Build returns the assembled context. Degraded sources are listed in
// Skipped; the only errors are ErrInvalidRequest and ErrContextUnavailable.
func (s *contextService) Build(ctx context.Context, req *types.ContextRequest) (*types.AssembledContext, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidRequest, err)
	}
	ctx = logger.WithFields(ctx, logrus.Fields{
		"session_id":  req.SessionID,
		"conflict_id": req.ConflictID,
	})
	ctx, span := tracer.Start(ctx, "contextbuild.Build")
	defer span.End()
	span.SetAttributes(
		attribute.String("conflict.id", req.ConflictID),
		attribute.Bool("session.start", req.IsSessionStart()),
	)
	start := time.Now()

	var (
		primary Outcome[[]*types.CandidateSegment]
		results []SourceResult
	)
	// join barrier: both tiers finish before selection
	var eg errgroup.Group
	eg.Go(func() error {
		primary = WithTimeout(ctx, primarySource, s.cfg.PrimaryTimeout, nil,
			func(ctx context.Context) ([]*types.CandidateSegment, error) {
				return s.primary.FindOrBackfill(ctx, req.ConflictID)
			})
		return nil
	})
	eg.Go(func() error {
		results = s.secondary.Fetch(ctx, req)
		return nil
	})
	_ = eg.Wait()

	if errors.Is(primary.Err, apperrors.ErrContextUnavailable) {
		span.SetStatus(codes.Error, primary.Err.Error())
		logger.Errorf(ctx, "[ContextBuild] Primary tier unavailable: %v", primary.Err)
		return nil, primary.Err
	}

	var skipped []types.SkippedSource
	if sk := primary.Skipped(); sk != nil {
		skipped = append(skipped, *sk)
	}
	for _, r := range results {
		if sk := r.Outcome.Skipped(); sk != nil {
			skipped = append(skipped, *sk)
		}
	}

	primarySegs := s.checkPrimary(ctx, req.ConflictID, primary.Value)
	if len(primarySegs) == 0 {
		logger.Warnf(ctx, "[ContextBuild] %v for conflict %s", apperrors.ErrPrimaryFetchEmpty, req.ConflictID)
	}
	selected := s.selector.Select(ctx, req.Utterance, Candidates(results))
	selected = s.checkSecondary(ctx, req.ConflictID, selected)

	assembled := Assemble(primarySegs, selected, s.now())
	assembled.Skipped = skipped
	assembled.Degraded = len(skipped) > 0

	span.SetAttributes(
		attribute.Int("context.primary_count", assembled.PrimaryCount),
		attribute.Int("context.secondary_count", assembled.SecondaryCount),
		attribute.Int("context.calendar_count", assembled.CalendarCount),
		attribute.Bool("context.degraded", assembled.Degraded),
	)
	logger.Infof(ctx, "[ContextBuild] Built context in %v: primary=%d secondary=%d calendar=%d skipped=%d",
		time.Since(start), assembled.PrimaryCount, assembled.SecondaryCount, assembled.CalendarCount, len(skipped))
	return assembled, nil
}

// checkPrimary keeps only chunks of the current conflict
func (s *contextService) checkPrimary(ctx context.Context,
	conflictID string, segs []*types.CandidateSegment,
) []*types.CandidateSegment {
	out := segs[:0:0]
	for _, seg := range segs {
		if seg == nil || types.TierOf(seg, conflictID) != types.ContextTierPrimary {
			logger.Errorf(ctx, "[ContextBuild] %v: non-primary segment in primary tier", apperrors.ErrAssemblyInvariant)
			continue
		}
		out = append(out, seg)
	}
	return out
}

// checkSecondary clamps the selection and drops anything belonging to the
// primary tier
func (s *contextService) checkSecondary(ctx context.Context,
	conflictID string, segs []*types.CandidateSegment,
) []*types.CandidateSegment {
	if s.cfg.TopK > 0 && len(segs) > s.cfg.TopK {
		logger.Errorf(ctx, "[ContextBuild] %v: %d secondary segments, limit %d",
			apperrors.ErrAssemblyInvariant, len(segs), s.cfg.TopK)
		segs = segs[:s.cfg.TopK]
	}
	out := segs[:0:0]
	for _, seg := range segs {
		if seg.OriginID == conflictID {
			logger.Errorf(ctx, "[ContextBuild] %v: current conflict segment in secondary tier", apperrors.ErrAssemblyInvariant)
			continue
		}
		out = append(out, seg)
	}
	return out
}

// Reindex rebuilds the index entries of a conflict from its transcript
func (s *contextService) Reindex(ctx context.Context, conflictID string) (int, error) {
	ctx, span := tracer.Start(ctx, "contextbuild.Reindex")
	defer span.End()
	segs, err := s.primary.Backfill(ctx, conflictID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	return len(segs), nil
}

func (s *contextService) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: missing session_id", apperrors.ErrInvalidRequest)
	}
	logger.Infof(ctx, "[ContextBuild] Ending session %s", sessionID)
	return s.cache.EndSession(ctx, sessionID)
}
