package multiagent

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
	"github.com/SUOKE2024/suoke-life-sub002/internal/infra/tracer"
)

// Coordinator resolves a strategy for each request, runs the participating
// agents in the strategy's mode and folds their results into one aggregate.
// It is the only writer of the collaboration history.
type Coordinator struct {
	registry *Registry
	catalog  *Catalog
	router   *ChannelRouter
	invoker  *Invoker
	history  *History
	logger   *slog.Logger
}

// NewCoordinator wires a Coordinator. router and history may be nil.
func NewCoordinator(registry *Registry, catalog *Catalog, router *ChannelRouter, invoker *Invoker, history *History, logger *slog.Logger) *Coordinator {
	if router == nil {
		router = NewChannelRouter(nil, logger)
	}
	if history == nil {
		history = NewHistory(DefaultHistorySize)
	}
	return &Coordinator{
		registry: registry,
		catalog:  catalog,
		router:   router,
		invoker:  invoker,
		history:  history,
		logger:   logger,
	}
}

// History returns the collaboration log.
func (c *Coordinator) History() *History { return c.history }

// Catalog returns the strategy catalog.
func (c *Coordinator) Catalog() *Catalog { return c.catalog }

// Resolve picks the strategy for req: the catalog entry for its category,
// or the channel default when the category is empty or unknown.
func (c *Coordinator) Resolve(req domain.TaskRequest) domain.CollaborationStrategy {
	if req.Category != "" {
		if s, ok := c.catalog.Resolve(req.Category); ok {
			return s
		}
		c.logger.Debug("unknown category, using channel default", "category", req.Category)
	}
	return c.router.DefaultStrategy(req.Context)
}

// Route runs req and returns the aggregate result. Agent failures are
// recorded on the result, never returned.
func (c *Coordinator) Route(ctx context.Context, req domain.TaskRequest) domain.TaskResult {
	taskID := domain.TaskIDFromContext(ctx)
	if taskID == "" {
		taskID = newID()
		ctx = domain.ContextWithTaskID(ctx, taskID)
	}

	if err := req.Validate(); err != nil {
		res := domain.TaskResult{TaskID: taskID, Context: req.Context}
		res.SetError(err)
		return res
	}

	strategy := c.Resolve(req)
	ctx, span := tracer.StartSpan(ctx, "coordinator.route",
		tracer.StringAttr("task_id", taskID),
		tracer.StringAttr("mode", string(strategy.Mode)),
		tracer.StringAttr("category", strategy.Category),
		tracer.StringAttr("agent_id", string(strategy.Primary)),
	)
	defer span.End()

	start := time.Now()
	var agg domain.TaskResult
	switch strategy.Mode {
	case domain.ModeParallel:
		agg = c.parallel(ctx, strategy, req)
	case domain.ModeHierarchical:
		agg = c.hierarchical(ctx, strategy, req)
	case domain.ModeConsensus:
		agg = c.consensus(ctx, strategy, req)
	default:
		agg = c.sequential(ctx, strategy, req)
	}

	agg.TaskID = taskID
	agg.Category = strategy.Category
	agg.Mode = strategy.Mode
	agg.Context = req.Context
	agg.Participants = strategy.Participants()
	agg.Metadata.AgentID = strategy.Primary
	agg.Metadata.InstanceID = ""
	agg.Metadata.ExecutionTimeMs = domain.ElapsedMs(time.Since(start))

	if agg.Success {
		tracer.SetOK(span)
	} else if agg.Err != nil {
		tracer.RecordError(span, agg.Err)
	}

	c.history.Append(domain.CollaborationEntry{
		ID:           newID(),
		Timestamp:    time.Now(),
		Category:     strategy.Category,
		Participants: agg.Participants,
		InputMessage: req.Message,
		Result:       agg,
	})

	c.logger.Debug("collaboration finished",
		"task_id", taskID,
		"mode", strategy.Mode,
		"category", strategy.Category,
		"participants", len(agg.Participants),
		"success", agg.Success,
		"duration_ms", agg.Metadata.ExecutionTimeMs,
	)
	return agg
}

// sequential runs the primary, then each supporting agent with every
// earlier contribution folded into its context.
func (c *Coordinator) sequential(ctx context.Context, s domain.CollaborationStrategy, req domain.TaskRequest) domain.TaskResult {
	primary := c.invoker.Invoke(ctx, s.Primary, req.Message, req.Context)
	results := []domain.TaskResult{primary}
	if !primary.Success {
		return failed(primary, results)
	}

	rc := req.Context.WithPriorResult(primary.Contribution())
	for _, id := range s.Participants()[1:] {
		r := c.invoker.Invoke(ctx, id, req.Message, rc)
		results = append(results, r)
		rc = rc.WithPriorResult(r.Contribution())
	}
	return enriched(primary, results)
}

// parallel runs every participant against the same context and joins
// them all. Only a failed primary fails the aggregate; supporting agents
// always run to completion.
func (c *Coordinator) parallel(ctx context.Context, s domain.CollaborationStrategy, req domain.TaskRequest) domain.TaskResult {
	ids := s.Participants()
	results := make([]domain.TaskResult, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			results[i] = c.invoker.Invoke(ctx, id, req.Message, req.Context)
			return nil
		})
	}
	_ = g.Wait()

	if !results[0].Success {
		return failed(results[0], results)
	}
	return enriched(results[0], results)
}

// hierarchical runs the primary, then supporting agents in ascending
// priority; each successful one overwrites the aggregate's fields.
func (c *Coordinator) hierarchical(ctx context.Context, s domain.CollaborationStrategy, req domain.TaskRequest) domain.TaskResult {
	primary := c.invoker.Invoke(ctx, s.Primary, req.Message, req.Context)
	results := []domain.TaskResult{primary}
	if !primary.Success {
		return failed(primary, results)
	}

	order := slices.Clone(s.Participants()[1:])
	slices.SortStableFunc(order, func(a, b domain.AgentID) int {
		return cmp.Compare(s.Priorities[a], s.Priorities[b])
	})

	agg := enriched(primary, results)
	rc := req.Context.WithPriorResult(primary.Contribution())
	for _, id := range order {
		r := c.invoker.Invoke(ctx, id, req.Message, rc)
		agg.Results = append(agg.Results, r)
		agg.Payload.Contributions = append(agg.Payload.Contributions, r.Contribution())
		rc = rc.WithPriorResult(r.Contribution())
		if !r.Success {
			continue
		}
		for k, v := range r.Payload.Fields {
			agg.Payload.Fields[k] = v
		}
	}
	return agg
}

// consensus runs every participant in parallel and accepts the aggregate
// only when strictly more than half succeed.
func (c *Coordinator) consensus(ctx context.Context, s domain.CollaborationStrategy, req domain.TaskRequest) domain.TaskResult {
	ids := s.Participants()
	results := make([]domain.TaskResult, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			results[i] = c.invoker.Invoke(ctx, id, req.Message, req.Context)
			return nil
		})
	}
	_ = g.Wait()

	var agreed int
	var confSum float64
	best := -1
	for i, r := range results {
		if !r.Success {
			continue
		}
		agreed++
		confSum += r.Metadata.Confidence
		if best < 0 || r.Metadata.Confidence > results[best].Metadata.Confidence {
			best = i
		}
	}
	ratio := float64(agreed) / float64(len(results))

	var agg domain.TaskResult
	if ratio > domain.ConsensusThreshold {
		agg = domain.TaskResult{Success: true, Payload: results[best].Payload.Clone()}
		agg.Metadata.Confidence = confSum / float64(agreed)
	} else {
		agg.SetError(domain.NewSubSystemError("coordinator", "Coordinator.consensus", domain.ErrAggregateFailure,
			fmt.Sprintf("%d/%d participants agreed", agreed, len(results))))
	}
	agg.AgreementRatio = ratio
	agg.Results = results
	agg.Payload.Contributions = nil
	for _, r := range results {
		agg.Payload.Contributions = append(agg.Payload.Contributions, r.Contribution())
	}
	return agg
}

// enriched builds a successful aggregate from the primary's payload plus
// the digests of every other result.
func enriched(primary domain.TaskResult, results []domain.TaskResult) domain.TaskResult {
	agg := domain.TaskResult{
		Success: true,
		Payload: primary.Payload.Clone(),
		Results: results,
	}
	if agg.Payload.Fields == nil {
		agg.Payload.Fields = make(map[string]string)
	}
	agg.Payload.Contributions = nil
	for _, r := range results[1:] {
		agg.Payload.Contributions = append(agg.Payload.Contributions, r.Contribution())
	}
	agg.Metadata.Confidence = primary.Metadata.Confidence
	return agg
}

func failed(primary domain.TaskResult, results []domain.TaskResult) domain.TaskResult {
	agg := domain.TaskResult{Results: results}
	agg.SetError(primary.Err)
	if primary.Err == nil {
		agg.Error = primary.Error
		agg.Code = primary.Code
	}
	return agg
}

func newID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
