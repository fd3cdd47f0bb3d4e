package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/loomwork/loom/pkg/api"
)

// fanOut launches every target of a parallel transition as a concurrent
// branch and suspends until all complete or the first one fails.
//
// Each branch is traversed independently until it reaches a node with no
// further outgoing transition or a registered convergence node. On failure
// of any branch the sibling branches are cancelled through the group
// context; branches that already completed keep their context writes in
// place. After the join, traversal continues at the shared convergence node
// (executed exactly once, by the caller's path).
//
// When two branches write overlapping keys, the final value is whichever
// branch's completion is processed last. That ordering is not deterministic;
// callers must keep output keys disjoint across branches feeding the same
// convergence node.
func (r *run) fanOut(ctx context.Context, from string, t *api.Transition) (string, bool, error) {
	names := make([]string, len(t.Targets))
	for i, tg := range t.Targets {
		names[i] = tg.To
	}
	r.emit(ctx, api.EventTransitionEvaluated, from, nil,
		fmt.Sprintf("parallel -> [%s]", strings.Join(names, " ")))

	g, gctx := errgroup.WithContext(ctx)
	joins := make([]string, len(t.Targets))
	for i, tg := range t.Targets {
		i, tg := i, tg
		g.Go(func() error {
			join, err := r.runPath(gctx, tg.To, true)
			if err != nil {
				return err
			}
			joins[i] = join
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", false, err
	}

	// Join: continue at the convergence node the branches reached. Branches
	// that dead-ended report nothing; the first convergence reported in
	// target order wins, which for a well-formed graph is the single shared
	// one.
	for _, join := range joins {
		if join != "" {
			return join, true, nil
		}
	}
	return "", false, nil
}
