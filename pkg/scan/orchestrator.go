package scan

import (
	"context"
	"sort"

	"github.com/KyberNetwork/kutils/klog"

	"github.com/KyberNetwork/kscan/pkg/common"
	"github.com/KyberNetwork/kscan/pkg/observe/kmetric"
)

// Topology lists the shards a partitioned store currently consists of.
type Topology interface {
	CurrentShards(ctx context.Context) ([]string, error)
}

// TopologyFunc adapts a function to Topology.
type TopologyFunc func(ctx context.Context) ([]string, error)

// CurrentShards implements Topology by calling itself.
func (fn TopologyFunc) CurrentShards(ctx context.Context) ([]string, error) {
	return fn(ctx)
}

// Orchestrator sequences shard scans of a partitioned store. Shards are visited one after another in the order
// fixed when the scan starts (ascending id, later arrivals appended), and each Step drives one native call.
// It keeps no state of its own: everything travels in the State.
type Orchestrator struct {
	driver   Driver
	topology Topology
}

// NewOrchestrator returns an Orchestrator driving shards listed by topology.
func NewOrchestrator(driver Driver, topology Topology) Orchestrator {
	return Orchestrator{driver: driver, topology: topology}
}

// Step advances a composite scan by one native call on the current shard. The topology is read first and
// reconciled with the state: vanished pending shards are dropped, unknown shards are appended. When the current
// shard is exhausted it moves to the done list and the next pending shard is driven by the following Step.
// A state sharing no shard with a non-empty topology fails with ErrMalformedCursor. in is never modified.
func (o Orchestrator) Step(ctx context.Context, in State, f Filter) (State, []string, error) {
	shards, err := o.topology.CurrentShards(ctx)
	if err != nil {
		return State{}, nil, &ScanIoError{Err: err}
	}

	var out State
	if in.IsStart() {
		out = startState(shards)
	} else {
		if err := checkOverlap(in, shards); err != nil {
			return State{}, nil, err
		}
		out = reconcile(ctx, in, shards)
	}

	cur, ok := out.Current()
	if !ok {
		return out, nil, nil
	}

	res, err := o.driver.Step(ctx, cur.Shard, cur.Cursor, f)
	if err != nil {
		return State{}, nil, err
	}

	if res.Exhausted {
		out.Pending = out.Pending[1:]
		out.Done = append(out.Done, cur.Shard)
		klog.WithFields(ctx, klog.Fields{
			common.LogFieldShard: cur.Shard,
			"pending":            len(out.Pending)}).Debug("shard exhausted")
	} else {
		out.Pending[0].Cursor = res.Next
	}
	return out, res.Keys, nil
}

func startState(shards []string) State {
	ids := uniqueSorted(shards)
	s := State{Composite: true, Pending: make([]ShardCursor, 0, len(ids))}
	for _, id := range ids {
		s.Pending = append(s.Pending, ShardCursor{Shard: id})
	}
	return s
}

// reconcile returns a copy of in matching the current shard set.
// checkOverlap rejects a resumed state that shares no shard with a non-empty topology. Such a cursor was issued
// against another deployment; reconciling it would silently restart the scan from every current shard.
func checkOverlap(in State, shards []string) error {
	if len(shards) == 0 {
		return nil
	}
	current := make(map[string]struct{}, len(shards))
	for _, id := range shards {
		current[id] = struct{}{}
	}
	ids := make([]string, 0, len(in.Pending)+len(in.Done))
	for _, p := range in.Pending {
		ids = append(ids, p.Shard)
	}
	ids = append(ids, in.Done...)
	for _, id := range ids {
		if _, ok := current[id]; ok {
			return nil
		}
	}
	return malformedf("cursor shards %v unknown to topology", ids)
}

func reconcile(ctx context.Context, in State, shards []string) State {
	current := make(map[string]struct{}, len(shards))
	for _, id := range shards {
		current[id] = struct{}{}
	}

	out := State{
		Composite: true,
		Pending:   make([]ShardCursor, 0, len(in.Pending)),
		Done:      append([]string(nil), in.Done...),
		Reshaped:  in.Reshaped,
	}
	known := make(map[string]struct{}, len(in.Pending)+len(in.Done))
	for _, id := range in.Done {
		known[id] = struct{}{}
	}

	var dropped, added []string
	for _, p := range in.Pending {
		known[p.Shard] = struct{}{}
		if _, ok := current[p.Shard]; !ok {
			dropped = append(dropped, p.Shard)
			continue
		}
		out.Pending = append(out.Pending, p)
	}
	for _, id := range uniqueSorted(shards) {
		if _, ok := known[id]; ok {
			continue
		}
		added = append(added, id)
		out.Pending = append(out.Pending, ShardCursor{Shard: id})
	}

	if len(dropped) > 0 || len(added) > 0 {
		out.Reshaped = true
		kmetric.IncTopologyChange(ctx, len(added), len(dropped))
		klog.Infof(ctx, "Orchestrator.reconcile|shard set changed|added=%v|dropped=%v", added, dropped)
	}
	return out
}

func uniqueSorted(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
