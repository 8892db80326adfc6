// Package aggregate builds the canonical entity graph from raw telemetry.
//
// One pass over the raw records normalizes numeric encodings, groups nodes
// into operator buckets by contact identity, and appends every node into the
// categorical indices. After Build returns, the graph is immutable: analytics
// and render workers share it by reference without synchronization.
package aggregate

import (
	"context"
	"fmt"
	"sort"

	"github.com/relaywatch/relaywatch/internal/domain/model"
	"github.com/relaywatch/relaywatch/pkg/logger"
	"github.com/relaywatch/relaywatch/pkg/metrics"
)

// Index dimensions built during the aggregation pass.
const (
	DimCountry  = "country"
	DimProvider = "provider"
	DimContact  = "contact"
	DimPlatform = "platform"
)

// Result is the canonical entity graph for one run.
type Result struct {
	// Nodes is the global node store, keyed by fingerprint.
	Nodes map[string]*model.Node

	// Operators groups nodes by contact identity, keyed by contact id.
	// Nodes without a contact land in the model.UnknownContact bucket.
	Operators map[string]*model.Operator

	// Categorical indices, immutable after Build.
	ByCountry  *Index
	ByProvider *Index
	ByContact  *Index
	ByPlatform *Index

	// Excluded counts raw records dropped for missing mandatory fields.
	Excluded int
}

// SortedOperators returns operators ordered by contact id for deterministic
// iteration.
func (r *Result) SortedOperators() []*model.Operator {
	ops := make([]*model.Operator, 0, len(r.Operators))
	for _, op := range r.Operators {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ContactID < ops[j].ContactID })
	return ops
}

// Build runs the single aggregation pass. Records with missing mandatory
// fields are excluded from the graph but counted; they never abort the run.
// uptimes may be nil when the uptime feed was unavailable.
func Build(ctx context.Context, records []model.NodeRecord, uptimes []model.UptimeRecord, log logger.Logger) (*Result, error) {
	if log == nil {
		log = logger.Get().Named("aggregate")
	}

	uptimeByNode := make(map[string]map[model.UptimeWindow][]int, len(uptimes))
	for _, u := range uptimes {
		if u.Fingerprint == "" {
			continue
		}
		uptimeByNode[u.Fingerprint] = u.Windows
	}

	res := &Result{
		Nodes:      make(map[string]*model.Node, len(records)),
		Operators:  make(map[string]*model.Operator),
		ByCountry:  newIndex(DimCountry),
		ByProvider: newIndex(DimProvider),
		ByContact:  newIndex(DimContact),
		ByPlatform: newIndex(DimPlatform),
	}

	for i := range records {
		rec := &records[i]

		node, err := buildNode(rec, uptimeByNode[rec.Fingerprint])
		if err != nil {
			res.Excluded++
			metrics.RecordNodeExcluded()
			log.Debug(ctx, "excluding raw record",
				logger.String("fingerprint", rec.Fingerprint), logger.Error(err))
			continue
		}
		if _, dup := res.Nodes[node.Fingerprint]; dup {
			res.Excluded++
			metrics.RecordNodeExcluded()
			continue
		}
		res.Nodes[node.Fingerprint] = node

		// Contact bucket: exactly one operator grouping per node.
		contact := node.ContactID
		if contact == "" {
			contact = model.UnknownContact
		}
		op, ok := res.Operators[contact]
		if !ok {
			op = &model.Operator{
				ContactID:  contact,
				FlagCounts: make(map[model.Flag]int),
			}
			res.Operators[contact] = op
		}
		accumulate(op, node)

		// Index appends happen in the same pass, amortizing later
		// "how many nodes have property X" queries to O(1) lookups.
		res.ByCountry.add(node.CountryCode, node.Fingerprint)
		res.ByProvider.add(node.ProviderID, node.Fingerprint)
		res.ByContact.add(contact, node.Fingerprint)
		res.ByPlatform.add(node.Platform, node.Fingerprint)
	}

	finalize(res)

	metrics.UpdateNodesAggregated(len(res.Nodes))
	metrics.UpdateOperatorsTotal(len(res.Operators))
	metrics.UpdateIndexSize(DimCountry, res.ByCountry.Len())
	metrics.UpdateIndexSize(DimProvider, res.ByProvider.Len())
	metrics.UpdateIndexSize(DimContact, res.ByContact.Len())
	metrics.UpdateIndexSize(DimPlatform, res.ByPlatform.Len())

	log.Info(ctx, "aggregation pass complete",
		logger.Int("nodes", len(res.Nodes)),
		logger.Int("operators", len(res.Operators)),
		logger.Int("excluded", res.Excluded))

	return res, nil
}

// buildNode validates mandatory fields and normalizes raw encodings.
func buildNode(rec *model.NodeRecord, rawUptime map[model.UptimeWindow][]int) (*model.Node, error) {
	if rec.Fingerprint == "" {
		return nil, fmt.Errorf("missing fingerprint")
	}
	firstSeen, err := model.ParseFeedTime(rec.FirstSeen)
	if err != nil {
		return nil, fmt.Errorf("first_seen: %w", err)
	}
	lastSeen, err := model.ParseFeedTime(rec.LastSeen)
	if err != nil {
		return nil, fmt.Errorf("last_seen: %w", err)
	}
	if rec.ObservedBytes < 0 {
		return nil, fmt.Errorf("negative observed bandwidth")
	}

	flags := make([]model.Flag, 0, len(rec.Flags))
	for _, f := range rec.Flags {
		flags = append(flags, model.Flag(f))
	}

	node := &model.Node{
		Fingerprint:     rec.Fingerprint,
		Nickname:        rec.Nickname,
		ObservedBytes:   rec.ObservedBytes,
		ConsensusWeight: rec.ConsensusWeight,
		Flags:           flags,
		CountryCode:     rec.CountryCode,
		ProviderID:      rec.ProviderID,
		ContactID:       rec.ContactID,
		Platform:        rec.Platform,
		FirstSeen:       firstSeen,
		LastSeen:        lastSeen,
		Addresses:       rec.Addresses,
		Running:         rec.Running,
	}

	if len(rawUptime) > 0 {
		node.Uptime = make(map[model.UptimeWindow][]float64, len(rawUptime))
		for window, samples := range rawUptime {
			normalized := make([]float64, len(samples))
			for i, s := range samples {
				normalized[i] = model.NormalizeUptimeSample(s)
			}
			node.Uptime[window] = normalized
		}
	}

	return node, nil
}

// accumulate folds one node into its operator grouping.
func accumulate(op *model.Operator, node *model.Node) {
	op.NodeIDs = append(op.NodeIDs, node.Fingerprint)
	op.TotalObservedBytes += node.ObservedBytes
	op.TotalConsensusWeight += node.ConsensusWeight
	for _, f := range node.Flags {
		op.FlagCounts[f]++
	}
	if op.FirstSeen.IsZero() || node.FirstSeen.Before(op.FirstSeen) {
		op.FirstSeen = node.FirstSeen
	}
	op.Countries = appendDistinct(op.Countries, node.CountryCode)
	op.Providers = appendDistinct(op.Providers, node.ProviderID)
}

// finalize seals the graph: indices freeze, set projections sort, member
// lists sort for reproducible downstream iteration.
func finalize(res *Result) {
	res.ByCountry.freeze()
	res.ByProvider.freeze()
	res.ByContact.freeze()
	res.ByPlatform.freeze()
	for _, op := range res.Operators {
		sort.Strings(op.NodeIDs)
		sort.Strings(op.Countries)
		sort.Strings(op.Providers)
	}
}

func appendDistinct(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}
