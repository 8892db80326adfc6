package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/relaywatch/relaywatch/internal/domain/aggregate"
	"github.com/relaywatch/relaywatch/internal/domain/model"
	"github.com/relaywatch/relaywatch/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

// buildGraph assembles a deterministic entity graph: count operators, two
// members each, uptime means spread across the range.
func buildGraph(t *testing.T, count int) *aggregate.Result {
	t.Helper()

	countries := []string{"de", "fr", "us", "nl", "ir", "br"}
	var (
		records []model.NodeRecord
		uptimes []model.UptimeRecord
	)
	for i := 0; i < count; i++ {
		contact := fmt.Sprintf("op-%03d@example.org", i)
		for m := 0; m < 2; m++ {
			fp := fmt.Sprintf("FP-%03d-%d", i, m)
			records = append(records, model.NodeRecord{
				Fingerprint:     fp,
				Nickname:        fp,
				ObservedBytes:   int64((i + 1) * 1000),
				ConsensusWeight: float64(i+1) / 10_000,
				Flags:           []string{"Running"},
				CountryCode:     countries[(i+m)%len(countries)],
				ProviderID:      fmt.Sprintf("AS%d", i%5),
				ContactID:       contact,
				Platform:        "Tor 0.4.8 on Linux",
				FirstSeen:       "2020-01-01 00:00:00",
				LastSeen:        "2024-06-01 00:00:00",
				Running:         true,
			})
			uptimes = append(uptimes, model.UptimeRecord{
				Fingerprint: fp,
				Windows: map[model.UptimeWindow][]int{
					model.WindowMonth: {((i*7 + m*3) % 900) + 50},
				},
			})
		}
	}

	res, err := aggregate.Build(context.Background(), records, uptimes, nil)
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}
	return res
}

func TestPercentileRank(t *testing.T) {
	Convey("Given 100 sorted operator means", t, func() {
		means := make([]float64, 100)
		for i := range means {
			means[i] = float64(i + 1)
		}

		Convey("The median mean ranks near 50", func() {
			So(percentileRank(means, 50), ShouldEqual, 50)
		})

		Convey("The top mean ranks 100", func() {
			So(percentileRank(means, 100), ShouldEqual, 100)
		})

		Convey("The bottom mean ranks 1", func() {
			So(percentileRank(means, 1), ShouldEqual, 1)
		})

		Convey("A mean below every operator ranks 0", func() {
			So(percentileRank(means, 0.5), ShouldEqual, 0)
		})

		Convey("Empty input ranks 0", func() {
			So(percentileRank(nil, 42), ShouldEqual, 0)
		})
	})
}

func TestCountryScoreMonotonic(t *testing.T) {
	Convey("Given the composite rarity score", t, func() {
		const networkTotal = 10_000

		Convey("Decreasing the operator's relay count never decreases the score", func() {
			for _, country := range []string{"de", "ir", "br", "zz"} {
				prev := CountryScore(10, 100, networkTotal, country)
				for relays := 9; relays >= 1; relays-- {
					score := CountryScore(relays, 100, networkTotal, country)
					So(score, ShouldBeGreaterThanOrEqualTo, prev)
					prev = score
				}
			}
		})

		Convey("Decreasing the country's network count never decreases the score", func() {
			for _, country := range []string{"de", "ir", "br", "zz"} {
				prev := CountryScore(1, 600, networkTotal, country)
				for relays := 500; relays >= 1; relays -= 50 {
					score := CountryScore(1, relays, networkTotal, country)
					So(score, ShouldBeGreaterThanOrEqualTo, prev)
					prev = score
				}
			}
		})

		Convey("The score never exceeds the ceiling", func() {
			So(CountryScore(1, 1, networkTotal, "ir"), ShouldBeLessThanOrEqualTo, MaxCountryScore)
		})

		Convey("A lone relay in a hard country scores rare, a common one does not", func() {
			rareScore := CountryScore(1, 10, networkTotal, "ir")
			So(rareScore, ShouldBeGreaterThanOrEqualTo, defaultRarityThreshold)

			commonScore := CountryScore(1, 3000, networkTotal, "de")
			So(commonScore, ShouldBeLessThan, defaultRarityThreshold)
		})

		Convey("Concentrating relays in one country earns no extra credit", func() {
			So(inverseCapped(1), ShouldEqual, 1)
			So(inverseCapped(2), ShouldEqual, 1)
			So(inverseCapped(4), ShouldEqual, 0.5)
		})
	})
}

func TestWindowOutliers(t *testing.T) {
	Convey("Given an operator with member uptime histories", t, func() {
		newShared := func(samples map[string][]float64) (*Shared, *model.Operator) {
			nodes := make(map[string]*model.Node)
			op := &model.Operator{ContactID: "op@example.org"}
			for id, s := range samples {
				nodes[id] = &model.Node{
					Fingerprint: id,
					Uptime:      map[model.UptimeWindow][]float64{model.WindowMonth: s},
				}
				op.NodeIDs = append(op.NodeIDs, id)
			}
			return &Shared{Nodes: nodes, OutlierMultiple: 1.0}, op
		}

		Convey("A member far from the operator mean is flagged", func() {
			shared, op := newShared(map[string][]float64{
				"A": {95}, "B": {96}, "C": {94}, "D": {10},
			})
			opMean := (95.0 + 96 + 94 + 10) / 4
			outliers := windowOutliers(shared, op, model.WindowMonth, opMean)
			So(outliers, ShouldResemble, []string{"D"})
		})

		Convey("A single-member operator flags nothing", func() {
			shared, op := newShared(map[string][]float64{"A": {10}})
			So(windowOutliers(shared, op, model.WindowMonth, 10), ShouldBeNil)
		})

		Convey("Identical members flag nothing", func() {
			shared, op := newShared(map[string][]float64{
				"A": {90}, "B": {90}, "C": {90},
			})
			So(windowOutliers(shared, op, model.WindowMonth, 90), ShouldBeNil)
		})
	})
}

func TestAssignRanks(t *testing.T) {
	Convey("Given operators with known metric values", t, func() {
		ops := []*model.Operator{
			{ContactID: "b@example.org", TotalObservedBytes: 500, Analytics: defaultAnalytics()},
			{ContactID: "a@example.org", TotalObservedBytes: 500, Analytics: defaultAnalytics()},
			{ContactID: "c@example.org", TotalObservedBytes: 900, Analytics: defaultAnalytics()},
		}

		Convey("When ranks are assigned", func() {
			assignRanks(ops)

			Convey("Then ordering is descending with contact tie-break", func() {
				So(ops[2].Analytics.Ranks[model.MetricBandwidth], ShouldEqual, 1)
				So(ops[1].Analytics.Ranks[model.MetricBandwidth], ShouldEqual, 2)
				So(ops[0].Analytics.Ranks[model.MetricBandwidth], ShouldEqual, 3)
			})
		})

		Convey("When a leaderboard is cut", func() {
			top := Leaderboard(ops, model.MetricBandwidth, 2)
			So(top, ShouldHaveLength, 2)
			So(top[0].ContactID, ShouldEqual, "c@example.org")
			So(top[1].ContactID, ShouldEqual, "a@example.org")
		})
	})
}

func TestPrecomputeStrategies(t *testing.T) {
	Convey("Given the same graph computed by both dispatch strategies", t, func() {
		sequential := buildGraph(t, 80)
		parallel := buildGraph(t, 80)

		seqEngine := New(WithDisableParallelism(true))
		parEngine := New(WithParallelThreshold(1), WithWorkers(4))

		So(seqEngine.Precompute(context.Background(), sequential), ShouldBeNil)
		So(parEngine.Precompute(context.Background(), parallel), ShouldBeNil)

		Convey("Then every operator's analytics match exactly", func() {
			for contact, seqOp := range sequential.Operators {
				parOp := parallel.Operators[contact]
				So(parOp, ShouldNotBeNil)
				So(parOp.Analytics, ShouldResemble, seqOp.Analytics)
			}
		})
	})

	Convey("Given a graph below the parallel threshold", t, func() {
		small := buildGraph(t, 8)
		engine := New(WithParallelThreshold(64))

		Convey("Then the sequential path still fills every operator", func() {
			So(engine.Precompute(context.Background(), small), ShouldBeNil)
			for _, op := range small.Operators {
				So(op.Analytics, ShouldNotBeNil)
				So(op.Analytics.Display.RankLabels[model.MetricBandwidth], ShouldNotBeEmpty)
			}
		})
	})

	Convey("Given corrupt shared state", t, func() {
		engine := New()
		err := engine.Precompute(context.Background(), &aggregate.Result{})
		So(errors.Is(err, ErrCorruptState), ShouldBeTrue)
	})
}

func TestComputeOnePanicContainment(t *testing.T) {
	Convey("Given a poisoned node store", t, func() {
		op := &model.Operator{ContactID: "op@example.org", NodeIDs: []string{"X"}}
		shared := &Shared{
			Nodes:         map[string]*model.Node{"X": nil},
			CountryRelays: map[string]int{},
			OperatorMeans: map[string]map[model.UptimeWindow]float64{},
			SortedMeans:   map[model.UptimeWindow][]float64{},
			Eligibility:   map[string]model.Eligibility{},
		}
		engine := New()

		Convey("When one operator's computation panics", func() {
			res := engine.computeOne(context.Background(), shared, op)

			Convey("Then the panic surfaces as a compute error, not a crash", func() {
				So(errors.Is(res.err, ErrComputeFailed), ShouldBeTrue)
				So(res.analytics, ShouldBeNil)
			})
		})
	})
}

// staticEvaluator returns a fixed verdict per fingerprint.
type staticEvaluator struct {
	verdicts map[string]bool
	failFor  string
}

func (e *staticEvaluator) Evaluate(_ context.Context, node *model.Node) (model.Eligibility, error) {
	if node.Fingerprint == e.failFor {
		return model.Eligibility{}, errors.New("threshold service unreachable")
	}
	return model.Eligibility{
		Fingerprint: node.Fingerprint,
		Eligible:    e.verdicts[node.Fingerprint],
	}, nil
}

func TestEligibilityCounts(t *testing.T) {
	Convey("Given an evaluator with mixed verdicts", t, func() {
		graph := buildGraph(t, 2)
		ev := &staticEvaluator{
			verdicts: map[string]bool{
				"FP-000-0": true, "FP-000-1": false,
				"FP-001-0": true, "FP-001-1": true,
			},
		}
		engine := New(WithEvaluator(ev))

		Convey("When precomputation runs", func() {
			So(engine.Precompute(context.Background(), graph), ShouldBeNil)

			Convey("Then per-operator verdict counts are recorded", func() {
				op0 := graph.Operators["op-000@example.org"]
				So(op0.Analytics.EligibleMembers, ShouldEqual, 1)
				So(op0.Analytics.IneligibleMembers, ShouldEqual, 1)

				op1 := graph.Operators["op-001@example.org"]
				So(op1.Analytics.EligibleMembers, ShouldEqual, 2)
				So(op1.Analytics.IneligibleMembers, ShouldEqual, 0)
			})
		})
	})

	Convey("Given an evaluator that fails for one node", t, func() {
		graph := buildGraph(t, 1)
		ev := &staticEvaluator{
			verdicts: map[string]bool{"FP-000-1": true},
			failFor:  "FP-000-0",
		}
		engine := New(WithEvaluator(ev))

		Convey("Then the failed node simply carries no verdict", func() {
			So(engine.Precompute(context.Background(), graph), ShouldBeNil)
			op := graph.Operators["op-000@example.org"]
			So(op.Analytics.EligibleMembers, ShouldEqual, 1)
			So(op.Analytics.IneligibleMembers, ShouldEqual, 0)
		})
	})
}

func TestProjectionFormatting(t *testing.T) {
	Convey("Given display projections", t, func() {
		Convey("Bandwidth uses binary units", func() {
			So(formatBandwidth(512), ShouldEqual, "512.00 B/s")
			So(formatBandwidth(2048), ShouldEqual, "2.00 KiB/s")
			So(formatBandwidth(3*1024*1024), ShouldEqual, "3.00 MiB/s")
		})

		Convey("Weight renders as a percentage", func() {
			So(formatWeight(0.0173), ShouldEqual, "1.73%")
		})
	})
}
