package app

import (
	"fmt"

	"github.com/relaywatch/relaywatch/internal/adapters/render"
	"github.com/relaywatch/relaywatch/internal/adapters/render/markdown"
	"github.com/relaywatch/relaywatch/internal/domain/aggregate"
	"github.com/relaywatch/relaywatch/internal/domain/analytics"
	"github.com/relaywatch/relaywatch/internal/domain/model"
)

// buildJobs creates one render job per output document. Jobs are created
// only after precomputation has frozen the analytics fields, so every view
// reads finished data.
func buildJobs(agg *aggregate.Result, warnings []string) []render.Job {
	ops := agg.SortedOperators()
	jobs := make([]render.Job, 0, len(ops)+agg.ByCountry.Len()+agg.ByProvider.Len()+len(model.Metrics())+1)

	for _, op := range ops {
		jobs = append(jobs, render.Job{
			Kind:     render.KindOperator,
			Key:      op.ContactID,
			Template: "operator",
			Data:     operatorView(agg, op),
		})
	}

	for _, country := range agg.ByCountry.Keys() {
		jobs = append(jobs, render.Job{
			Kind:     render.KindCountry,
			Key:      country,
			Template: "country",
			Data:     groupView(agg, country, agg.ByCountry.Members(country)),
		})
	}

	for _, provider := range agg.ByProvider.Keys() {
		jobs = append(jobs, render.Job{
			Kind:     render.KindProvider,
			Key:      provider,
			Template: "provider",
			Data:     groupView(agg, provider, agg.ByProvider.Members(provider)),
		})
	}

	for _, metric := range model.Metrics() {
		jobs = append(jobs, render.Job{
			Kind:     render.KindLeaderboard,
			Key:      metric,
			Template: "leaderboard",
			Data:     leaderboardView(ops, metric),
		})
	}

	jobs = append(jobs, render.Job{
		Kind:     render.KindSummary,
		Key:      "network",
		Template: "summary",
		Data: markdown.SummaryView{
			Nodes:     len(agg.Nodes),
			Operators: len(agg.Operators),
			Countries: agg.ByCountry.Len(),
			Providers: agg.ByProvider.Len(),
			Excluded:  agg.Excluded,
			Warnings:  warnings,
		},
	})

	return jobs
}

func operatorView(agg *aggregate.Result, op *model.Operator) markdown.OperatorView {
	v := markdown.OperatorView{
		ContactID:   op.ContactID,
		MemberCount: op.MemberCount(),
		Members:     memberViews(agg, op.NodeIDs),
	}
	a := op.Analytics
	if a == nil {
		return v
	}

	v.Bandwidth = a.Display.Bandwidth
	v.Weight = a.Display.Weight
	v.FirstSeen = a.Display.FirstSeen
	v.DiversityScore = a.DiversityScore
	v.RareCountries = a.RareCountries
	v.EligibleMembers = a.EligibleMembers
	v.IneligibleMembers = a.IneligibleMembers

	for _, metric := range model.Metrics() {
		if label, ok := a.Display.RankLabels[metric]; ok {
			v.Ranks = append(v.Ranks, markdown.RankView{Metric: metric, Label: label})
		}
	}
	for _, window := range model.Windows() {
		stat, ok := a.Reliability[window]
		if !ok {
			continue
		}
		v.Reliability = append(v.Reliability, markdown.ReliabilityView{
			Window:   string(window),
			Uptime:   a.Display.Uptime[window],
			Outliers: stat.Outliers,
		})
	}
	return v
}

func groupView(agg *aggregate.Result, key string, memberIDs []string) markdown.GroupView {
	return markdown.GroupView{
		Key:         key,
		MemberCount: len(memberIDs),
		Members:     memberViews(agg, memberIDs),
	}
}

func memberViews(agg *aggregate.Result, ids []string) []markdown.MemberView {
	views := make([]markdown.MemberView, 0, len(ids))
	for _, id := range ids {
		node, ok := agg.Nodes[id]
		if !ok {
			continue
		}
		views = append(views, markdown.MemberView{
			Fingerprint: node.Fingerprint,
			Nickname:    node.Nickname,
			Country:     node.CountryCode,
			Bandwidth:   fmt.Sprintf("%d B/s", node.ObservedBytes),
			Running:     node.Running,
		})
	}
	return views
}

func leaderboardView(ops []*model.Operator, metric string) markdown.LeaderboardView {
	const leaderboardLimit = 100

	view := markdown.LeaderboardView{Metric: metric}
	for i, op := range analytics.Leaderboard(ops, metric, leaderboardLimit) {
		row := markdown.LeaderboardRowView{Rank: i + 1, ContactID: op.ContactID}
		switch metric {
		case model.MetricBandwidth:
			row.Value = fmt.Sprintf("%d B/s", op.TotalObservedBytes)
		case model.MetricWeight:
			row.Value = fmt.Sprintf("%.4f", op.TotalConsensusWeight)
		case model.MetricMembers:
			row.Value = fmt.Sprintf("%d", op.MemberCount())
		case model.MetricDiversity:
			if op.Analytics != nil {
				row.Value = fmt.Sprintf("%d", op.Analytics.DiversityScore)
			}
		}
		view.Rows = append(view.Rows, row)
	}
	return view
}
