package analytics

import (
	"sort"

	"github.com/relaywatch/relaywatch/internal/domain/model"
)

// Rarity scoring: each country present among an operator's nodes gets a
// composite of four independent factors in [0,1], combined 4:3:2:1. A
// country is rare once the composite crosses the threshold; the operator's
// diversity score counts its distinct rare countries.
const (
	weightOperatorCount = 4
	weightNetworkShare  = 3
	weightGeopolitical  = 2
	weightRegion        = 1

	// MaxCountryScore is the composite ceiling, every factor at 1.
	MaxCountryScore = weightOperatorCount + weightNetworkShare + weightGeopolitical + weightRegion

	// operatorCountCap: with this many relays or fewer in a country, the
	// operator-count factor saturates at 1.
	operatorCountCap = 2
)

// Network-share steps: a smaller share of total relays scores higher.
var shareSteps = []struct {
	below  float64
	factor float64
}{
	{below: 0.005, factor: 1.0},
	{below: 0.01, factor: 0.8},
	{below: 0.02, factor: 0.5},
	{below: 0.05, factor: 0.2},
}

// geopoliticalWeights classifies countries where volunteer relays are
// structurally hard to run. Unlisted countries take the default.
var geopoliticalWeights = map[string]float64{
	"by": 1.0, "cn": 1.0, "cu": 1.0, "eg": 1.0, "ir": 1.0,
	"kz": 1.0, "ru": 1.0, "sa": 1.0, "sy": 1.0, "tr": 1.0,
	"ve": 1.0, "vn": 1.0,
	"in": 0.6, "id": 0.6, "ke": 0.6, "ng": 0.6, "pk": 0.6,
	"th": 0.6, "ua": 0.6,
}

const defaultGeopoliticalWeight = 0.1

// regionWeights scores regional underrepresentation by continent bucket.
var regionWeights = map[string]float64{
	"africa":        1.0,
	"south-america": 0.8,
	"asia":          0.5,
	"oceania":       0.4,
	"north-america": 0.1,
	"europe":        0.1,
}

// countryRegions maps country codes to region buckets; unlisted codes take
// the default region weight.
var countryRegions = map[string]string{
	"dz": "africa", "eg": "africa", "gh": "africa", "ke": "africa",
	"ma": "africa", "ng": "africa", "tn": "africa", "tz": "africa",
	"ug": "africa", "za": "africa", "zw": "africa",
	"ar": "south-america", "bo": "south-america", "br": "south-america",
	"cl": "south-america", "co": "south-america", "ec": "south-america",
	"pe": "south-america", "uy": "south-america", "ve": "south-america",
	"cn": "asia", "hk": "asia", "id": "asia", "il": "asia", "in": "asia",
	"ir": "asia", "jp": "asia", "kr": "asia", "kz": "asia", "my": "asia",
	"pk": "asia", "sa": "asia", "sg": "asia", "sy": "asia", "th": "asia",
	"tr": "asia", "tw": "asia", "vn": "asia",
	"au": "oceania", "fj": "oceania", "nz": "oceania",
	"ca": "north-america", "mx": "north-america", "us": "north-america",
}

const defaultRegionWeight = 0.1

// CountryScore computes the composite rarity score for one country as seen
// by one operator. operatorRelays is the operator's relay count there,
// countryRelays the network-wide count, networkTotal the network relay
// count. Decreasing either count never decreases the score.
func CountryScore(operatorRelays, countryRelays, networkTotal int, country string) float64 {
	return weightOperatorCount*inverseCapped(operatorRelays) +
		weightNetworkShare*shareStep(countryRelays, networkTotal) +
		weightGeopolitical*geopoliticalWeight(country) +
		weightRegion*regionWeight(country)
}

// inverseCapped is 1 for operatorCountCap relays or fewer and decays
// inversely above it: concentrating many relays in one rare country earns no
// extra credit.
func inverseCapped(relays int) float64 {
	if relays <= operatorCountCap {
		return 1
	}
	return float64(operatorCountCap) / float64(relays)
}

// shareStep maps the country's share of total network relays onto the step
// table; a share past the last step scores zero.
func shareStep(countryRelays, networkTotal int) float64 {
	if networkTotal <= 0 || countryRelays <= 0 {
		return 1
	}
	share := float64(countryRelays) / float64(networkTotal)
	for _, step := range shareSteps {
		if share < step.below {
			return step.factor
		}
	}
	return 0
}

func geopoliticalWeight(country string) float64 {
	if w, ok := geopoliticalWeights[country]; ok {
		return w
	}
	return defaultGeopoliticalWeight
}

func regionWeight(country string) float64 {
	region, ok := countryRegions[country]
	if !ok {
		return defaultRegionWeight
	}
	return regionWeights[region]
}

// computeRarity returns the operator's rare countries (sorted) and its
// diversity score, the count of distinct rare countries.
func computeRarity(shared *Shared, op *model.Operator) ([]string, int) {
	operatorByCountry := make(map[string]int)
	for _, id := range op.NodeIDs {
		node, ok := shared.Nodes[id]
		if !ok || node.CountryCode == "" {
			continue
		}
		operatorByCountry[node.CountryCode]++
	}

	var rare []string
	for country, count := range operatorByCountry {
		score := CountryScore(count, shared.CountryRelays[country], shared.TotalRelays, country)
		if score >= shared.RarityThreshold {
			rare = append(rare, country)
		}
	}
	sort.Strings(rare)
	return rare, len(rare)
}
