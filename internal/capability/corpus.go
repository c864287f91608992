package capability

import (
	"sort"
	"strings"

	"github.com/lumastack/retail-copilot/internal/retrieval"
)

// corpusEntry is one passage of the built-in retail knowledge base, used when
// no retrieval index is configured.
type corpusEntry struct {
	ID       string
	Keywords []string
	Content  string
}

var staticCorpus = []corpusEntry{
	{
		ID:       "handbook:returns-policy",
		Keywords: []string{"return", "refund", "exchange", "policy"},
		Content:  "Standard return window is 30 days from delivery with receipt. Items must be unworn with tags attached. Refunds go to the original payment method within 5-7 business days; exchanges ship free. Final-sale and clearance items are excluded.",
	},
	{
		ID:       "handbook:loyalty-program",
		Keywords: []string{"loyalty", "rewards", "points", "member"},
		Content:  "The loyalty program awards 1 point per dollar, with double points during member weeks. 500 points convert to a $5 reward. Tier upgrades at $500 and $1,500 annual spend unlock early access and free expedited shipping.",
	},
	{
		ID:       "handbook:seasonality",
		Keywords: []string{"season", "holiday", "quarter", "trend", "peak"},
		Content:  "Revenue typically peaks in Q4 with 35-40% of annual sales. Back-to-school drives an August spike in apparel. Post-holiday January sees elevated return volume and markdown-driven traffic.",
	},
	{
		ID:       "handbook:inventory-practice",
		Keywords: []string{"inventory", "stock", "replenish", "warehouse", "sku"},
		Content:  "Replenishment targets 4-6 weeks of cover for core SKUs. Items below a 2-week cover threshold trigger automatic reorder; seasonal lines are bought once with markdown exit plans rather than replenished.",
	},
	{
		ID:       "handbook:pricing-promotions",
		Keywords: []string{"price", "pricing", "promotion", "discount", "markdown"},
		Content:  "Promotions are capped at 30% off for in-season lines. Markdown cadence for seasonal exits is 20/40/60 at four-week intervals. Price matching applies to identical SKUs from approved competitors.",
	},
	{
		ID:       "handbook:customer-segments",
		Keywords: []string{"segment", "customer", "cohort", "retention", "churn"},
		Content:  "Customers are segmented as new, occasional, loyal, and at-risk based on recency and frequency. Loyal customers (3+ purchases in 6 months) generate roughly 60% of revenue. At-risk reactivation campaigns run monthly.",
	},
}

// searchCorpus scores static passages by keyword overlap with the query and
// returns the best matches as passages, mirroring the retrieval index shape.
func searchCorpus(query string, topK int) []retrieval.Passage {
	lowered := strings.ToLower(query)

	type scored struct {
		entry corpusEntry
		hits  int
	}
	var matches []scored
	for _, e := range staticCorpus {
		hits := 0
		for _, kw := range e.Keywords {
			if strings.Contains(lowered, kw) {
				hits++
			}
		}
		if hits > 0 {
			matches = append(matches, scored{entry: e, hits: hits})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].hits > matches[j].hits
	})

	if len(matches) == 0 {
		// No keyword overlap: hand back the seasonality and segments primers
		// so the model still has domain grounding to work with.
		matches = []scored{
			{entry: staticCorpus[2], hits: 0},
			{entry: staticCorpus[5], hits: 0},
		}
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}

	passages := make([]retrieval.Passage, 0, len(matches))
	for _, m := range matches {
		passages = append(passages, retrieval.Passage{
			ID:      m.entry.ID,
			Content: m.entry.Content,
			Score:   float32(m.hits),
		})
	}
	return passages
}
