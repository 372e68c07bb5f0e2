package brief

import (
	"math"
	"sort"
)

// StyleScore is the aggregated preference for one style.
type StyleScore struct {
	Style   string  `json:"style"`
	Weight  float64 `json:"weight"`  // sum of option weights picked for this style
	Percent int     `json:"percent"` // share of the total weight, rounded
}

// Score sums style weights of every picked option and ranks styles by weight.
// ties are ordered by style name. text answers and unknown options carry no weight.
// returns nil when nothing weighted was picked.
func Score(q *Questionnaire, a Answers) []StyleScore {
	totals := map[string]float64{}
	var sum float64
	for _, qu := range q.Questions() {
		if qu.Kind == KindText {
			continue
		}
		for _, v := range a[qu.ID] {
			opt, ok := qu.Option(v)
			if !ok {
				continue
			}
			for style, w := range opt.Styles {
				if w <= 0 {
					continue
				}
				totals[style] += w
				sum += w
			}
		}
	}
	if sum == 0 {
		return nil
	}

	res := make([]StyleScore, 0, len(totals))
	for style, w := range totals {
		res = append(res, StyleScore{Style: style, Weight: w, Percent: int(math.Round(w / sum * 100))})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Weight != res[j].Weight {
			return res[i].Weight > res[j].Weight
		}
		return res[i].Style < res[j].Style
	})
	return res
}

// Top returns up to n leading styles.
func Top(scores []StyleScore, n int) []StyleScore {
	if n >= len(scores) {
		return scores
	}
	return scores[:n]
}
