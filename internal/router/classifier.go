package router

import "strings"

// Classifier maps free text to a Category by keyword counting.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	rules []CategoryRule
}

// NewClassifier builds a classifier over rules, in priority order.
// Keywords are matched case-insensitively; empty keywords are ignored.
// General is only ever the fallback, so keywords listed under it are dropped.
func NewClassifier(rules []CategoryRule) *Classifier {
	c := &Classifier{rules: make([]CategoryRule, 0, len(rules))}
	for _, r := range rules {
		kw := make([]string, 0, len(r.Keywords))
		if r.Category == General {
			c.rules = append(c.rules, CategoryRule{Category: General, Keywords: kw})
			continue
		}
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		c.rules = append(c.rules, CategoryRule{Category: r.Category, Keywords: kw})
	}
	return c
}

// Score returns the number of keywords of each category found in query.
func (c *Classifier) Score(query string) map[Category]int {
	q := strings.ToLower(query)
	scores := make(map[Category]int, len(c.rules))
	for _, r := range c.rules {
		n := 0
		for _, k := range r.Keywords {
			if strings.Contains(q, k) {
				n++
			}
		}
		scores[r.Category] = n
	}
	return scores
}

// Classify returns the category with the strictly highest score. Ties go to
// the category declared first; a zero best score yields General.
func (c *Classifier) Classify(query string) Category {
	scores := c.Score(query)
	best, bestScore := General, 0
	for _, r := range c.rules {
		if s := scores[r.Category]; s > bestScore {
			best, bestScore = r.Category, s
		}
	}
	return best
}

// Categories lists the known categories in priority order.
func (c *Classifier) Categories() []Category {
	out := make([]Category, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.Category)
	}
	return out
}
