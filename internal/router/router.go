package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nidhogg/modelhub/internal/provider"
	"go.uber.org/zap"
)

// ErrNoProviderAvailable is returned when the availability set is empty.
var ErrNoProviderAvailable = errors.New("no AI providers available, configure at least one API key")

// Selection is the outcome of routing one query.
type Selection struct {
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Category Category `json:"category"`
}

// Router picks a provider for a query from a classifier, a static priority
// table and the caller's availability set. It holds no mutable state.
type Router struct {
	classifier *Classifier
	priorities map[Category][]string
	catalog    map[string]provider.Descriptor
	logger     *zap.Logger
}

// New creates a Router. catalog maps provider IDs to their descriptors and is
// used for default models and explanations.
func New(classifier *Classifier, priorities map[Category][]string,
	catalog map[string]provider.Descriptor, logger *zap.Logger) *Router {
	return &Router{
		classifier: classifier,
		priorities: priorities,
		catalog:    catalog,
		logger:     logger,
	}
}

// Classifier returns the classifier the router consults.
func (r *Router) Classifier() *Classifier { return r.classifier }

// Route selects a provider for query. preferred wins whenever it is in
// available; otherwise the category's priority list is walked, and the
// first available provider is the last resort.
func (r *Router) Route(query, preferred string, available []string) (Selection, error) {
	category := r.classifier.Classify(query)
	if len(available) == 0 {
		return Selection{Category: category}, ErrNoProviderAvailable
	}

	set := make(map[string]bool, len(available))
	for _, id := range available {
		set[id] = true
	}

	pick := func(id, reason string) Selection {
		sel := Selection{Provider: id, Model: r.catalog[id].DefaultModel(), Category: category}
		r.logger.Info("routed query",
			zap.String("category", string(category)),
			zap.String("provider", sel.Provider),
			zap.String("model", sel.Model),
			zap.String("reason", reason))
		return sel
	}

	if preferred != "" && set[preferred] {
		return pick(preferred, "preferred"), nil
	}
	for _, id := range r.priorities[category] {
		if set[id] {
			return pick(id, "priority"), nil
		}
	}
	return pick(available[0], "fallback"), nil
}

// Explain describes a routing decision using the provider's first three strengths.
func (r *Router) Explain(providerID string, category Category) string {
	desc, ok := r.catalog[providerID]
	name := providerID
	var strengths []string
	if ok {
		name = desc.Name
		strengths = desc.Strengths
	}
	if len(strengths) > 3 {
		strengths = strengths[:3]
	}
	return fmt.Sprintf("Query classified as '%s'. Routed to %s (strengths: %s)",
		category, name, strings.Join(strengths, ", "))
}
