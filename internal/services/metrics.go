package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	issuesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civictrack_issues_created_total",
		Help: "Issues created by category and classification origin",
	}, []string{"category", "origin"})

	issuesFlaggedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civictrack_issues_flagged_total",
		Help: "Issues created with a low-confidence classification",
	})

	issueMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civictrack_issue_mutations_total",
		Help: "Issue mutations by action and outcome",
	}, []string{"action", "outcome"})
)

// Mutation outcomes.
const (
	outcomeOK       = "ok"
	outcomeDenied   = "denied"
	outcomeRejected = "rejected"
)

func recordMutation(action string, err error) {
	outcome := outcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrUnauthorized):
		outcome = outcomeDenied
	default:
		outcome = outcomeRejected
	}
	issueMutationsTotal.WithLabelValues(action, outcome).Inc()
}
