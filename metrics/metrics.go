package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LedgerDebits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_debits_total",
		Help: "Token debits by category and result (ok, exhausted)",
	}, []string{"category", "result"})

	LedgerRefills = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_refills_total",
		Help: "Refill boundaries crossed, by cadence",
	}, []string{"cadence"})

	BonusCredited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_bonus_credited_total",
		Help: "Bonus currency credited, by reason",
	}, []string{"reason"})

	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "submissions_total",
		Help: "Submission attempts by category and result",
	}, []string{"category", "result"})

	FeedbackGiven = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedback_total",
		Help: "Feedback attempts by target category and result",
	}, []string{"category", "result"})

	Unlocks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "submission_unlocks_total",
		Help: "Submissions whose feedback became visible, by category",
	}, []string{"category"})

	StreaksCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streaks_completed_total",
		Help: "Weeks completed Monday through Friday",
	})

	StorageRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_retries_total",
		Help: "Transactions retried after a transient storage failure",
	}, []string{"op"})

	NotifyFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_failures_total",
		Help: "Best-effort notifications that failed to dispatch",
	})
)

var registerOnce sync.Once

// MustRegister registers every collector once.
func MustRegister(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(
			LedgerDebits,
			LedgerRefills,
			BonusCredited,
			Submissions,
			FeedbackGiven,
			Unlocks,
			StreaksCompleted,
			StorageRetries,
			NotifyFailures,
		)
	})
}
