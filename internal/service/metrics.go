package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Domain Events
// =============================================================================

var (
	// signInsTotal counts successful sign-ins of any kind (email, GitHub, sign-up).
	signInsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pickleit",
		Subsystem: "auth",
		Name:      "sign_ins_total",
		Help:      "Total successful sign-ins",
	})

	// achievementsAwarded counts stored awards.
	// Labels: achievement (catalog id)
	achievementsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pickleit",
		Subsystem: "progress",
		Name:      "achievements_awarded_total",
		Help:      "Total achievements awarded",
	}, []string{"achievement"})

	// achievementDuplicates counts award attempts that lost to an existing row.
	achievementDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pickleit",
		Subsystem: "progress",
		Name:      "achievement_duplicates_total",
		Help:      "Total award inserts rejected as duplicates",
	})

	// pointsAdded sums every atomic point increment.
	pointsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pickleit",
		Subsystem: "progress",
		Name:      "points_added_total",
		Help:      "Total points credited to users",
	})

	// savedToggles counts bookmark writes.
	// Labels: action (save, unsave)
	savedToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pickleit",
		Subsystem: "progress",
		Name:      "saved_toggles_total",
		Help:      "Total saved-method writes",
	}, []string{"action"})

	// completions counts completion upserts and deletes.
	// Labels: action (complete, uncomplete)
	completions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pickleit",
		Subsystem: "progress",
		Name:      "completions_total",
		Help:      "Total completion writes",
	}, []string{"action"})

	// imageUploads counts method image replacements.
	// Labels: status (success, error)
	imageUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pickleit",
		Subsystem: "methods",
		Name:      "image_uploads_total",
		Help:      "Total method image uploads",
	}, []string{"status"})
)
