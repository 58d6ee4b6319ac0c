// Package trust computes the composite trust score that decides how much
// automation an incident is eligible for.
package trust

// Component weights. They are convex: W1+W2+W3+W4 = 1.0, so any inputs
// in [0,1] yield a score in [0,1].
const (
	W1 = 0.50 // classifier confidence
	W2 = 0.15 // source/behavioral reliability
	W3 = 0.25 // historical accuracy
	W4 = 0.10 // environmental context
)

// Decision bands, highest automation first.
const (
	BandAutoExecute = "auto_execute"
	BandConditional = "conditional"
	BandHumanReview = "human_review"
	BandSuppress    = "suppress"
)

// Band thresholds (closed-open except the top).
const (
	ThresholdAutoExecute = 0.90
	ThresholdConditional = 0.70
	ThresholdHumanReview = 0.50
)

// Environmental context factors observed by the collector.
const (
	EnvNormal      = 1.0
	EnvOffHours    = 0.8
	EnvMaintenance = 0.7
	EnvMassFailure = 0.6
)

// Floors applied by upstream signal collection when data is missing.
const (
	BehaviorFloor  = 0.3
	HistoryUnknown = 0.5
)

// Score computes T = W1*C + W2*B + W3*H + W4*E.
func Score(c, b, h, e float64) float64 {
	return W1*c + W2*b + W3*h + W4*e
}

// Band maps a trust score to its decision band.
func Band(t float64) string {
	switch {
	case t >= ThresholdAutoExecute:
		return BandAutoExecute
	case t >= ThresholdConditional:
		return BandConditional
	case t >= ThresholdHumanReview:
		return BandHumanReview
	default:
		return BandSuppress
	}
}

// Anomalous reports whether the classifier confidence itself is suspect.
// A classifier reporting exactly 1.0 claims zero uncertainty, which no
// real classifier has; such results are routed to human review no matter
// how high the composite score lands.
func Anomalous(confidence float64) bool {
	return confidence == 1.0
}

// Decide combines Score, Band and the confidence-anomaly override.
func Decide(c, b, h, e float64) (t float64, band string) {
	t = Score(c, b, h, e)
	if Anomalous(c) {
		return t, BandHumanReview
	}
	return t, Band(t)
}
