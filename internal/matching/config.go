package matching

// Weights defines the coefficients of the deterministic pre-score. The exact
// values are tunable deployment configuration, not a contract: only the
// [0,100] range, purity and the ordering rules are guaranteed.
type Weights struct {
	// Rating weighs the normalized average rating (0..10 scaled to 0..100).
	Rating float64 `mapstructure:"rating" json:"rating"`
	// Recommendation weighs the recommendation percentage (0..100).
	Recommendation float64 `mapstructure:"recommendation" json:"recommendation"`
	// Availability weighs the availability bonus/penalty component.
	Availability float64 `mapstructure:"availability" json:"availability"`
	// ConfidencePivot is the completed-project count at which the confidence
	// damping reaches one half. Vendors with fewer projects are pulled toward
	// the neutral baseline so a single 10/10 rating does not dominate.
	ConfidencePivot float64 `mapstructure:"confidence-pivot" json:"confidence_pivot"`
}

// DefaultWeights returns the baseline coefficients.
func DefaultWeights() Weights {
	return Weights{
		Rating:          0.55,
		Recommendation:  0.30,
		Availability:    0.15,
		ConfidencePivot: 3,
	}
}

const (
	// DefaultTopK is how many candidates are sent to the model for
	// qualitative ranking.
	DefaultTopK = 8
	// DefaultRemainingCap bounds the remaining-vendors list in responses.
	DefaultRemainingCap = 20
)
