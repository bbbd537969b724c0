package domain

// ComputeTrustScore returns the mean of the non-nil boolean signals, or nil
// if both are nil, per §3's "trust_score is null when both input signals
// are null".
func ComputeTrustScore(signals ...*bool) *float64 {
	var sum, count float64
	for _, s := range signals {
		if s == nil {
			continue
		}
		count++
		if *s {
			sum++
		}
	}
	if count == 0 {
		return nil
	}
	score := sum / count
	return &score
}

// ApplyRegression fills in the TrustSignals regression and delta fields
// from the signal values already present on t. Regressions and the delta
// require both current and previous to be non-null.
func (t *TrustSignals) ApplyRegression() {
	t.RegistrySignatureRegressed = regressed(t.RegistrySignaturePresent, t.PreviousRegistrySignaturePresent)
	t.ProvenanceRegressed = regressed(t.ProvenancePresent, t.PreviousProvenancePresent)

	if t.TrustScore != nil && t.PreviousScore != nil {
		delta := *t.TrustScore - *t.PreviousScore
		t.TrustScoreDelta = &delta
		decreased := delta < 0
		t.TrustScoreDecreased = &decreased
	}
}

// regressed reports true when a signal that was previously present is now
// absent (true -> false). nil propagates when either side is unknown.
func regressed(current, previous *bool) *bool {
	if current == nil || previous == nil {
		return nil
	}
	r := *previous && !*current
	return &r
}
