package advisor

// Detector is the shared detection strategy contract. Detectors are pure
// functions over the evidence index: they do not mutate inputs, do not depend
// on each other's output, and may be evaluated in parallel. Besides findings,
// each reports how many candidates its volume gate suppressed outright.
type Detector interface {
	Name() string
	PatternType() PatternType
	Detect(ev *workloadEvidence, cfg Config) (findings []DetectedPattern, suppressed int)
}

// defaultDetectors returns the ordered detector registry. Order only affects
// result assembly, never semantics.
func defaultDetectors() []Detector {
	return []Detector{
		lobCliffDetector{},
		joinDimensionDetector{},
		documentRelationalDetector{},
		dualityViewDetector{},
	}
}

// applyVolumeGate implements the volume-and-confidence discipline shared by
// all detectors. Candidates backed by fewer relevant operations than the
// absolute floor are suppressed outright, which prevents percentage-only
// false positives on tiny samples. Candidates below the soft minimum, or
// observed over a window shorter than the configured minimum, keep the
// finding but pay the confidence penalty.
func applyVolumeGate(cfg VolumeGateConfig, relevantOps int64, confidence float64) (float64, bool) {
	if relevantOps < cfg.AbsoluteFloor {
		return 0, true
	}
	if relevantOps < cfg.SoftMinimum || cfg.WindowDays < cfg.MinWindowDays {
		confidence *= cfg.LowVolumePenalty
	}
	return clampFloat(confidence, 0, 1), false
}
