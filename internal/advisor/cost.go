package advisor

const (
	bytesPerGB    = 1024 * 1024 * 1024
	millisPerHour = 3_600_000
	daysPerYear   = 365
)

// estimateCost prices one finding under the injected cost model. Every input
// it needs beyond the unit costs travels in the finding's metrics, so the
// same finding can be re-priced under different assumptions without
// re-running detection. The config must already be validated.
func estimateCost(p DetectedPattern, cm CostModelConfig) CostEstimate {
	var annualSavings float64
	switch p.PatternType {
	case PatternLOBCliff:
		annualSavings = lobCliffSavings(p.Metrics, cm)
	case PatternJoinDimension:
		annualSavings = joinDimensionSavings(p.Metrics, cm)
	case PatternDocumentRelational:
		annualSavings = documentRelationalSavings(p.Metrics, cm)
	case PatternDualityView:
		annualSavings = dualityViewSavings(p.Metrics, cm)
	}
	if annualSavings < 0 {
		annualSavings = 0
	}

	implementationCost := implementationCost(p, cm)
	roi := 0.0
	if implementationCost > 0 {
		amortized := implementationCost / cm.AmortizationYears
		roi = (annualSavings - amortized) / implementationCost
	}

	return CostEstimate{
		AnnualSavings:      annualSavings,
		ImplementationCost: implementationCost,
		ROI:                roi,
		Priority:           priorityFor(roi, p, cm),
	}
}

// lobCliffSavings: I/O avoided by no longer rewriting the untouched part of
// the document on every partial update, plus the CPU time of those rewrites.
func lobCliffSavings(m map[string]float64, cm CostModelConfig) float64 {
	updatesPerDay := m["updatesPerDay"]
	docSize := m["avgDocumentSizeBytes"]
	selectivity := clampFloat(m["avgUpdateSelectivity"], 0, 1)

	rewriteBytesPerDay := updatesPerDay * docSize * (1 - selectivity)
	ioSavings := rewriteBytesPerDay / bytesPerGB * daysPerYear * cm.IOCostPerGB
	cpuSavings := updatesPerDay * m["avgElapsedMillis"] / millisPerHour * daysPerYear * cm.CPUCostPerHour
	return ioSavings + cpuSavings
}

// joinDimensionSavings: net join time recovered (propagation cost is already
// netted out by the detector), the read bytes the join no longer touches,
// minus the storage growth of carrying the copied columns in the fact table.
func joinDimensionSavings(m map[string]float64, cm CostModelConfig) float64 {
	cpuSavings := m["netBenefitMillisPerDay"] / millisPerHour * daysPerYear * cm.CPUCostPerHour
	ioSavings := m["joinBytesPerDay"] / bytesPerGB * daysPerYear * cm.IOCostPerGB * 0.5

	const avgDenormalizedColumnBytes = 32
	storageGrowthGB := m["factRowCount"] * m["fetchedColumns"] * avgDenormalizedColumnBytes / bytesPerGB
	storageCost := storageGrowthGB * cm.StorageCostPerGBMonth * 12
	return cpuSavings + ioSavings - storageCost
}

// documentRelationalSavings: the restructure recovers a configured share of
// per-query elapsed time and read volume.
func documentRelationalSavings(m map[string]float64, cm CostModelConfig) float64 {
	savedMillisPerDay := m["dailyExecutions"] * m["avgElapsedMillis"] * cm.RestructureSavingsFraction
	cpuSavings := savedMillisPerDay / millisPerHour * daysPerYear * cm.CPUCostPerHour
	ioSavings := m["bytesPerDay"] * cm.RestructureSavingsFraction / bytesPerGB * daysPerYear * cm.IOCostPerGB
	return cpuSavings + ioSavings
}

// dualityViewSavings: a duality view retires the duplicated serving path for
// whichever side of the mix is smaller, including its network transfer.
func dualityViewSavings(m map[string]float64, cm CostModelConfig) float64 {
	score := clampFloat(m["dualityScore"], 0, 1)
	savedMillisPerDay := m["dailyExecutions"] * m["avgElapsedMillis"] * score
	cpuSavings := savedMillisPerDay / millisPerHour * daysPerYear * cm.CPUCostPerHour
	networkSavings := m["bytesPerDay"] * score / bytesPerGB * daysPerYear * cm.NetworkCostPerGB
	return cpuSavings + networkSavings
}

func implementationCost(p DetectedPattern, cm CostModelConfig) float64 {
	hours := 0.0
	switch p.PatternType {
	case PatternLOBCliff:
		hours = cm.LOBCliffHours
	case PatternJoinDimension:
		hours = cm.JoinDimensionHours
	case PatternDocumentRelational:
		hours = cm.DocumentRelationalHours
	case PatternDualityView:
		hours = cm.DualityViewHours
	}
	labor := hours * cm.LaborCostPerHour
	migration := p.Metrics["rowCount"] / 1_000_000 * cm.RowMigrationCostPer1M
	if p.PatternType == PatternJoinDimension {
		migration = p.Metrics["factRowCount"] / 1_000_000 * cm.RowMigrationCostPer1M
	}
	return labor + migration
}

// priorityFor maps the weighted composite of normalized ROI, confidence, and
// severity to a priority band.
func priorityFor(roi float64, p DetectedPattern, cm CostModelConfig) Priority {
	normROI := clampFloat(roi/cm.ROINormalizationCap, 0, 1)
	weightSum := cm.PriorityROIWeight + cm.PriorityConfidenceWeight + cm.PrioritySeverityWeight
	composite := (cm.PriorityROIWeight*normROI +
		cm.PriorityConfidenceWeight*clampFloat(p.Confidence, 0, 1) +
		cm.PrioritySeverityWeight*severityWeight(p.Severity)) / weightSum

	switch {
	case composite >= cm.HighPriorityScore:
		return PriorityHigh
	case composite >= cm.MediumPriorityScore:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
