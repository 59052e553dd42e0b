package advisor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries every detector threshold and cost-model parameter for one
// run. It is passed by value into detectors and the cost calculator and never
// mutated, so runs are reproducible and detectors can evaluate in parallel.
type Config struct {
	Volume             VolumeGateConfig         `yaml:"volume" json:"volume"`
	LOBCliff           LOBCliffConfig           `yaml:"lobCliff" json:"lobCliff"`
	JoinDimension      JoinDimensionConfig      `yaml:"joinDimension" json:"joinDimension"`
	DocumentRelational DocumentRelationalConfig `yaml:"documentRelational" json:"documentRelational"`
	DualityView        DualityViewConfig        `yaml:"dualityView" json:"dualityView"`
	Cost               CostModelConfig          `yaml:"cost" json:"cost"`
}

// VolumeGateConfig governs the volume-and-confidence discipline shared by all
// detectors: counts below AbsoluteFloor suppress the finding outright, counts
// below SoftMinimum (or a window shorter than MinWindowDays) only apply the
// confidence penalty.
type VolumeGateConfig struct {
	AbsoluteFloor    int64   `yaml:"absoluteFloor" json:"absoluteFloor"`
	SoftMinimum      int64   `yaml:"softMinimum" json:"softMinimum"`
	WindowDays       float64 `yaml:"windowDays" json:"windowDays"`
	MinWindowDays    float64 `yaml:"minWindowDays" json:"minWindowDays"`
	LowVolumePenalty float64 `yaml:"lowVolumePenalty" json:"lowVolumePenalty"`
}

type LOBCliffConfig struct {
	SizeThresholdBytes     float64 `yaml:"sizeThresholdBytes" json:"sizeThresholdBytes"`
	UpdatesPerDayThreshold float64 `yaml:"updatesPerDayThreshold" json:"updatesPerDayThreshold"`
	SizeWeight             float64 `yaml:"sizeWeight" json:"sizeWeight"`
	FrequencyWeight        float64 `yaml:"frequencyWeight" json:"frequencyWeight"`
	SelectivityWeight      float64 `yaml:"selectivityWeight" json:"selectivityWeight"`
	FormatWeight           float64 `yaml:"formatWeight" json:"formatWeight"`
	HighRiskThreshold      float64 `yaml:"highRiskThreshold" json:"highRiskThreshold"`
	MediumRiskThreshold    float64 `yaml:"mediumRiskThreshold" json:"mediumRiskThreshold"`
	MinRiskToReport        float64 `yaml:"minRiskToReport" json:"minRiskToReport"`
	// FactorFloor is the minimum each sub-score must reach before a HIGH
	// classification; a single dominant factor cannot alone drive HIGH.
	FactorFloor      float64 `yaml:"factorFloor" json:"factorFloor"`
	TextFormatRisk   float64 `yaml:"textFormatRisk" json:"textFormatRisk"`
	BinaryFormatRisk float64 `yaml:"binaryFormatRisk" json:"binaryFormatRisk"`
	MinLOBSizeBytes  int64   `yaml:"minLobSizeBytes" json:"minLobSizeBytes"`
}

type JoinDimensionConfig struct {
	MinJoinFrequency    float64 `yaml:"minJoinFrequency" json:"minJoinFrequency"`
	HighJoinFrequency   float64 `yaml:"highJoinFrequency" json:"highJoinFrequency"`
	MediumJoinFrequency float64 `yaml:"mediumJoinFrequency" json:"mediumJoinFrequency"`
	MaxFetchedColumns   int     `yaml:"maxFetchedColumns" json:"maxFetchedColumns"`
	// VolatilityPerDayMax suppresses the recommendation when the dimension
	// table itself is updated more often than this, regardless of join
	// frequency.
	VolatilityPerDayMax float64 `yaml:"volatilityPerDayMax" json:"volatilityPerDayMax"`
	// JoinElapsedFraction is the share of a join query's elapsed time
	// attributed to the join itself.
	JoinElapsedFraction float64 `yaml:"joinElapsedFraction" json:"joinElapsedFraction"`
	// PropagationCostMillis is the write cost added per denormalized column
	// per dimension update.
	PropagationCostMillis float64 `yaml:"propagationCostMillis" json:"propagationCostMillis"`
	// NetBenefitMargin is the required positive net benefit, in
	// milliseconds/day, before a recommendation is emitted.
	NetBenefitMargin float64 `yaml:"netBenefitMargin" json:"netBenefitMargin"`
}

type DocumentRelationalConfig struct {
	SelectAllWeight         float64 `yaml:"selectAllWeight" json:"selectAllWeight"`
	NullableWeight          float64 `yaml:"nullableWeight" json:"nullableWeight"`
	MultiColumnUpdateWeight float64 `yaml:"multiColumnUpdateWeight" json:"multiColumnUpdateWeight"`
	AggregateWeight         float64 `yaml:"aggregateWeight" json:"aggregateWeight"`
	JoinWeight              float64 `yaml:"joinWeight" json:"joinWeight"`
	// Margin is the dead zone: no recommendation is emitted unless
	// |documentScore - relationalScore| exceeds it. Mixed-access tables are
	// intentionally left unclassified.
	Margin    float64 `yaml:"margin" json:"margin"`
	MediumGap float64 `yaml:"mediumGap" json:"mediumGap"`
	HighGap   float64 `yaml:"highGap" json:"highGap"`
	// MultiColumnMin is how many columns an update must touch to count as a
	// multi-column update.
	MultiColumnMin int `yaml:"multiColumnMin" json:"multiColumnMin"`
}

type DualityViewConfig struct {
	// MinDailyExecutions gates HIGH severity: below it, balanced tables are
	// still reported but capped at MEDIUM, since duality-view overhead is
	// not justified without volume.
	MinDailyExecutions float64 `yaml:"minDailyExecutions" json:"minDailyExecutions"`
	HighScore          float64 `yaml:"highScore" json:"highScore"`
	MediumScore        float64 `yaml:"mediumScore" json:"mediumScore"`
}

// CostModelConfig holds the injected unit costs. Nothing in the cost
// calculator is hard-coded, so the same finding can be re-priced under
// different assumptions without re-running detection.
type CostModelConfig struct {
	IOCostPerGB           float64 `yaml:"ioCostPerGb" json:"ioCostPerGb"`
	CPUCostPerHour        float64 `yaml:"cpuCostPerHour" json:"cpuCostPerHour"`
	StorageCostPerGBMonth float64 `yaml:"storageCostPerGbMonth" json:"storageCostPerGbMonth"`
	NetworkCostPerGB      float64 `yaml:"networkCostPerGb" json:"networkCostPerGb"`
	LaborCostPerHour      float64 `yaml:"laborCostPerHour" json:"laborCostPerHour"`

	LOBCliffHours           float64 `yaml:"lobCliffHours" json:"lobCliffHours"`
	JoinDimensionHours      float64 `yaml:"joinDimensionHours" json:"joinDimensionHours"`
	DocumentRelationalHours float64 `yaml:"documentRelationalHours" json:"documentRelationalHours"`
	DualityViewHours        float64 `yaml:"dualityViewHours" json:"dualityViewHours"`
	RowMigrationCostPer1M   float64 `yaml:"rowMigrationCostPer1m" json:"rowMigrationCostPer1m"`

	// RestructureSavingsFraction is the share of per-query elapsed time a
	// storage-model restructure is assumed to recover.
	RestructureSavingsFraction float64 `yaml:"restructureSavingsFraction" json:"restructureSavingsFraction"`

	AmortizationYears float64 `yaml:"amortizationYears" json:"amortizationYears"`
	// NearTieROIMargin is the absolute ROI distance under which a tradeoff
	// conflict is flagged for manual review instead of auto-resolved.
	NearTieROIMargin float64 `yaml:"nearTieRoiMargin" json:"nearTieRoiMargin"`

	PriorityROIWeight        float64 `yaml:"priorityRoiWeight" json:"priorityRoiWeight"`
	PriorityConfidenceWeight float64 `yaml:"priorityConfidenceWeight" json:"priorityConfidenceWeight"`
	PrioritySeverityWeight   float64 `yaml:"prioritySeverityWeight" json:"prioritySeverityWeight"`
	ROINormalizationCap      float64 `yaml:"roiNormalizationCap" json:"roiNormalizationCap"`
	HighPriorityScore        float64 `yaml:"highPriorityScore" json:"highPriorityScore"`
	MediumPriorityScore      float64 `yaml:"mediumPriorityScore" json:"mediumPriorityScore"`
}

func DefaultConfig() Config {
	return Config{
		Volume: VolumeGateConfig{
			AbsoluteFloor:    100,
			SoftMinimum:      2000,
			WindowDays:       7,
			MinWindowDays:    3,
			LowVolumePenalty: 0.7,
		},
		LOBCliff: LOBCliffConfig{
			SizeThresholdBytes:     256 * 1024,
			UpdatesPerDayThreshold: 1000,
			SizeWeight:             0.3,
			FrequencyWeight:        0.3,
			SelectivityWeight:      0.2,
			FormatWeight:           0.2,
			HighRiskThreshold:      0.75,
			MediumRiskThreshold:    0.45,
			MinRiskToReport:        0.25,
			FactorFloor:            0.15,
			TextFormatRisk:         1.0,
			BinaryFormatRisk:       0.5,
			MinLOBSizeBytes:        4096,
		},
		JoinDimension: JoinDimensionConfig{
			MinJoinFrequency:      0.2,
			HighJoinFrequency:     0.5,
			MediumJoinFrequency:   0.35,
			MaxFetchedColumns:     5,
			VolatilityPerDayMax:   100,
			JoinElapsedFraction:   0.4,
			PropagationCostMillis: 5,
			NetBenefitMargin:      0,
		},
		DocumentRelational: DocumentRelationalConfig{
			SelectAllWeight:         0.4,
			NullableWeight:          0.3,
			MultiColumnUpdateWeight: 0.3,
			AggregateWeight:         0.5,
			JoinWeight:              0.5,
			Margin:                  0.3,
			MediumGap:               0.4,
			HighGap:                 0.5,
			MultiColumnMin:          3,
		},
		DualityView: DualityViewConfig{
			MinDailyExecutions: 1000,
			HighScore:          0.35,
			MediumScore:        0.2,
		},
		Cost: CostModelConfig{
			IOCostPerGB:           0.09,
			CPUCostPerHour:        0.05,
			StorageCostPerGBMonth: 0.023,
			NetworkCostPerGB:      0.01,
			LaborCostPerHour:      120,

			LOBCliffHours:           24,
			JoinDimensionHours:      16,
			DocumentRelationalHours: 80,
			DualityViewHours:        40,
			RowMigrationCostPer1M:   25,

			RestructureSavingsFraction: 0.25,

			AmortizationYears: 3,
			NearTieROIMargin:  0.1,

			PriorityROIWeight:        0.5,
			PriorityConfidenceWeight: 0.25,
			PrioritySeverityWeight:   0.25,
			ROINormalizationCap:      5,
			HighPriorityScore:        0.65,
			MediumPriorityScore:      0.4,
		},
	}
}

// LoadConfig reads a YAML config file layered over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot price findings under.
// A validation failure is fatal to the run.
func (c Config) Validate() error {
	if c.Volume.WindowDays <= 0 {
		return costModelError("volume.windowDays", "must be positive")
	}
	if c.Volume.LowVolumePenalty <= 0 || c.Volume.LowVolumePenalty > 1 {
		return costModelError("volume.lowVolumePenalty", "must be in (0,1]")
	}
	weightSum := c.LOBCliff.SizeWeight + c.LOBCliff.FrequencyWeight +
		c.LOBCliff.SelectivityWeight + c.LOBCliff.FormatWeight
	if weightSum <= 0 {
		return costModelError("lobCliff weights", "must sum to a positive value")
	}
	if c.LOBCliff.HighRiskThreshold <= c.LOBCliff.MediumRiskThreshold {
		return costModelError("lobCliff.highRiskThreshold", "must exceed mediumRiskThreshold")
	}
	if c.DocumentRelational.Margin <= 0 {
		return costModelError("documentRelational.margin", "must be positive")
	}
	cm := c.Cost
	for _, check := range []struct {
		name  string
		value float64
	}{
		{"cost.ioCostPerGb", cm.IOCostPerGB},
		{"cost.cpuCostPerHour", cm.CPUCostPerHour},
		{"cost.storageCostPerGbMonth", cm.StorageCostPerGBMonth},
		{"cost.networkCostPerGb", cm.NetworkCostPerGB},
		{"cost.laborCostPerHour", cm.LaborCostPerHour},
		{"cost.lobCliffHours", cm.LOBCliffHours},
		{"cost.joinDimensionHours", cm.JoinDimensionHours},
		{"cost.documentRelationalHours", cm.DocumentRelationalHours},
		{"cost.dualityViewHours", cm.DualityViewHours},
		{"cost.amortizationYears", cm.AmortizationYears},
		{"cost.roiNormalizationCap", cm.ROINormalizationCap},
	} {
		if check.value <= 0 {
			return costModelError(check.name, "must be positive")
		}
	}
	if cm.RestructureSavingsFraction <= 0 || cm.RestructureSavingsFraction > 1 {
		return costModelError("cost.restructureSavingsFraction", "must be in (0,1]")
	}
	if cm.NearTieROIMargin < 0 {
		return costModelError("cost.nearTieRoiMargin", "must not be negative")
	}
	priorityWeightSum := cm.PriorityROIWeight + cm.PriorityConfidenceWeight + cm.PrioritySeverityWeight
	if priorityWeightSum <= 0 {
		return costModelError("cost priority weights", "must sum to a positive value")
	}
	if cm.HighPriorityScore <= cm.MediumPriorityScore {
		return costModelError("cost.highPriorityScore", "must exceed mediumPriorityScore")
	}
	return nil
}
