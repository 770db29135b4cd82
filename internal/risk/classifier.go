package risk

// Tier 眼压风险等级（派生值，不落库）
type Tier string

const (
	TierUnknown    Tier = "unknown"
	TierNormal     Tier = "normal"
	TierBorderline Tier = "borderline"
	TierAtRisk     Tier = "at-risk"
)

const (
	// NormalMax 正常上限（含）
	NormalMax = 15
	// BorderlineMax 临界上限（含），超过即高风险
	BorderlineMax = 20
)

// Classify 按 15/20 阈值分级；nil 表示尚无读数
func Classify(reading *int) Tier {
	if reading == nil {
		return TierUnknown
	}
	return ClassifyValue(*reading)
}

// ClassifyValue 对确定的读数分级
func ClassifyValue(v int) Tier {
	switch {
	case v <= NormalMax:
		return TierNormal
	case v <= BorderlineMax:
		return TierBorderline
	default:
		return TierAtRisk
	}
}

// Overall 双眼综合分级：取较高一眼
func Overall(right, left *int) Tier {
	switch {
	case right == nil && left == nil:
		return TierUnknown
	case right == nil:
		return ClassifyValue(*left)
	case left == nil:
		return ClassifyValue(*right)
	}
	return ClassifyValue(max(*right, *left))
}

// Label 报告页展示文案
func (t Tier) Label() string {
	switch t {
	case TierNormal:
		return "NORMAL"
	case TierBorderline:
		return "BORDERLINE"
	case TierAtRisk:
		return "AT RISK"
	default:
		return "UNKNOWN"
	}
}
