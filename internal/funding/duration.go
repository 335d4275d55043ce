package funding

const daysPerMonth = 30

// DurationUnit is the unit the marketplace expresses a request duration in.
type DurationUnit string

const (
	DurationUnitDay   DurationUnit = "DAY"
	DurationUnitMonth DurationUnit = "MONTH"
)

type Duration struct {
	Value int          `json:"value" validate:"gt=0"`
	Unit  DurationUnit `json:"unit" validate:"oneof=DAY MONTH"`
}

// Days returns the duration normalized to days. Months count as 30 days.
func (d Duration) Days() int {
	if d.Unit == DurationUnitDay {
		return d.Value
	}
	return d.Value * daysPerMonth
}
