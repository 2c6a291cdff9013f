package domain

import "fmt"

// QuotaHealth classifies quota usage relative to its limit.
type QuotaHealth string

const (
	QuotaHealthHealthy  QuotaHealth = "healthy"
	QuotaHealthWarning  QuotaHealth = "warning"
	QuotaHealthCritical QuotaHealth = "critical"
)

// HealthThresholds are usage/limit percentages at which quota health
// degrades. The current deployment pair is 80/100; earlier 60/85
// deployments are not supported.
type HealthThresholds struct {
	WarningPercent  float64
	CriticalPercent float64
}

// DefaultHealthThresholds is the documented threshold pair.
var DefaultHealthThresholds = HealthThresholds{WarningPercent: 80, CriticalPercent: 100}

// DeriveHealth classifies usage against a limit. Callers must only
// invoke it when a non-zero limit exists.
func (t HealthThresholds) DeriveHealth(usage, limit int64) QuotaHealth {
	percentage := float64(usage) / float64(limit) * 100
	switch {
	case percentage >= t.CriticalPercent:
		return QuotaHealthCritical
	case percentage >= t.WarningPercent:
		return QuotaHealthWarning
	default:
		return QuotaHealthHealthy
	}
}

// QuotaValue pairs a raw usage number with its display form.
type QuotaValue struct {
	Raw           int64  `json:"raw"`
	HumanReadable string `json:"human_readable"`
}

// QuotaReading is the aggregate of one resource kind over an entity's
// resource rows. Limit is nil when no non-zero limit applies, in which
// case Health is empty as well.
type QuotaReading struct {
	Usage  QuotaValue  `json:"usage"`
	Limit  *QuotaValue `json:"limit,omitempty"`
	Health QuotaHealth `json:"health,omitempty"`
}

// QuotaRow is one resource-usage row as seen by the aggregation,
// independent of which entity type owns it. Only user-scoped rows carry
// a limit.
type QuotaRow struct {
	Kind     ResourceKind
	Unit     ResourceUnit
	Used     int64
	Limit    int64
	HasLimit bool
}

// AggregateUsage sums the rows of one resource kind into a reading.
// Rows of one kind seeded with mismatched units indicate corrupted seed
// data and fail with a consistency error.
func AggregateUsage(rows []QuotaRow, kind ResourceKind, thresholds HealthThresholds) (QuotaReading, error) {
	var (
		usage int64
		limit int64
		unit  ResourceUnit
	)
	for _, row := range rows {
		if row.Kind != kind {
			continue
		}
		if unit != "" && unit != row.Unit {
			return QuotaReading{}, NewError(
				CodeConsistency,
				"quota.aggregate",
				fmt.Sprintf("resources of kind %q use mismatched units %q and %q", kind, unit, row.Unit),
				nil,
			)
		}
		unit = row.Unit
		usage += row.Used
		if row.HasLimit {
			limit += row.Limit
		}
	}
	if unit == "" {
		unit = CanonicalUnit(kind)
	}

	reading := QuotaReading{
		Usage: QuotaValue{Raw: usage, HumanReadable: HumanReadable(unit, usage)},
	}
	if limit != 0 {
		reading.Limit = &QuotaValue{Raw: limit, HumanReadable: HumanReadable(unit, limit)}
		reading.Health = thresholds.DeriveHealth(usage, limit)
	}
	return reading, nil
}

// UsageByKind aggregates every kind present in rows.
func UsageByKind(rows []QuotaRow, thresholds HealthThresholds) (map[ResourceKind]QuotaReading, error) {
	kinds := map[ResourceKind]bool{}
	for _, row := range rows {
		kinds[row.Kind] = true
	}
	out := make(map[ResourceKind]QuotaReading, len(kinds))
	for kind := range kinds {
		reading, err := AggregateUsage(rows, kind, thresholds)
		if err != nil {
			return nil, err
		}
		out[kind] = reading
	}
	return out, nil
}
