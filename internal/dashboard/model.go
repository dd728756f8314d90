package dashboard

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/TobiSchelling/resultsdash/internal/warehouse"
)

// Warehouse column names.
const (
	colIndicator = "INDICATOR_NAME"
	colCurrent   = "CURRENT_VALUE"
	colTarget    = "TARGET_VALUE"
	colUnit      = "UNIT"
	colTrend     = "TREND_DIRECTION"

	colPrinciple = "CRC_PRINCIPLE"
	colProgress  = "PROGRESS_PCT"
	colSection   = "CHILDREN_ACT_SECTION"
)

// UnitPercentage marks indicators whose value is shown with a percent sign.
const UnitPercentage = "Percentage"

// ImpactTrend is one national outcome indicator row.
type ImpactTrend struct {
	Indicator string
	Current   float64
	Target    float64 // NaN when the warehouse has no target
	Unit      string
	Trend     string
}

// PolicyProgress is one policy-implementation row.
type PolicyProgress struct {
	Principle string
	Progress  float64
	Section   string
}

func requireColumns(t *warehouse.Table, entity string, cols ...string) error {
	var missing []string
	for _, c := range cols {
		if t.ColumnIndex(c) < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing columns %s (have %s)",
			entity, strings.Join(missing, ", "), strings.Join(t.Columns, ", "))
	}
	return nil
}

// DecodeImpactTrends maps an IMPACT_TRENDS result onto typed rows, keeping
// query order.
func DecodeImpactTrends(t *warehouse.Table) ([]ImpactTrend, error) {
	if err := requireColumns(t, "impact trends", colIndicator, colCurrent, colTarget, colUnit, colTrend); err != nil {
		return nil, err
	}

	out := make([]ImpactTrend, 0, t.Len())
	for i := range t.Rows {
		current, err := toFloat(t.Value(i, colCurrent))
		if err != nil {
			return nil, fmt.Errorf("impact trends row %d: %s: %w", i, colCurrent, err)
		}
		target, err := toFloat(t.Value(i, colTarget))
		if err != nil {
			target = math.NaN()
		}
		out = append(out, ImpactTrend{
			Indicator: toString(t.Value(i, colIndicator)),
			Current:   current,
			Target:    target,
			Unit:      toString(t.Value(i, colUnit)),
			Trend:     toString(t.Value(i, colTrend)),
		})
	}
	return out, nil
}

// DecodePolicyTracker maps a POLICY_TRACKER result onto typed rows, keeping
// query order.
func DecodePolicyTracker(t *warehouse.Table) ([]PolicyProgress, error) {
	if err := requireColumns(t, "policy tracker", colPrinciple, colProgress, colSection); err != nil {
		return nil, err
	}

	out := make([]PolicyProgress, 0, t.Len())
	for i := range t.Rows {
		progress, err := toFloat(t.Value(i, colProgress))
		if err != nil {
			return nil, fmt.Errorf("policy tracker row %d: %s: %w", i, colProgress, err)
		}
		out = append(out, PolicyProgress{
			Principle: toString(t.Value(i, colPrinciple)),
			Progress:  progress,
			Section:   toString(t.Value(i, colSection)),
		})
	}
	return out, nil
}

// toFloat accepts the numeric shapes drivers hand back. Snowflake returns
// NUMBER columns as strings.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("null value")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

// FormatNumber renders f with the fewest digits that round-trip, so 72
// prints as "72" and 72.5 as "72.5".
func FormatNumber(f float64) string {
	if math.IsNaN(f) {
		return "—"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatCell renders a raw table cell for the audit table.
func FormatCell(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case float64:
		return FormatNumber(c)
	case float32:
		return FormatNumber(float64(c))
	default:
		return fmt.Sprint(c)
	}
}
