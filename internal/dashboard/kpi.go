package dashboard

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/resultsdash/internal/config"
)

// Direction classifies a trend label for the delta arrow.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

var (
	upWords   = []string{"up", "improving", "increasing", "rising", "improved", "increase"}
	downWords = []string{"down", "declining", "decreasing", "falling", "worsening", "decrease"}
)

// ClassifyTrend maps a TREND_DIRECTION label onto an arrow direction.
func ClassifyTrend(label string) Direction {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return DirectionFlat
	}
	if strings.HasPrefix(l, "-") || strings.HasPrefix(l, "↓") || strings.HasPrefix(l, "▼") {
		return DirectionDown
	}
	if strings.HasPrefix(l, "+") || strings.HasPrefix(l, "↑") || strings.HasPrefix(l, "▲") {
		return DirectionUp
	}
	words := strings.FieldsFunc(l, func(r rune) bool { return r == ' ' || r == '_' || r == '-' })
	if len(words) == 0 {
		return DirectionFlat
	}
	first := words[0]
	for _, w := range downWords {
		if first == w {
			return DirectionDown
		}
	}
	for _, w := range upWords {
		if first == w {
			return DirectionUp
		}
	}
	return DirectionFlat
}

// FormatValue renders a KPI value, appending "%" for percentage indicators.
func FormatValue(current float64, unit string) string {
	v := FormatNumber(current)
	if strings.TrimSpace(unit) == UnitPercentage {
		return v + "%"
	}
	return v
}

// Card is one KPI slot on the page.
type Card struct {
	Slot      int
	Label     string
	Value     string
	Delta     string
	Direction Direction
	Tooltip   string
	Missing   bool
}

func cardFor(slot int, t ImpactTrend) Card {
	return Card{
		Slot:      slot,
		Label:     t.Indicator,
		Value:     FormatValue(t.Current, t.Unit),
		Delta:     t.Trend,
		Direction: ClassifyTrend(t.Trend),
		Tooltip:   "SDG Target: " + FormatNumber(t.Target),
	}
}

func placeholder(slot int, label string) Card {
	return Card{
		Slot:      slot,
		Label:     label,
		Value:     "—",
		Direction: DirectionFlat,
		Tooltip:   "No data returned for this indicator",
		Missing:   true,
	}
}

// ShapeMismatchError reports KPI slots the impact query could not fill.
type ShapeMismatchError struct {
	Slots   int
	Rows    int
	Missing []string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("impact trends returned %d rows for %d KPI slots; unfilled: %s",
		e.Rows, e.Slots, strings.Join(e.Missing, ", "))
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// BindCards fills the configured KPI slots from impact rows.
//
// Named slots are matched by indicator name, so row order does not matter.
// Without names, the first kpi.Count rows fill the slots in query order.
// Rows that fill no slot are dropped with a warning. Unfilled slots become
// placeholders, or a *ShapeMismatchError under the "fail" policy.
func BindCards(trends []ImpactTrend, kpi config.KPI, logger *zap.SugaredLogger) ([]Card, error) {
	if len(kpi.Slots) > 0 {
		return bindByName(trends, kpi, logger)
	}
	return bindByPosition(trends, kpi, logger)
}

func bindByName(trends []ImpactTrend, kpi config.KPI, logger *zap.SugaredLogger) ([]Card, error) {
	byName := make(map[string]int, len(trends))
	for i, t := range trends {
		key := normalizeName(t.Indicator)
		if _, dup := byName[key]; dup {
			logger.Warnw("duplicate indicator in impact trends; keeping first", "indicator", t.Indicator, "row", i)
			continue
		}
		byName[key] = i
	}

	cards := make([]Card, 0, len(kpi.Slots))
	used := make(map[int]bool, len(kpi.Slots))
	var missing []string
	for slot, name := range kpi.Slots {
		i, ok := byName[normalizeName(name)]
		if !ok {
			missing = append(missing, name)
			cards = append(cards, placeholder(slot, name))
			continue
		}
		used[i] = true
		cards = append(cards, cardFor(slot, trends[i]))
	}

	for i, t := range trends {
		if !used[i] {
			logger.Warnw("impact indicator not bound to any KPI slot", "indicator", t.Indicator, "row", i)
		}
	}
	return finishBinding(cards, missing, len(trends), kpi, logger)
}

func bindByPosition(trends []ImpactTrend, kpi config.KPI, logger *zap.SugaredLogger) ([]Card, error) {
	cards := make([]Card, 0, kpi.Count)
	var missing []string
	for slot := 0; slot < kpi.Count; slot++ {
		if slot >= len(trends) {
			label := fmt.Sprintf("slot %d", slot+1)
			missing = append(missing, label)
			cards = append(cards, placeholder(slot, "—"))
			continue
		}
		cards = append(cards, cardFor(slot, trends[slot]))
	}
	if extra := len(trends) - kpi.Count; extra > 0 {
		logger.Warnw("impact trends has more rows than KPI slots; ignoring the rest",
			"rows", len(trends), "slots", kpi.Count)
	}
	return finishBinding(cards, missing, len(trends), kpi, logger)
}

func finishBinding(cards []Card, missing []string, rows int, kpi config.KPI, logger *zap.SugaredLogger) ([]Card, error) {
	if len(missing) == 0 {
		return cards, nil
	}
	if kpi.Missing == config.MissingFail {
		return nil, &ShapeMismatchError{Slots: kpi.SlotCount(), Rows: rows, Missing: missing}
	}
	logger.Warnw("padding KPI slots with placeholders", "missing", missing, "rows", rows)
	return cards, nil
}
