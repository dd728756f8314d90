package dashboard

import (
	"errors"
	"math"
	"testing"

	"github.com/TobiSchelling/resultsdash/internal/config"
	"github.com/TobiSchelling/resultsdash/internal/logging"
)

func TestFormatValue(t *testing.T) {
	for _, tc := range []struct {
		current float64
		unit    string
		want    string
	}{
		{72, "Percentage", "72%"},
		{5, "Other", "5"},
		{72.5, "Percentage", "72.5%"},
		{41, "", "41"},
		{18, " Percentage ", "18%"},
		{0.25, "percentage", "0.25"},
	} {
		if got := FormatValue(tc.current, tc.unit); got != tc.want {
			t.Errorf("FormatValue(%v, %q) = %q, want %q", tc.current, tc.unit, got, tc.want)
		}
	}
}

func TestClassifyTrend(t *testing.T) {
	for _, tc := range []struct {
		label string
		want  Direction
	}{
		{"Improving", DirectionUp},
		{"UP", DirectionUp},
		{"+2.1 pts", DirectionUp},
		{"Declining", DirectionDown},
		{"-3%", DirectionDown},
		{"↓ since 2019", DirectionDown},
		{"Stable", DirectionFlat},
		{"", DirectionFlat},
		{"__", DirectionFlat},
	} {
		if got := ClassifyTrend(tc.label); got != tc.want {
			t.Errorf("ClassifyTrend(%q) = %q, want %q", tc.label, got, tc.want)
		}
	}
}

func sampleTrends() []ImpactTrend {
	return []ImpactTrend{
		{Indicator: "Stunting (Under 5)", Current: 18, Target: 14, Unit: "Percentage", Trend: "Improving"},
		{Indicator: "Birth Registration", Current: 76, Target: 100, Unit: "Percentage", Trend: "Improving"},
		{Indicator: "Under-5 Mortality", Current: 41, Target: 25, Unit: "Other", Trend: "Declining"},
		{Indicator: "Primary Completion", Current: 84, Target: math.NaN(), Unit: "Percentage", Trend: "Stable"},
	}
}

func TestBindCardsPositional(t *testing.T) {
	cards, err := BindCards(sampleTrends(), config.KPI{Count: 4, Missing: config.MissingPad}, logging.Nop())
	if err != nil {
		t.Fatalf("BindCards: %v", err)
	}
	if len(cards) != 4 {
		t.Fatalf("expected 4 cards, got %d", len(cards))
	}
	for i, want := range []string{"Stunting (Under 5)", "Birth Registration", "Under-5 Mortality", "Primary Completion"} {
		if cards[i].Slot != i || cards[i].Label != want {
			t.Errorf("slot %d: got %d/%q, want %q", i, cards[i].Slot, cards[i].Label, want)
		}
		if cards[i].Missing {
			t.Errorf("slot %d unexpectedly missing", i)
		}
	}
	if cards[0].Value != "18%" || cards[2].Value != "41" {
		t.Errorf("unexpected values %q, %q", cards[0].Value, cards[2].Value)
	}
	if cards[0].Tooltip != "SDG Target: 14" {
		t.Errorf("unexpected tooltip %q", cards[0].Tooltip)
	}
	if cards[3].Tooltip != "SDG Target: —" {
		t.Errorf("missing target should render a dash, got %q", cards[3].Tooltip)
	}
	if cards[2].Direction != DirectionDown || cards[2].Delta != "Declining" {
		t.Errorf("unexpected delta %q/%q", cards[2].Delta, cards[2].Direction)
	}
}

func TestBindCardsPositionalPadsShortResult(t *testing.T) {
	cards, err := BindCards(sampleTrends()[:2], config.KPI{Count: 4, Missing: config.MissingPad}, logging.Nop())
	if err != nil {
		t.Fatalf("BindCards: %v", err)
	}
	if len(cards) != 4 {
		t.Fatalf("expected 4 cards, got %d", len(cards))
	}
	if cards[1].Missing || !cards[2].Missing || !cards[3].Missing {
		t.Errorf("expected slots 2 and 3 to be placeholders: %+v", cards)
	}
	if cards[3].Value != "—" {
		t.Errorf("placeholder value = %q", cards[3].Value)
	}
}

func TestBindCardsPositionalFailsShortResult(t *testing.T) {
	_, err := BindCards(sampleTrends()[:3], config.KPI{Count: 4, Missing: config.MissingFail}, logging.Nop())
	var shapeErr *ShapeMismatchError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected ShapeMismatchError, got %v", err)
	}
	if shapeErr.Rows != 3 || shapeErr.Slots != 4 || len(shapeErr.Missing) != 1 {
		t.Errorf("unexpected error detail %+v", shapeErr)
	}
}

func TestBindCardsPositionalIgnoresExtraRows(t *testing.T) {
	trends := append(sampleTrends(), ImpactTrend{Indicator: "Extra", Current: 1, Unit: "Other"})
	cards, err := BindCards(trends, config.KPI{Count: 4, Missing: config.MissingFail}, logging.Nop())
	if err != nil {
		t.Fatalf("BindCards: %v", err)
	}
	if len(cards) != 4 {
		t.Fatalf("expected extra row to be dropped, got %d cards", len(cards))
	}
	for _, c := range cards {
		if c.Label == "Extra" {
			t.Error("extra row should not be shown")
		}
	}
}

func TestBindCardsByNameIgnoresRowOrder(t *testing.T) {
	trends := sampleTrends()
	reversed := []ImpactTrend{trends[3], trends[2], trends[1], trends[0]}
	kpi := config.KPI{
		Slots:   []string{"Stunting (Under 5)", "birth  registration", "Under-5 Mortality", "Primary Completion"},
		Missing: config.MissingFail,
	}

	cards, err := BindCards(reversed, kpi, logging.Nop())
	if err != nil {
		t.Fatalf("BindCards: %v", err)
	}
	for i, want := range []string{"Stunting (Under 5)", "Birth Registration", "Under-5 Mortality", "Primary Completion"} {
		if cards[i].Label != want {
			t.Errorf("slot %d: got %q, want %q", i, cards[i].Label, want)
		}
	}
}

func TestBindCardsByNameMissingIndicator(t *testing.T) {
	kpi := config.KPI{
		Slots:   []string{"Stunting (Under 5)", "Immunisation Coverage"},
		Missing: config.MissingPad,
	}
	cards, err := BindCards(sampleTrends(), kpi, logging.Nop())
	if err != nil {
		t.Fatalf("BindCards: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}
	if !cards[1].Missing || cards[1].Label != "Immunisation Coverage" {
		t.Errorf("expected a labelled placeholder, got %+v", cards[1])
	}

	kpi.Missing = config.MissingFail
	_, err = BindCards(sampleTrends(), kpi, logging.Nop())
	var shapeErr *ShapeMismatchError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected ShapeMismatchError, got %v", err)
	}
	if len(shapeErr.Missing) != 1 || shapeErr.Missing[0] != "Immunisation Coverage" {
		t.Errorf("unexpected missing list %v", shapeErr.Missing)
	}
}

func TestBindCardsByNameDuplicateKeepsFirst(t *testing.T) {
	trends := []ImpactTrend{
		{Indicator: "Stunting", Current: 18, Unit: "Percentage"},
		{Indicator: "stunting", Current: 99, Unit: "Percentage"},
	}
	cards, err := BindCards(trends, config.KPI{Slots: []string{"Stunting"}, Missing: config.MissingFail}, logging.Nop())
	if err != nil {
		t.Fatalf("BindCards: %v", err)
	}
	if cards[0].Value != "18%" {
		t.Errorf("expected first row to win, got %q", cards[0].Value)
	}
}
