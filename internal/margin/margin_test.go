package margin

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/model"
)

func testInstrument(multiplier string) model.Instrument {
	return model.Instrument{
		ID:         "BTC-USD",
		Multiplier: decimal.RequireFromString(multiplier),
	}
}

func TestNoMarginLocksFullNotional(t *testing.T) {
	t.Parallel()
	m := NoMargin{}
	inst := testInstrument("1")

	got := m.InitialMargin(inst, model.OrderSideBuy, decimal.NewFromInt(10), decimal.NewFromInt(100))
	if !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("InitialMargin = %s, want 1000", got)
	}
}

func TestNoMarginAppliesInstrumentMultiplier(t *testing.T) {
	t.Parallel()
	m := NoMargin{}
	inst := testInstrument("5")

	got := m.MaintenanceMargin(inst, model.PositionSideLong, decimal.NewFromInt(2), decimal.NewFromInt(100), decimal.NewFromInt(110))
	if !got.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("MaintenanceMargin = %s, want 1100 (2 * 110 * 5)", got)
	}
}

func TestNoMarginZeroMultiplierFloorsAtOne(t *testing.T) {
	t.Parallel()
	m := NoMargin{}
	inst := testInstrument("0")

	got := m.InitialMargin(inst, model.OrderSideBuy, decimal.NewFromInt(10), decimal.NewFromInt(100))
	if !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("InitialMargin = %s, want 1000 (multiplier floors to 1)", got)
	}
}

func TestStandardInitialMarginDividesByLeverage(t *testing.T) {
	t.Parallel()
	m := NewStandard(decimal.NewFromInt(20))
	inst := testInstrument("1")

	got := m.InitialMargin(inst, model.OrderSideBuy, decimal.NewFromInt(10), decimal.NewFromInt(100))
	if !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("InitialMargin = %s, want 50 (1000 notional / 20x)", got)
	}
}

func TestStandardMaintenanceIsHalfOfInitial(t *testing.T) {
	t.Parallel()
	m := NewStandard(decimal.NewFromInt(20))
	inst := testInstrument("1")

	initial := m.InitialMargin(inst, model.OrderSideBuy, decimal.NewFromInt(10), decimal.NewFromInt(100))
	maint := m.MaintenanceMargin(inst, model.PositionSideLong, decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.NewFromInt(100))
	if !maint.Equal(initial.Mul(decimal.NewFromFloat(0.5))) {
		t.Errorf("MaintenanceMargin = %s, want half of initial (%s)", maint, initial)
	}
}

func TestStandardMaintenanceMarksToLastPrice(t *testing.T) {
	t.Parallel()
	m := NewStandard(decimal.NewFromInt(10))
	inst := testInstrument("1")

	maint := m.MaintenanceMargin(inst, model.PositionSideShort, decimal.NewFromInt(5), decimal.NewFromInt(100), decimal.NewFromInt(200))
	// notional marked at lastPx (200), not avgEntryPx (100): 5*200/10 * 0.5 = 50
	if !maint.Equal(decimal.NewFromInt(50)) {
		t.Errorf("MaintenanceMargin = %s, want 50 (marked to lastPx, not entry)", maint)
	}
}

func TestStandardZeroLeverageFallsBackToFullNotional(t *testing.T) {
	t.Parallel()
	m := Standard{InitialLeverage: decimal.Zero, MaintenanceFraction: decimal.NewFromFloat(0.5)}
	inst := testInstrument("1")

	got := m.InitialMargin(inst, model.OrderSideBuy, decimal.NewFromInt(10), decimal.NewFromInt(100))
	if !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("InitialMargin = %s, want 1000 (zero leverage treated as 1:1)", got)
	}
}

func TestForAccountTypePicksModelByType(t *testing.T) {
	t.Parallel()

	if _, ok := ForAccountType(model.AccountTypeCash, decimal.NewFromInt(10)).(NoMargin); !ok {
		t.Error("CASH account should use NoMargin")
	}
	if _, ok := ForAccountType(model.AccountTypeBetting, decimal.NewFromInt(10)).(NoMargin); !ok {
		t.Error("BETTING account should use NoMargin")
	}
	if _, ok := ForAccountType(model.AccountTypeMargin, decimal.NewFromInt(10)).(Standard); !ok {
		t.Error("MARGIN account should use Standard")
	}
}
