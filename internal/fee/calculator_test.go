package fee

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Shivanand-hulikatti/conference-registration/internal/catalog"
	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

var now = time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)

const baseCatalog = `
currency: INR
accompanying_fee: "5000"
categories:
  - id: regular
    base_amount: "15000"
  - id: student
    base_amount: "7000"
workshops:
  - id: ws-a
    name: Workshop A
    amount: "2000"
    max_seats: 10
  - id: ws-b
    name: Workshop B
    amount: "3333.33"
    max_seats: 10
discounts:
  - id: early2026
    kind: code
    code: EARLY2026
    percentage: "10"
    categories: [all]
`

func load(t testing.TB, src string) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(src))
	require.NoError(t, err)
	return c
}

func TestCalculate_Scenarios(t *testing.T) {
	c := load(t, baseCatalog)

	tests := []struct {
		name         string
		sel          model.Selection
		wantSubtotal int64
		wantDiscount int64
		wantTotal    int64
	}{
		{
			name:         "regular with one workshop",
			sel:          model.NewSelection("regular", []string{"ws-a"}, 0, ""),
			wantSubtotal: 1_700_000,
			wantTotal:    1_700_000,
		},
		{
			name:         "early code takes ten percent",
			sel:          model.NewSelection("regular", []string{"ws-a"}, 0, "EARLY2026"),
			wantSubtotal: 1_700_000,
			wantDiscount: 170_000,
			wantTotal:    1_530_000,
		},
		{
			name:         "code is case insensitive",
			sel:          model.NewSelection("regular", []string{"ws-a"}, 0, "  early2026 "),
			wantSubtotal: 1_700_000,
			wantDiscount: 170_000,
			wantTotal:    1_530_000,
		},
		{
			name:         "accompanying persons",
			sel:          model.NewSelection("student", nil, 2, ""),
			wantSubtotal: 1_700_000,
			wantTotal:    1_700_000,
		},
		{
			name:         "duplicate workshops counted once",
			sel:          model.Selection{CategoryID: "regular", WorkshopIDs: []string{"ws-a", "ws-a", "ws-a"}},
			wantSubtotal: 1_700_000,
			wantTotal:    1_700_000,
		},
		{
			name:         "fractional discount floors the total",
			sel:          model.NewSelection("regular", []string{"ws-b"}, 0, "early2026"),
			wantSubtotal: 1_833_333,
			wantDiscount: 183_334,
			wantTotal:    1_649_999,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Calculate(c, tt.sel, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubtotal, b.Subtotal)
			assert.Equal(t, tt.wantDiscount, b.Discount)
			assert.Equal(t, tt.wantTotal, b.Total)
			assert.Equal(t, b.Subtotal-b.Discount, b.Total)
			assert.Equal(t, model.CurrencyINR, b.Currency)
		})
	}
}

func TestCalculate_LineItems(t *testing.T) {
	c := load(t, baseCatalog)
	b, err := Calculate(c, model.NewSelection("regular", []string{"ws-b", "ws-a"}, 1, "EARLY2026"), now)
	require.NoError(t, err)

	require.Len(t, b.Workshops, 2)
	assert.Equal(t, "ws-a", b.Workshops[0].WorkshopID)
	assert.Equal(t, int64(200_000), b.Workshops[0].Amount)
	assert.Equal(t, "ws-b", b.Workshops[1].WorkshopID)
	assert.Equal(t, int64(533_333), b.WorkshopTotal)
	assert.Equal(t, int64(500_000), b.PersonTotal)

	require.Len(t, b.Discounts, 1)
	assert.Equal(t, "early2026", b.Discounts[0].RuleID)
	assert.Equal(t, model.DiscountCode, b.Discounts[0].Kind)
	assert.Equal(t, b.Discount, b.Discounts[0].Amount)
}

func TestCalculate_Errors(t *testing.T) {
	c := load(t, baseCatalog)

	_, err := Calculate(c, model.NewSelection("vip", nil, 0, ""), now)
	assert.ErrorIs(t, err, model.ErrCategoryNotFound)

	_, err = Calculate(c, model.NewSelection("regular", []string{"ws-a", "ws-zzz"}, 0, ""), now)
	assert.ErrorIs(t, err, model.ErrWorkshopNotFound)

	_, err = Calculate(c, model.NewSelection("regular", nil, -1, ""), now)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = Calculate(c, model.NewSelection("regular", nil, 0, "BOGUS"), now)
	assert.ErrorIs(t, err, model.ErrDiscountCodeInvalid)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

const stackingCatalog = `
currency: USD
categories:
  - id: member
    base_amount: "1000"
discounts:
  - id: b-loyalty
    kind: time
    percentage: "50"
    categories: [member]
  - id: a-early
    kind: time
    percentage: "10"
    categories: [all]
  - id: c-code
    kind: code
    code: HALF
    percentage: "20"
    categories: [all]
`

func TestCalculate_StacksInRuleIDOrder(t *testing.T) {
	c := load(t, stackingCatalog)

	b, err := Calculate(c, model.NewSelection("member", nil, 0, "half"), now)
	require.NoError(t, err)

	// 100000 -> a-early 10% -> 90000 -> b-loyalty 50% -> 45000 -> c-code 20% -> 36000
	require.Len(t, b.Discounts, 3)
	assert.Equal(t, "a-early", b.Discounts[0].RuleID)
	assert.Equal(t, int64(10_000), b.Discounts[0].Amount)
	assert.Equal(t, "b-loyalty", b.Discounts[1].RuleID)
	assert.Equal(t, int64(45_000), b.Discounts[1].Amount)
	assert.Equal(t, "c-code", b.Discounts[2].RuleID)
	assert.Equal(t, int64(9_000), b.Discounts[2].Amount)
	assert.Equal(t, int64(64_000), b.Discount)
	assert.Equal(t, int64(36_000), b.Total)
}

func TestCalculate_BestPolicy(t *testing.T) {
	c := load(t, "discount_policy: best\n"+stackingCatalog)

	b, err := Calculate(c, model.NewSelection("member", nil, 0, "HALF"), now)
	require.NoError(t, err)
	require.Len(t, b.Discounts, 1)
	assert.Equal(t, "b-loyalty", b.Discounts[0].RuleID)
	assert.Equal(t, int64(50_000), b.Total)
}

func TestCalculate_FullDiscountsNeverNegative(t *testing.T) {
	src := `
currency: INR
categories: [{id: comp, base_amount: "15000"}]
discounts:
  - {id: d1, kind: time, percentage: "100", categories: [all]}
  - {id: d2, kind: time, percentage: "100", categories: [all]}
`
	b, err := Calculate(load(t, src), model.NewSelection("comp", nil, 0, ""), now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.Total)
	assert.Equal(t, b.Subtotal, b.Discount)
	assert.Equal(t, int64(0), b.Discounts[1].Amount)
}

// genCatalog draws a random catalog with up to six workshops and discounts.
func genCatalog(t *rapid.T) (string, []string, []string) {
	var sb strings.Builder
	sb.WriteString("currency: INR\n")
	fmt.Fprintf(&sb, "accompanying_fee: \"%d\"\n", rapid.IntRange(0, 10_000).Draw(t, "fee"))
	fmt.Fprintf(&sb, "categories: [{id: cat, base_amount: \"%d.%02d\"}]\n",
		rapid.IntRange(0, 50_000).Draw(t, "base"), rapid.IntRange(0, 99).Draw(t, "basePaise"))

	nw := rapid.IntRange(0, 6).Draw(t, "workshops")
	workshops := make([]string, nw)
	sb.WriteString("workshops:\n")
	for i := range workshops {
		workshops[i] = fmt.Sprintf("ws-%d", i)
		fmt.Fprintf(&sb, "  - {id: %s, amount: \"%d\", max_seats: 5}\n", workshops[i], rapid.IntRange(0, 9_999).Draw(t, "amount"))
	}
	if nw == 0 {
		sb.WriteString("  []\n")
	}

	nd := rapid.IntRange(0, 6).Draw(t, "discounts")
	var codes []string
	sb.WriteString("discounts:\n")
	for i := 0; i < nd; i++ {
		pct := rapid.SampledFrom([]string{"0", "5", "12.5", "33.33", "50", "99.99", "100"}).Draw(t, "pct")
		if rapid.Bool().Draw(t, "isCode") {
			code := fmt.Sprintf("CODE%d", i)
			codes = append(codes, code)
			fmt.Fprintf(&sb, "  - {id: d%d, kind: code, code: %s, percentage: \"%s\", categories: [all]}\n", i, code, pct)
		} else {
			fmt.Fprintf(&sb, "  - {id: d%d, kind: time, percentage: \"%s\", categories: [all]}\n", i, pct)
		}
	}
	if nd == 0 {
		sb.WriteString("  []\n")
	}
	return sb.String(), workshops, codes
}

func TestCalculate_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		src, workshops, codes := genCatalog(t)
		c, err := catalog.Parse([]byte(src))
		if err != nil {
			t.Fatalf("generated catalog rejected: %v\n%s", err, src)
		}

		var picked []string
		if len(workshops) > 0 {
			picked = rapid.SliceOf(rapid.SampledFrom(workshops)).Draw(t, "picked")
		}
		code := ""
		if len(codes) > 0 && rapid.Bool().Draw(t, "useCode") {
			code = rapid.SampledFrom(codes).Draw(t, "code")
		}
		sel := model.Selection{
			CategoryID:        "cat",
			WorkshopIDs:       picked,
			AccompanyingCount: rapid.IntRange(0, 5).Draw(t, "guests"),
			DiscountCode:      code,
		}

		first, err := Calculate(c, sel, now)
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		second, err := Calculate(c, sel, now)
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		a, _ := json.Marshal(first)
		b, _ := json.Marshal(second)
		if string(a) != string(b) {
			t.Fatalf("not deterministic:\n%s\n%s", a, b)
		}

		if first.Total < 0 {
			t.Fatalf("negative total %d", first.Total)
		}
		if first.Total+first.Discount != first.Subtotal {
			t.Fatalf("total %d + discount %d != subtotal %d", first.Total, first.Discount, first.Subtotal)
		}
		var lines int64
		for _, d := range first.Discounts {
			if d.Amount < 0 {
				t.Fatalf("negative discount line %+v", d)
			}
			lines += d.Amount
		}
		if lines != first.Discount {
			t.Fatalf("discount lines %d != discount %d", lines, first.Discount)
		}

		// Input order of workshop ids never changes the price.
		reversed := make([]string, len(picked))
		for i, id := range picked {
			reversed[len(picked)-1-i] = id
		}
		sel.WorkshopIDs = reversed
		third, err := Calculate(c, sel, now)
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		cJSON, _ := json.Marshal(third)
		if string(a) != string(cJSON) {
			t.Fatalf("workshop order changed breakdown")
		}
	})
}
