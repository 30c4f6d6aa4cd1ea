package catalog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

const sampleYAML = `
currency: INR
accompanying_fee: "5000"
categories:
  - id: regular
    label: Regular Delegate
    base_amount: "15000"
  - id: student
    label: Student
    base_amount: "7500.50"
workshops:
  - id: ws-cardio
    name: Cardiac Imaging
    amount: "2000"
    max_seats: 30
  - id: ws-echo
    name: Echo Basics
    amount: "1500"
    max_seats: 1
discounts:
  - id: d10-early
    kind: time
    percentage: "10"
    valid_from: 2026-01-01T00:00:00Z
    valid_until: 2026-03-01T00:00:00Z
    categories: [all]
  - id: d20-student
    kind: time
    percentage: "20"
    categories: [student]
  - id: d30-code
    kind: code
    code: EARLY2026
    percentage: "10"
    categories: [regular]
  - id: d40-off
    kind: code
    code: RETIRED
    percentage: "50"
    categories: [all]
    active: false
`

func mustParse(t *testing.T, src string) *Catalog {
	t.Helper()
	c, err := Parse([]byte(src))
	require.NoError(t, err)
	return c
}

func TestParse_Amounts(t *testing.T) {
	c := mustParse(t, sampleYAML)

	assert.Equal(t, model.CurrencyINR, c.Currency())
	assert.Equal(t, int64(500_000), c.AccompanyingFee())
	assert.Equal(t, PolicyStack, c.Policy())

	reg, err := c.Category("regular")
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), reg.BaseAmount)
	assert.Equal(t, model.CurrencyINR, reg.Currency)

	stu, err := c.Category("student")
	require.NoError(t, err)
	assert.Equal(t, int64(750_050), stu.BaseAmount)

	ws, err := c.Workshop("ws-echo")
	require.NoError(t, err)
	assert.Equal(t, int64(150_000), ws.Amount)
	assert.Equal(t, 1, ws.MaxSeats)
	assert.Equal(t, 0, ws.BookedSeats)

	assert.Len(t, c.Workshops(), 2)
	assert.Equal(t, "ws-cardio", c.Workshops()[0].ID)
	assert.Len(t, c.Categories(), 2)
}

func TestLookups_NotFound(t *testing.T) {
	c := mustParse(t, sampleYAML)

	_, err := c.Category("vip")
	assert.ErrorIs(t, err, model.ErrCategoryNotFound)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = c.Workshop("ws-none")
	assert.ErrorIs(t, err, model.ErrWorkshopNotFound)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name          string
		src           string
		errorContains string
	}{
		{
			name:          "unknown field",
			src:           "currency: INR\ncategories: [{id: a, base_amount: '1'}]\nsurprise: true\n",
			errorContains: "surprise",
		},
		{
			name:          "unsupported currency",
			src:           "currency: EUR\ncategories: [{id: a, base_amount: '1'}]\n",
			errorContains: "not supported",
		},
		{
			name:          "category currency mismatch",
			src:           "currency: INR\ncategories: [{id: a, base_amount: '1', currency: USD}]\n",
			errorContains: "differs",
		},
		{
			name:          "no categories",
			src:           "currency: INR\n",
			errorContains: "at least one category",
		},
		{
			name:          "sub-paise precision",
			src:           "currency: INR\ncategories: [{id: a, base_amount: '1.005'}]\n",
			errorContains: "decimal places",
		},
		{
			name:          "negative amount",
			src:           "currency: INR\ncategories: [{id: a, base_amount: '-1'}]\n",
			errorContains: "negative",
		},
		{
			name: "percentage over 100",
			src: "currency: INR\ncategories: [{id: a, base_amount: '1'}]\n" +
				"discounts: [{id: d, kind: time, percentage: '101', categories: [all]}]\n",
			errorContains: "between 0 and 100",
		},
		{
			name: "code rule without code",
			src: "currency: INR\ncategories: [{id: a, base_amount: '1'}]\n" +
				"discounts: [{id: d, kind: code, percentage: '5', categories: [all]}]\n",
			errorContains: "requires a code",
		},
		{
			name: "duplicate code ignoring case",
			src: "currency: INR\ncategories: [{id: a, base_amount: '1'}]\n" +
				"discounts: [{id: d1, kind: code, code: Save, percentage: '5', categories: [all]}," +
				" {id: d2, kind: code, code: SAVE, percentage: '5', categories: [all]}]\n",
			errorContains: "used by both",
		},
		{
			name: "unknown category reference",
			src: "currency: INR\ncategories: [{id: a, base_amount: '1'}]\n" +
				"discounts: [{id: d, kind: time, percentage: '5', categories: [b]}]\n",
			errorContains: "unknown category",
		},
		{
			name: "unknown kind",
			src: "currency: INR\ncategories: [{id: a, base_amount: '1'}]\n" +
				"discounts: [{id: d, kind: loyalty, percentage: '5', categories: [all]}]\n",
			errorContains: "must be time or code",
		},
		{
			name:          "bad policy",
			src:           "currency: INR\ndiscount_policy: sum\ncategories: [{id: a, base_amount: '1'}]\n",
			errorContains: "stack or best",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestActiveDiscounts(t *testing.T) {
	c := mustParse(t, sampleYAML)
	inWindow := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	afterWindow := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	ids := func(rules []model.DiscountRule) []string {
		var out []string
		for _, r := range rules {
			out = append(out, r.ID)
		}
		return out
	}

	assert.Equal(t, []string{"d10-early", "d30-code"}, ids(c.ActiveDiscounts(inWindow, "regular")))
	assert.Equal(t, []string{"d30-code"}, ids(c.ActiveDiscounts(afterWindow, "regular")),
		"window end is exclusive; code rules ignore time")
	assert.Equal(t, []string{"d10-early", "d20-student"}, ids(c.ActiveDiscounts(inWindow, "student")))
	assert.Empty(t, c.ActiveDiscounts(afterWindow, "unknown"))
}

func TestProvider_CachesAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	p := NewProvider(path, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	first, err := p.Current(ctx)
	require.NoError(t, err)
	second, err := p.Current(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	updated := "currency: USD\ncategories: [{id: online, base_amount: '99.99'}]\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	cached, err := p.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.CurrencyINR, cached.Currency())

	p.Invalidate()
	reloaded, err := p.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.CurrencyUSD, reloaded.Currency())
}

func TestProvider_LoadError(t *testing.T) {
	p := NewProvider(filepath.Join(t.TempDir(), "missing.yaml"), 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := p.Current(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
