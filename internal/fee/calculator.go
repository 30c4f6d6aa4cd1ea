// Package fee derives a registrant's amount due from their selections and a
// pricing catalog.
package fee

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Shivanand-hulikatti/conference-registration/internal/catalog"
	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Calculate prices a selection against c at instant now.
//
// The result depends only on its arguments: the same catalog, selection and
// now always produce an identical breakdown. Reconciliation relies on this
// to re-derive the amount of an existing payment order.
func Calculate(c *catalog.Catalog, sel model.Selection, now time.Time) (*model.FeeBreakdown, error) {
	if sel.AccompanyingCount < 0 {
		return nil, fmt.Errorf("%w: accompanying count %d", model.ErrInvalidInput, sel.AccompanyingCount)
	}
	cat, err := c.Category(sel.CategoryID)
	if err != nil {
		return nil, err
	}

	b := &model.FeeBreakdown{
		CategoryID:        cat.ID,
		Currency:          cat.Currency,
		Base:              cat.BaseAmount,
		Workshops:         []model.WorkshopLine{},
		AccompanyingCount: sel.AccompanyingCount,
		AccompanyingFee:   c.AccompanyingFee(),
		Discounts:         []model.DiscountLine{},
	}

	// Duplicates collapse: a workshop is charged once however often it is listed.
	for _, id := range model.UniqueSorted(sel.WorkshopIDs) {
		ws, err := c.Workshop(id)
		if err != nil {
			return nil, err
		}
		b.Workshops = append(b.Workshops, model.WorkshopLine{WorkshopID: ws.ID, Name: ws.Name, Amount: ws.Amount})
		b.WorkshopTotal += ws.Amount
	}
	b.PersonTotal = int64(sel.AccompanyingCount) * b.AccompanyingFee
	b.Subtotal = b.Base + b.WorkshopTotal + b.PersonTotal

	rules, err := matchDiscounts(c, sel, now)
	if err != nil {
		return nil, err
	}
	applyDiscounts(b, rules)
	return b, nil
}

// matchDiscounts returns the rules to apply, in application order.
func matchDiscounts(c *catalog.Catalog, sel model.Selection, now time.Time) ([]model.DiscountRule, error) {
	code := strings.TrimSpace(sel.DiscountCode)
	var (
		matched   []model.DiscountRule
		codeFound bool
	)
	for _, r := range c.ActiveDiscounts(now, sel.CategoryID) {
		switch r.Kind {
		case model.DiscountTime:
			matched = append(matched, r)
		case model.DiscountCode:
			if code != "" && !codeFound && model.SameDiscountCode(r.Code, code) {
				matched = append(matched, r)
				codeFound = true
			}
		}
	}
	if code != "" && !codeFound {
		return nil, fmt.Errorf("%w: %q", model.ErrDiscountCodeInvalid, code)
	}

	if c.Policy() == catalog.PolicyBest && len(matched) > 1 {
		best := matched[0]
		for _, r := range matched[1:] {
			// matched is in id order, so strict comparison keeps the lowest id on ties.
			if r.Percentage.GreaterThan(best.Percentage) {
				best = r
			}
		}
		matched = []model.DiscountRule{best}
	}
	return matched, nil
}

// applyDiscounts reduces the subtotal by each rule in turn, each percentage
// taken from what remains after the previous rules. The running amount is
// kept exact and floored to the minor unit only when reporting, so line
// items always sum to the total discount.
func applyDiscounts(b *model.FeeBreakdown, rules []model.DiscountRule) {
	remaining := decimal.NewFromInt(b.Subtotal)
	reported := b.Subtotal
	for _, r := range rules {
		pct := decimal.Min(decimal.Max(r.Percentage, decimal.Zero), hundred)
		remaining = remaining.Mul(hundred.Sub(pct)).Div(hundred)
		next := remaining.Floor().IntPart()
		b.Discounts = append(b.Discounts, model.DiscountLine{
			RuleID:     r.ID,
			Kind:       r.Kind,
			Percentage: r.Percentage,
			Amount:     reported - next,
		})
		reported = next
	}
	b.Total = max(reported, 0)
	b.Discount = b.Subtotal - b.Total
}
