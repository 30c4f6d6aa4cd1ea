// Package catalog holds the typed pricing catalog: registration categories,
// workshops, the accompanying-person fee and discount rules.
//
// A catalog is parsed from YAML with a closed set of recognised fields;
// unknown keys are rejected rather than passed through.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

// DiscountPolicy selects how several matching discount rules combine.
type DiscountPolicy string

const (
	// PolicyStack applies every matching rule as successive percentage
	// reductions in ascending rule-id order.
	PolicyStack DiscountPolicy = "stack"
	// PolicyBest applies only the largest matching percentage.
	PolicyBest DiscountPolicy = "best"
)

var hundred = decimal.NewFromInt(100)

// file mirrors the YAML layout.
type file struct {
	Currency        model.Currency  `yaml:"currency"`
	AccompanyingFee decimal.Decimal `yaml:"accompanying_fee"`
	DiscountPolicy  DiscountPolicy  `yaml:"discount_policy"`
	Categories      []struct {
		ID         string          `yaml:"id"`
		Label      string          `yaml:"label"`
		BaseAmount decimal.Decimal `yaml:"base_amount"`
		Currency   model.Currency  `yaml:"currency"`
	} `yaml:"categories"`
	Workshops []struct {
		ID       string          `yaml:"id"`
		Name     string          `yaml:"name"`
		Amount   decimal.Decimal `yaml:"amount"`
		MaxSeats int             `yaml:"max_seats"`
	} `yaml:"workshops"`
	Discounts []struct {
		ID         string             `yaml:"id"`
		Kind       model.DiscountKind `yaml:"kind"`
		Percentage decimal.Decimal    `yaml:"percentage"`
		ValidFrom  *time.Time         `yaml:"valid_from"`
		ValidUntil *time.Time         `yaml:"valid_until"`
		Code       string             `yaml:"code"`
		Categories []string           `yaml:"categories"`
		Active     *bool              `yaml:"active"`
	} `yaml:"discounts"`
}

// Catalog is an immutable pricing snapshot. It is safe for concurrent use.
type Catalog struct {
	currency        model.Currency
	accompanyingFee int64
	policy          DiscountPolicy
	categories      map[string]model.RegistrationCategory
	workshops       map[string]model.Workshop
	discounts       []model.DiscountRule // sorted by id
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("catalog %s not found", path)
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f file
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	if !f.Currency.Valid() {
		return nil, fmt.Errorf("currency %q is not supported", f.Currency)
	}
	c := &Catalog{
		currency:   f.Currency,
		policy:     f.DiscountPolicy,
		categories: make(map[string]model.RegistrationCategory, len(f.Categories)),
		workshops:  make(map[string]model.Workshop, len(f.Workshops)),
	}
	if c.policy == "" {
		c.policy = PolicyStack
	}
	if c.policy != PolicyStack && c.policy != PolicyBest {
		return nil, fmt.Errorf("discount_policy %q must be stack or best", c.policy)
	}

	var err error
	if c.accompanyingFee, err = toMinor(f.AccompanyingFee, c.currency); err != nil {
		return nil, fmt.Errorf("accompanying_fee: %w", err)
	}

	if len(f.Categories) == 0 {
		return nil, errors.New("at least one category is required")
	}
	for _, fc := range f.Categories {
		id := strings.TrimSpace(fc.ID)
		if id == "" {
			return nil, errors.New("category with empty id")
		}
		if id == model.AllCategories {
			return nil, fmt.Errorf("category id %q is reserved", id)
		}
		if _, dup := c.categories[id]; dup {
			return nil, fmt.Errorf("duplicate category %s", id)
		}
		cur := fc.Currency
		if cur == "" {
			cur = c.currency
		}
		if cur != c.currency {
			return nil, fmt.Errorf("category %s currency %s differs from catalog currency %s", id, cur, c.currency)
		}
		base, err := toMinor(fc.BaseAmount, cur)
		if err != nil {
			return nil, fmt.Errorf("category %s base_amount: %w", id, err)
		}
		c.categories[id] = model.RegistrationCategory{ID: id, Label: fc.Label, BaseAmount: base, Currency: cur}
	}

	for _, fw := range f.Workshops {
		id := strings.TrimSpace(fw.ID)
		if id == "" {
			return nil, errors.New("workshop with empty id")
		}
		if _, dup := c.workshops[id]; dup {
			return nil, fmt.Errorf("duplicate workshop %s", id)
		}
		if fw.MaxSeats < 0 {
			return nil, fmt.Errorf("workshop %s max_seats must not be negative", id)
		}
		amount, err := toMinor(fw.Amount, c.currency)
		if err != nil {
			return nil, fmt.Errorf("workshop %s amount: %w", id, err)
		}
		c.workshops[id] = model.Workshop{ID: id, Name: fw.Name, Amount: amount, MaxSeats: fw.MaxSeats}
	}

	seen := make(map[string]bool, len(f.Discounts))
	codes := make(map[string]string)
	for _, fd := range f.Discounts {
		id := strings.TrimSpace(fd.ID)
		if id == "" {
			return nil, errors.New("discount with empty id")
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate discount %s", id)
		}
		seen[id] = true
		if fd.Percentage.IsNegative() || fd.Percentage.GreaterThan(hundred) {
			return nil, fmt.Errorf("discount %s percentage must be between 0 and 100", id)
		}
		rule := model.DiscountRule{
			ID:         id,
			Kind:       fd.Kind,
			Percentage: fd.Percentage,
			ValidFrom:  fd.ValidFrom,
			ValidUntil: fd.ValidUntil,
			Code:       strings.TrimSpace(fd.Code),
			Active:     fd.Active == nil || *fd.Active,
		}
		switch rule.Kind {
		case model.DiscountTime:
			if rule.Code != "" {
				return nil, fmt.Errorf("time discount %s must not carry a code", id)
			}
			if rule.ValidFrom != nil && rule.ValidUntil != nil && !rule.ValidFrom.Before(*rule.ValidUntil) {
				return nil, fmt.Errorf("discount %s valid_from must be before valid_until", id)
			}
		case model.DiscountCode:
			if rule.Code == "" {
				return nil, fmt.Errorf("code discount %s requires a code", id)
			}
			if rule.ValidFrom != nil || rule.ValidUntil != nil {
				return nil, fmt.Errorf("code discount %s must not carry a time window", id)
			}
			key := strings.ToUpper(rule.Code)
			if other, dup := codes[key]; dup {
				return nil, fmt.Errorf("discount code %s used by both %s and %s", rule.Code, other, id)
			}
			codes[key] = id
		default:
			return nil, fmt.Errorf("discount %s kind %q must be time or code", id, rule.Kind)
		}
		if len(fd.Categories) == 0 {
			return nil, fmt.Errorf("discount %s needs categories (ids or %q)", id, model.AllCategories)
		}
		for _, cat := range fd.Categories {
			if cat == model.AllCategories {
				continue
			}
			if _, ok := c.categories[cat]; !ok {
				return nil, fmt.Errorf("discount %s references unknown category %s", id, cat)
			}
		}
		rule.Categories = slices.Clone(fd.Categories)
		c.discounts = append(c.discounts, rule)
	}
	slices.SortFunc(c.discounts, func(a, b model.DiscountRule) int { return strings.Compare(a.ID, b.ID) })

	return c, nil
}

// toMinor converts a major-unit decimal to the currency's smallest unit,
// rejecting negative amounts and sub-unit precision.
func toMinor(d decimal.Decimal, cur model.Currency) (int64, error) {
	if d.IsNegative() {
		return 0, errors.New("amount must not be negative")
	}
	minor := d.Shift(cur.MinorDigits())
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d, cur.MinorDigits())
	}
	return minor.IntPart(), nil
}

// Currency is the currency every amount in the catalog is stated in.
func (c *Catalog) Currency() model.Currency { return c.currency }

// AccompanyingFee is the per-person fee in minor units.
func (c *Catalog) AccompanyingFee() int64 { return c.accompanyingFee }

// Policy is the discount combination policy.
func (c *Catalog) Policy() DiscountPolicy { return c.policy }

// Category returns a registration category or model.ErrCategoryNotFound.
func (c *Catalog) Category(id string) (model.RegistrationCategory, error) {
	cat, ok := c.categories[id]
	if !ok {
		return model.RegistrationCategory{}, fmt.Errorf("%w: %s", model.ErrCategoryNotFound, id)
	}
	return cat, nil
}

// Workshop returns a workshop or model.ErrWorkshopNotFound. BookedSeats is
// always zero here; live counts come from the capacity ledger.
func (c *Catalog) Workshop(id string) (model.Workshop, error) {
	w, ok := c.workshops[id]
	if !ok {
		return model.Workshop{}, fmt.Errorf("%w: %s", model.ErrWorkshopNotFound, id)
	}
	return w, nil
}

// Workshops returns every workshop sorted by id.
func (c *Catalog) Workshops() []model.Workshop {
	out := make([]model.Workshop, 0, len(c.workshops))
	for _, w := range c.workshops {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b model.Workshop) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Categories returns every category sorted by id.
func (c *Catalog) Categories() []model.RegistrationCategory {
	out := make([]model.RegistrationCategory, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, cat)
	}
	slices.SortFunc(out, func(a, b model.RegistrationCategory) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// ActiveDiscounts returns the active rules applicable to categoryID at now,
// in ascending id order. Time rules are filtered by their window; code rules
// are returned regardless of time and left to the caller to match.
func (c *Catalog) ActiveDiscounts(now time.Time, categoryID string) []model.DiscountRule {
	var out []model.DiscountRule
	for _, d := range c.discounts {
		if !d.Active || !d.AppliesTo(categoryID) {
			continue
		}
		if d.Kind == model.DiscountTime && !d.InWindow(now) {
			continue
		}
		out = append(out, d)
	}
	return out
}
