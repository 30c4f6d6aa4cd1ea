package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/conference-registration/internal/catalog"
	"github.com/Shivanand-hulikatti/conference-registration/internal/fee"
	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect pricing catalogs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check FILE",
		Short: "Parse and validate a catalog file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "catalog ok: %d categories, %d workshops, currency %s, discount policy %s\n",
				len(c.Categories()), len(c.Workshops()), c.Currency(), c.Policy())

			tw := table.NewWriter()
			tw.SetOutputMirror(out)
			tw.AppendHeader(table.Row{"Workshop", "Name", "Fee", "Seats"})
			for _, w := range c.Workshops() {
				tw.AppendRow(table.Row{w.ID, w.Name, money(w.Amount, c.Currency()), w.MaxSeats})
			}
			tw.Render()
			return nil
		},
	})
	return cmd
}

func quoteCmd() *cobra.Command {
	var (
		path   string
		req    model.QuoteRequest
		at     string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute a fee breakdown offline from a catalog file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := catalog.Load(path)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			sel := model.NewSelection(req.CategoryID, req.WorkshopIDs, req.AccompanyingCount, req.DiscountCode)
			b, err := fee.Calculate(c, sel, now)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(b)
			}
			renderBreakdown(cmd.OutOrStdout(), b)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "catalog", "catalog.yaml", "catalog file")
	cmd.Flags().StringVar(&req.CategoryID, "category", "", "registration category id")
	cmd.Flags().StringSliceVar(&req.WorkshopIDs, "workshop", nil, "workshop id (repeatable)")
	cmd.Flags().IntVar(&req.AccompanyingCount, "accompanying", 0, "number of accompanying persons")
	cmd.Flags().StringVar(&req.DiscountCode, "code", "", "discount code")
	cmd.Flags().StringVar(&at, "at", "", "price at this RFC3339 instant instead of now")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func renderBreakdown(out io.Writer, b *model.FeeBreakdown) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Item", "Amount"})
	tw.AppendRow(table.Row{"Category " + b.CategoryID, money(b.Base, b.Currency)})
	for _, w := range b.Workshops {
		tw.AppendRow(table.Row{"Workshop " + w.WorkshopID, money(w.Amount, b.Currency)})
	}
	if b.AccompanyingCount > 0 {
		tw.AppendRow(table.Row{fmt.Sprintf("Accompanying x%d", b.AccompanyingCount), money(b.PersonTotal, b.Currency)})
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Subtotal", money(b.Subtotal, b.Currency)})
	for _, d := range b.Discounts {
		tw.AppendRow(table.Row{fmt.Sprintf("Discount %s (%s%%)", d.RuleID, d.Percentage), "-" + money(d.Amount, b.Currency)})
	}
	tw.AppendFooter(table.Row{"Total", money(b.Total, b.Currency)})
	tw.Render()
}

func money(minor int64, cur model.Currency) string {
	return decimal.New(minor, -cur.MinorDigits()).StringFixed(cur.MinorDigits()) + " " + string(cur)
}
