package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"boxbluebook/internal/app"
	"boxbluebook/internal/pricing"
)

var (
	saleCigar     string
	salePrice     string
	saleQuantity  int
	saleSource    string
	saleType      string
	saleCondition string
	saleDate      string
	saleVerified  bool
)

var recordSaleCmd = &cobra.Command{
	Use:   "record-sale",
	Short: "Record a secondary-market sale in the transaction ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseCigarID(saleCigar)
		if err != nil {
			return err
		}
		price, err := decimal.NewFromString(salePrice)
		if err != nil {
			return fmt.Errorf("invalid --price value %q: %w", salePrice, err)
		}
		date := time.Now().UTC()
		if saleDate != "" {
			if date, err = parseTime("date", saleDate); err != nil {
				return err
			}
		}
		return getApp().RecordSale(cmd.Context(), app.RecordSaleOptions{
			CigarID:   id,
			Source:    pricing.TransactionSource(saleSource),
			Type:      pricing.TransactionType(saleType),
			Condition: pricing.Condition(saleCondition),
			Quantity:  saleQuantity,
			UnitPrice: price,
			Date:      date,
			Verified:  saleVerified,
			Out:       cmd.OutOrStdout(),
		})
	},
}

func init() {
	recordSaleCmd.Flags().StringVar(&saleCigar, "cigar", "", "Cigar id")
	recordSaleCmd.Flags().StringVar(&salePrice, "price", "", "Price per box")
	recordSaleCmd.Flags().IntVar(&saleQuantity, "quantity", 1, "Boxes sold")
	recordSaleCmd.Flags().StringVar(&saleSource, "source", string(pricing.SourceManual), "Transaction source")
	recordSaleCmd.Flags().StringVar(&saleType, "type", string(pricing.TypeSale), "Sale mechanism (sale, auction, buy_now, offer_accepted)")
	recordSaleCmd.Flags().StringVar(&saleCondition, "condition", "", "Box condition (defaults to unknown)")
	recordSaleCmd.Flags().StringVar(&saleDate, "date", "", "Sale date (RFC3339 or YYYY-MM-DD, defaults to now)")
	recordSaleCmd.Flags().BoolVar(&saleVerified, "verified", false, "Count the sale toward aggregates")
	_ = recordSaleCmd.MarkFlagRequired("cigar")
	_ = recordSaleCmd.MarkFlagRequired("price")
}
