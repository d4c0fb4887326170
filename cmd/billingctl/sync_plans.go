package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fullmeo/aimastery-billing/internal/domain/catalog"
	providerFactory "github.com/fullmeo/aimastery-billing/internal/infrastructure/provider"
)

var syncPlansCmd = &cobra.Command{
	Use:   "sync-plans",
	Short: "Create or look up the Stripe price of every purchasable plan",
	Long: `sync-plans makes sure each purchasable catalog plan has a recurring Stripe price
(lookup key = plan id) and prints the checkout.prices block to paste into billing.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		stripe, err := providerFactory.NewFactory(cfg, log).Stripe()
		if err != nil {
			return err
		}

		prices, err := syncPlans(cmd.Context(), stripe, catalog.All(), log)
		if err != nil {
			return err
		}
		return writePriceMapping(cmd.OutOrStdout(), prices)
	},
}

// priceEnsurer is the slice of the Stripe provider sync-plans needs.
type priceEnsurer interface {
	EnsurePrice(ctx context.Context, plan catalog.Plan) (priceID string, created bool, err error)
}

// syncPlans returns plan id -> price id for every purchasable plan.
func syncPlans(ctx context.Context, p priceEnsurer, plans []catalog.Plan, log *zap.Logger) (map[string]string, error) {
	prices := make(map[string]string)
	for _, plan := range plans {
		if !plan.IsPurchasable() {
			continue
		}

		priceID, created, err := p.EnsurePrice(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("sync plan %s: %w", plan.ID, err)
		}
		prices[plan.ID] = priceID

		log.Info("Plan synced",
			zap.String("plan", plan.ID),
			zap.String("price_id", priceID),
			zap.Bool("created", created))
	}
	return prices, nil
}

type priceMapping struct {
	Checkout struct {
		Prices map[string]string `yaml:"prices"`
	} `yaml:"checkout"`
}

func writePriceMapping(w io.Writer, prices map[string]string) error {
	var doc priceMapping
	doc.Checkout.Prices = prices

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode price mapping: %w", err)
	}
	return enc.Close()
}
