package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"esim-fulfillment/internal/config"
	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/infra/api"
	pg "esim-fulfillment/internal/infra/db/postgres"
	"esim-fulfillment/internal/infra/logging"
)

type seedPlan struct {
	Name     string
	Country  [2]string // iso2, name
	Carrier  string
	DataGB   float64 // 0 means unlimited
	Days     int
	Price    int64
	Currency string
}

var catalog = []seedPlan{
	{"Europe 5GB", [2]string{"FR", "France"}, "Orange", 5, 30, 999, "USD"},
	{"Europe Unlimited", [2]string{"FR", "France"}, "Orange", 0, 15, 2499, "USD"},
	{"USA 10GB", [2]string{"US", "United States"}, "T-Mobile", 10, 30, 1499, "USD"},
	{"Japan 3GB", [2]string{"JP", "Japan"}, "Docomo", 3, 7, 599, "USD"},
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	perPool := flag.Int("items", 5, "inventory items per carrier/country pool")
	userID := flag.Int64("user", 1, "user id for the printed dev token")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	plans := pg.NewPostgresPlanRepo(pool)
	items := pg.NewInventoryRepo(pool)

	existing, err := plans.ListActive(ctx, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("list plans")
	}
	if len(existing) > 0 {
		logger.Info().Int("plans", len(existing)).Msg("catalog already present, plans unchanged")
	}

	type poolKey struct{ country, carrier int64 }
	pools := map[poolKey]string{}
	for _, sp := range catalog {
		countryID, err := plans.UpsertCountry(ctx, nil, sp.Country[0], sp.Country[1])
		if err != nil {
			logger.Fatal().Err(err).Str("country", sp.Country[0]).Msg("upsert country")
		}
		carrierID, err := plans.UpsertCarrier(ctx, nil, sp.Carrier)
		if err != nil {
			logger.Fatal().Err(err).Str("carrier", sp.Carrier).Msg("upsert carrier")
		}
		pools[poolKey{countryID, carrierID}] = sp.Country[0]

		if len(existing) > 0 {
			continue
		}
		p := &model.Plan{
			Name:            sp.Name,
			CountryID:       countryID,
			CarrierID:       carrierID,
			IsUnlimited:     sp.DataGB == 0,
			DurationDays:    sp.Days,
			PriceMinorUnits: sp.Price,
			Currency:        sp.Currency,
			IsActive:        true,
		}
		if sp.DataGB > 0 {
			gb := sp.DataGB
			p.DataGB = &gb
		}
		if err := plans.Save(ctx, nil, p); err != nil {
			logger.Fatal().Err(err).Str("plan", sp.Name).Msg("save plan")
		}
		logger.Info().Int64("id", p.ID).Str("name", p.Name).Str("price", model.FormatMinorUnits(p.PriceMinorUnits)).Msg("plan created")
	}

	created := 0
	for k, iso := range pools {
		for i := 0; i < *perPool; i++ {
			it := &model.InventoryItem{
				CountryID:   k.country,
				CarrierID:   k.carrier,
				ICCID:       fmt.Sprintf("89%s%04d%04d%06d", iso, k.country, k.carrier, i),
				SMDPAddress: "smdp.example.com",
			}
			err := items.Insert(ctx, nil, it)
			if errors.Is(err, domain.ErrAlreadyExists) {
				continue
			}
			if err != nil {
				logger.Fatal().Err(err).Str("iccid", it.ICCID).Msg("insert inventory item")
			}
			created++
		}
	}
	logger.Info().Int("items", created).Msg("inventory seeded")

	auth := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	userTok, err := auth.Mint(*userID, "")
	if err != nil {
		logger.Fatal().Err(err).Msg("mint token")
	}
	adminTok, err := auth.Mint(*userID, api.RoleAdmin)
	if err != nil {
		logger.Fatal().Err(err).Msg("mint token")
	}
	fmt.Printf("user token (user %d):\n%s\n\nadmin token:\n%s\n", *userID, userTok, adminTok)
}
