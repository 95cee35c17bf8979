//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package cmd

import (
	"github.com/cloudmanic/optionflow/internal/alpaca"
	"github.com/cloudmanic/optionflow/internal/bulkfiles"
	"github.com/cloudmanic/optionflow/internal/config"
	"github.com/cloudmanic/optionflow/internal/contracts"
	"github.com/cloudmanic/optionflow/internal/coordinator"
	"github.com/cloudmanic/optionflow/internal/polygon"
	"github.com/cloudmanic/optionflow/internal/questdb"
	"github.com/cloudmanic/optionflow/internal/stocks"
	"github.com/cloudmanic/optionflow/internal/store"
	"github.com/cloudmanic/optionflow/internal/stream"
	"github.com/cloudmanic/optionflow/internal/trades"
)

// pipeline bundles the constructed-once root objects every command works
// from: configuration, the store gateway, the write layer, both vendor
// clients, and the engines built on top of them.
type pipeline struct {
	cfg       config.Config
	gw        *questdb.Gateway
	writer    *store.Writer
	polygon   *polygon.Client
	alpaca    *alpaca.Client
	stocks    *stocks.Engine
	contracts *contracts.Engine
	trades    *trades.Engine
	coord     *coordinator.Coordinator
}

// newPipeline loads configuration from the environment and wires the
// full component graph. Nothing connects to the store or the vendors
// until a command drives it.
func newPipeline() (*pipeline, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	gw := questdb.NewGateway(cfg.QuestDBURL(), logger)
	writer := store.NewWriter(gw, cfg.TestMode, logger)

	polygonClient := polygon.NewClient(cfg.PolygonAPIKey)
	if cfg.PolygonBaseURL != "" {
		polygonClient.SetBaseURL(cfg.PolygonBaseURL)
	}

	alpacaClient := alpaca.NewClient(cfg.AlpacaAPIKeyID, cfg.AlpacaAPISecretKey)
	if cfg.AlpacaDataURL != "" {
		alpacaClient.SetBaseURL(cfg.AlpacaDataURL)
	}

	p := &pipeline{
		cfg:     cfg,
		gw:      gw,
		writer:  writer,
		polygon: polygonClient,
		alpaca:  alpacaClient,
	}

	p.stocks = stocks.NewEngine(alpacaClient, writer, logger)
	p.contracts = contracts.NewEngine(polygonClient, writer, logger)
	p.trades = trades.NewEngine(
		polygonClient, writer,
		cfg.OptionTradeValueThreshold,
		cfg.OptionConcurrencyLimit,
		cfg.OptionQuotesChunkSize,
		logger,
	)
	p.coord = coordinator.New(cfg, gw, writer, p.stocks, p.contracts, p.trades, logger)

	return p, nil
}

// newStreamEngine builds the realtime trade stream engine over the
// pipeline's write layer.
func (p *pipeline) newStreamEngine() *stream.Engine {
	return stream.NewEngine(stream.Config{
		WSURL:     p.cfg.PolygonWSURL,
		APIKey:    p.cfg.PolygonAPIKey,
		Tickers:   p.cfg.Tickers,
		Threshold: p.cfg.OptionTradeValueThreshold,
	}, p.writer, nil, logger)
}

// newBulkClient builds the bulk trade file client from the pipeline's
// flat-file credentials.
func (p *pipeline) newBulkClient() *bulkfiles.Client {
	return bulkfiles.NewClient(p.cfg.PolygonAccessKey, p.cfg.PolygonSecretKey, "")
}
