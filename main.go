// Project: PCA+ARIMA Macroeconomic Scenario Forecasting
// Entry point: loads the run configuration and input panels, executes the
// forecasting pipeline, and exports the scenario and diagnostic tables.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	// A missing .env is fine, the environment may already be set.
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		log = log.Level(lvl)
	}

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("scenario run failed")
	}
}

func run(log zerolog.Logger) error {
	configPath := "config.yaml"
	if v := os.Getenv("SCENARIO_CONFIG"); v != "" {
		configPath = v
	}
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	log.Info().Str("config", configPath).Msg("configuration loaded")

	panel, err := LoadPanelCSV(cfg.DataCSV)
	if err != nil {
		return err
	}
	refPanel, err := LoadPanelCSV(cfg.RefDataCSV)
	if err != nil {
		return err
	}
	included, signs, err := LoadIndicatorList(cfg.IndicatorCSV)
	if err != nil {
		return err
	}
	log.Info().
		Int("variables_included", len(included)).
		Str("data", cfg.DataCSV).
		Str("reference", cfg.RefDataCSV).
		Msg("inputs loaded")

	panel, err = panel.Select(included)
	if err != nil {
		return err
	}
	refPanel, err = refPanel.Select(included)
	if err != nil {
		return err
	}

	result, err := RunPipeline(panel, refPanel, signs, cfg, log)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}
	out := func(name string) string { return filepath.Join(cfg.OutputDir, name) }

	scenarioFiles := []struct {
		name  string
		table *ForecastTable
	}{
		{"forecast_base.csv", result.Scenarios.Base},
		{"forecast_optimistic.csv", result.Scenarios.Optimistic},
		{"forecast_pessimistic.csv", result.Scenarios.Pessimistic},
		{"forecast_extreme_optimistic.csv", result.Scenarios.ExtremeOptimistic},
		{"forecast_extreme_pessimistic.csv", result.Scenarios.ExtremePessimistic},
	}
	for _, sf := range scenarioFiles {
		if err := WriteScenarioCSV(out(sf.name), panel, sf.table); err != nil {
			return err
		}
	}
	if err := WriteRecordsCSV(out("regression_records.csv"), result.Records); err != nil {
		return err
	}
	if err := WriteScreeningCSV(out("factor_screening.csv"), result.Screening); err != nil {
		return err
	}
	if err := WriteFactorScoresCSV(out("factor_scores.csv"), result.Factors); err != nil {
		return err
	}
	if err := WriteFactorForecastCSV(out("factor_forecast.csv"), result.FactorForecast); err != nil {
		return err
	}
	if err := WriteNormalizationParamsCSV(out("normalization_params.csv"), panel.VarNames, result.Params, signs); err != nil {
		return err
	}

	log.Info().Str("dir", cfg.OutputDir).Msg("outputs written")
	return nil
}
