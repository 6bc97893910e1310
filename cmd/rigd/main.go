// rigd owns the rig's serial link, runs the sensor managers and the blood
// pressure decoder, and serves their status.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/bpdecoder"
	"github.com/NotCoffee418/vitals_rig/pkg/config"
	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/NotCoffee418/vitals_rig/pkg/glyphfeed"
	"github.com/NotCoffee418/vitals_rig/pkg/journal"
	"github.com/NotCoffee418/vitals_rig/pkg/logger"
	"github.com/NotCoffee418/vitals_rig/pkg/pathing"
	"github.com/NotCoffee418/vitals_rig/pkg/publisher"
	"github.com/NotCoffee418/vitals_rig/pkg/rigstatus"
	"github.com/NotCoffee418/vitals_rig/pkg/sensors"
	"github.com/NotCoffee418/vitals_rig/pkg/serial_link"
	"github.com/NotCoffee418/vitals_rig/pkg/statusapi"
	"github.com/NotCoffee418/vitals_rig/pkg/telemetry"
	"github.com/spf13/pflag"
)

const reconnectInterval = 5 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", pathing.GetRigConfigPath(), "Path to rigd.toml")
	port := pflag.StringP("port", "p", "", "Serial device to use instead of discovery")
	debug := pflag.Bool("debug", false, "Enable debug logging")
	verbose := pflag.BoolP("verbose", "v", false, "Enable verbose logging")
	noVision := pflag.Bool("no-vision", false, "Do not connect to the vision glyph feed")
	pflag.Parse()

	cfg, err := config.LoadRigConfig(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(*debug || cfg.Log.Debug, *verbose || cfg.Log.Verbose, logger.IsService())
	logger.Debug().Str("path", *configPath).Msg("Config loaded")

	if *port != "" {
		cfg.Serial.Device = *port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	link := serial_link.NewLink(serial_link.OptionsFromConfig(cfg.Serial))
	weightHeight := sensors.NewWeightHeightManager(link)
	temperature := sensors.NewTemperatureManager(link)
	pulseOx := sensors.NewPulseOxManager(link)
	decoder := bpdecoder.NewDecoder(bpdecoder.OptionsFromConfig(cfg.BP))

	var (
		wg                   sync.WaitGroup
		measurementObservers []sensors.Observer
		bpObservers          []func(bpdecoder.Reading)
		hooks                serial_link.SessionHooks
	)

	if cfg.Journal.Enabled {
		j := openJournal(cfg.Journal.Path)
		defer j.Close()

		sub := subscribe(link, "journal")
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.Run(ctx, link, sub.C())
		}()

		measurementObservers = append(measurementObservers, j.MeasurementObserver(link))
		bpObservers = append(bpObservers, j.BPObserver(link))
		hooks.Connected = func(sessionID, port string) {
			if err := j.StartSession(sessionID, port, time.Now()); err != nil {
				logger.Warn().Err(err).Msg("Failed to journal session start")
			}
		}
		hooks.Disconnected = func(sessionID string) {
			if err := j.EndSession(sessionID, time.Now()); err != nil {
				logger.Warn().Err(err).Msg("Failed to journal session end")
			}
		}
	}

	if cfg.MQTT.Enabled {
		pub, client, err := publisher.Connect(cfg.MQTT)
		if err != nil {
			// Measurements still work locally without the broker
			logger.Error().Err(err).Msg("MQTT unavailable, measurements will not be published")
		} else {
			defer client.Disconnect(250)
			measurementObservers = append(measurementObservers, pub.MeasurementObserver())
			bpObservers = append(bpObservers, pub.BPObserver())
		}
	}

	observe := fanOut(measurementObservers)
	weightHeight.SetObserver(observe)
	temperature.SetObserver(observe)
	pulseOx.SetObserver(observe)
	decoder.OnChange(fanOutBP(bpObservers))

	for _, m := range []struct {
		name string
		run  func(context.Context, <-chan telemetry.Message)
	}{
		{sensors.SensorWeightHeight, weightHeight.Run},
		{sensors.SensorTemperature, temperature.Run},
		{sensors.SensorPulseOx, pulseOx.Run},
	} {
		sub := subscribe(link, m.name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.run(ctx, sub.C())
		}()
	}

	frames := make(chan []bpdecoder.Glyph, 8)
	wg.Add(1)
	go func() {
		defer wg.Done()
		decoder.Run(ctx, frames)
	}()
	if !*noVision {
		go func() {
			if err := glyphfeed.StartListener(ctx, glyphfeed.DefaultOptions(cfg.Vision.FeedHost), frames); err != nil {
				logger.Error().Err(err).Msg("Glyph feed stopped, blood pressure readings unavailable")
			}
		}()
	}

	aggregator := rigstatus.NewAggregator(link, weightHeight, temperature, pulseOx, decoder)
	api := statusapi.NewServer(
		aggregator,
		statusapi.Controls{
			WeightHeight: weightHeight,
			Temperature:  temperature,
			PulseOx:      pulseOx,
			BP:           decoder,
		},
		time.Duration(cfg.HTTP.StreamIntervalMs)*time.Millisecond,
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		api.Run(ctx)
	}()
	go func() {
		listener := fmt.Sprintf("%s:%d", cfg.HTTP.ListenAddress, cfg.HTTP.ListenPort)
		if err := api.ListenAndServe(ctx, listener); err != nil {
			logger.Error().Err(err).Str("address", listener).Msg("Status API failed")
			cancel()
		}
	}()

	// Blocks until shutdown
	link.Maintain(ctx, reconnectInterval, hooks)

	// Closing the link ends every subscription
	link.Close()
	wg.Wait()
	logger.Info().Msg("Exiting...")
}

func openJournal(path string) *journal.Journal {
	if err := pathing.EnsureDir(filepath.Dir(path)); err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("Failed to create journal directory")
	}
	j, err := journal.Open(path)
	if err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.FatalWithCode(coded).Msg("Failed to open journal")
		}
		logger.Fatal().Err(err).Msg("Failed to open journal")
	}
	return j
}

func subscribe(link *serial_link.Link, name string) *serial_link.Subscription {
	sub, err := link.Subscribe(name)
	if err != nil {
		logger.Fatal().Err(err).Str("subscriber", name).Msg("Failed to subscribe to telemetry")
	}
	return sub
}

func fanOut(observers []sensors.Observer) sensors.Observer {
	if len(observers) == 0 {
		return nil
	}
	return func(m sensors.Measurement) {
		for _, observe := range observers {
			observe(m)
		}
	}
}

func fanOutBP(observers []func(bpdecoder.Reading)) func(bpdecoder.Reading) {
	if len(observers) == 0 {
		return nil
	}
	return func(r bpdecoder.Reading) {
		for _, observe := range observers {
			observe(r)
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
