package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/jd3nn1s/scrc"
	"github.com/jd3nn1s/scrc/forwarder"
	"github.com/jd3nn1s/scrc/recorder"
	log "github.com/sirupsen/logrus"
	"os"
	"os/signal"
	"syscall"
)

var (
	configFile  = flag.String("config", "", "TOML configuration file")
	host        = flag.String("host", "localhost", "simulation server host")
	port        = flag.Int("port", 3001, "simulation server port")
	id          = flag.String("id", "SCR", "bot id sent with the init string")
	maxEpisodes = flag.Int("maxEpisodes", 1, "episodes to race, 0 for no limit")
	maxSteps    = flag.Int("maxSteps", 0, "steps per episode before quitting, 0 for no limit")
	track       = flag.String("track", "", "track name, informational")
	stage       = flag.Int("stage", int(scrc.StageUnknown), "0 warm-up, 1 qualifying, 2 race, 3 unknown")
	verbose     = flag.Bool("verbose", false, "log every message sent and received")
	testMode    = flag.Bool("testmode", false, "race against an in-process test server")
	printTicks  = flag.Bool("print-ticks", false, "print every tick to stdout")
)

type printForwarder struct{}

func (printForwarder) Forward(t *scrc.Tick) error {
	fmt.Printf("%+v\n", *t)
	return nil
}

func loadConfig() (scrc.Config, error) {
	config := scrc.DefaultConfig()
	if *configFile != "" {
		var err error
		if config, err = scrc.LoadConfig(*configFile); err != nil {
			return config, err
		}
	}
	if err := config.ApplyEnv(); err != nil {
		return config, err
	}
	// only flags given on the command line override file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			config.Host = *host
		case "port":
			config.Port = *port
		case "id":
			config.ID = *id
		case "maxEpisodes":
			config.MaxEpisodes = *maxEpisodes
		case "maxSteps":
			config.MaxSteps = *maxSteps
		case "track":
			config.Track = *track
		case "stage":
			config.Stage = scrc.ParseStage(*stage)
		}
	})
	if *verbose {
		config.LogLevel = "debug"
	}
	return config, config.Validate()
}

func setupLogging(config scrc.Config) {
	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		log.WithField("level", config.LogLevel).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if config.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

func main() {
	flag.Parse()

	config, err := loadConfig()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}
	setupLogging(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *testMode {
		server, err := scrc.NewTestServer("127.0.0.1:0")
		if err != nil {
			log.Fatal("unable to start test server: ", err)
		}
		defer server.Close()
		go func() {
			if err := server.Run(ctx); err != nil && ctx.Err() == nil {
				log.WithField("err", err).Error("test server stopped")
			}
		}()
		config.Host = "127.0.0.1"
		config.Port = server.Port()
	}

	log.WithFields(log.Fields{
		"host":        config.Host,
		"port":        config.Port,
		"id":          config.ID,
		"maxEpisodes": config.MaxEpisodes,
		"maxSteps":    config.MaxSteps,
		"track":       config.Track,
		"stage":       config.Stage,
	}).Info("starting client")

	driver := scrc.NewDriver(config.Driver)
	if config.Predictor.Model != "" {
		model, err := scrc.LoadPolynomialModel(config.Predictor.Model)
		if err != nil {
			log.Fatal("unable to load predictor: ", err)
		}
		driver.SetPredictor(model, config.Predictor.Blend)
	}

	client := scrc.NewClient(config, driver)
	if config.Forwarder.Server != "" {
		fwder, err := forwarder.NewUDPForwarderFromConfig(forwarder.UDPConfig{
			Server: config.Forwarder.Server,
			Port:   config.Forwarder.Port,
		})
		if err != nil {
			log.Fatal("unable to load UDP forwarder: ", err)
		}
		defer fwder.Close()
		go fwder.Start(ctx)
		client.AddForwarder(fwder)
	}
	if config.Recorder.Path != "" {
		rec, err := recorder.Open(config.Recorder.Path)
		if err != nil {
			log.Fatal("unable to open recorder: ", err)
		}
		defer rec.Close()
		client.AddForwarder(rec)
	}
	if *printTicks {
		client.AddForwarder(printForwarder{})
	}

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("client stopped: ", err)
	}
	log.WithField("episodes", client.Episodes()).Info("client finished")
}
