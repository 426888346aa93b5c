package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	searchaccel "github.com/search-accel/search-accel"
	"github.com/search-accel/search-accel/metrics"
	"github.com/search-accel/search-accel/origin"
	"github.com/search-accel/search-accel/store"
)

var (
	// CLI flags
	portFlag           int
	originFlag         string
	redisFlag          string
	storeFlag          string
	configFlag         string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&originFlag, "origin", "", "Search backend URL to accelerate")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&redisFlag, "redis", "localhost:6379", "Redis address for the primary store")
	flag.StringVar(&storeFlag, "store", "", "Store backend: redis, sqlite or memory")
	flag.StringVar(&configFlag, "config", "", "YAML config file (TTL tiers, tab rules, store)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	var fileConfig searchaccel.FileConfig
	if configFlag != "" {
		var err error
		if fileConfig, err = searchaccel.LoadConfig(configFlag); err != nil {
			log.Fatal().Err(err).Msg("Cannot load config file")
		}
	}

	// flags override the config file
	if originFlag != "" {
		fileConfig.Origin = originFlag
	}
	if fileConfig.Origin == "" {
		log.Fatal().Msg("Please specify the search backend origin")
	}
	if fileConfig.Port == 0 {
		fileConfig.Port = portFlag
	}
	if storeFlag != "" {
		fileConfig.Store.Backend = storeFlag
	}
	if fileConfig.Store.RedisAddr == "" {
		fileConfig.Store.RedisAddr = redisFlag
	}

	originURL, err := url.Parse(fileConfig.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	logger := log.Logger.With().Str("origin", originURL.String()).Logger()
	m := metrics.New(prometheus.DefaultRegisterer)

	accel := searchaccel.CreateAccelerator(searchaccel.Config{
		Store:           store.Open(fileConfig.Store, logger),
		Origin:          origin.NewClient(originURL, 0, logger),
		TTL:             fileConfig.TTL,
		TrackerCapacity: fileConfig.TrackerCapacity,
		Metrics:         m,
		Logger:          &logger,
	})
	defer accel.Close()

	router := accel.Routes()
	router.Handle("/metrics", promhttp.Handler())

	log.Info().Msgf("Accelerating search on port %v for %s", fileConfig.Port, originURL.String())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", fileConfig.Port), router); err != nil {
		log.Fatal().Err(err).Msg("Server exited")
	}
}
