package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/stesla/libtelnet/internal/config"
)

var (
	configFile = flag.String("config", getEnvDefault("LIBTELNET_CONFIG", ""), "path to a YAML configuration file")
	addr       = flag.String("addr", getEnvDefault("LIBTELNET_ADDR", ""), "address on which to listen, overrides the configuration")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	logger, err := newLogger(os.Stdout, cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	l, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal().Err(err).Send()
	}
	defer l.Close()

	logger.Info().Str("addr", l.Addr().String()).Msg("started")

	ctx := logger.WithContext(context.Background())
	for {
		tcp, err := l.Accept()
		if err != nil {
			logger.Error().Err(err).Msg("error accepting connection")
			continue
		}
		go func() {
			s, err := newSession(ctx, tcp, cfg)
			if err != nil {
				logger.Error().Err(err).Msg("error starting session")
				tcp.Close()
				return
			}
			s.run()
		}()
	}
}

func getEnvDefault(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return defaultValue
}
