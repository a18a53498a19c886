package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/stesla/telnetd/internal/server"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "telnetd"
	app.Usage = "telnet server with RFC 1143 option negotiation"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			EnvVar: "TELNETD_CONFIG",
			Usage:  "TOML configuration file",
		},
		cli.StringFlag{
			Name:   "addr",
			EnvVar: "TELNETD_ADDR",
			Usage:  "address on which to listen",
		},
		cli.StringFlag{
			Name:   "log-level",
			EnvVar: "TELNETD_LOG_LEVEL",
			Usage:  "trace, debug, info, warn or error",
		},
		cli.StringFlag{
			Name:   "log-format",
			EnvVar: "TELNETD_LOG_FORMAT",
			Usage:  "console or json",
		},
		cli.StringFlag{
			Name:   "charset",
			EnvVar: "TELNETD_CHARSET",
			Usage:  "IANA character set for text outside binary mode (empty for none)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger := zerolog.New(os.Stderr)
		logger.Fatal().Err(err).Send()
	}
}

func run(c *cli.Context) error {
	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	tcfg, negotiate, err := cfg.telnetConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &server.Server{
		Addr:    cfg.Addr,
		Handler: &echoApp{negotiate: negotiate},
		Config:  tcfg,
		Logger:  logger,
	}
	err = srv.ListenAndServe(ctx)
	logger.Info().Msg("stopped")
	return err
}

// configFromContext layers the config file and then any flags over the
// defaults. The charset flag may be set to "" explicitly to turn
// transcoding off.
func configFromContext(c *cli.Context) (config, error) {
	cfg := defaultConfig()
	if path := c.String("config"); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return config{}, err
		}
	}
	if v := c.String("addr"); v != "" {
		cfg.Addr = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.LogFormat = v
	}
	if c.IsSet("charset") {
		cfg.Charset = c.String("charset")
	}
	return cfg, nil
}
