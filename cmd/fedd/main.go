package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/nexusfed/fedd"
	"github.com/nexusfed/fedd/signal"
)

func main() {
	cfg := fedd.DefaultConfig()
	if _, err := flags.Parse(&cfg); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	fedd.SetupLoggers(cfg.DebugLevel)

	shutdownInterceptor, err := signal.Intercept()
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to intercept signals: %v\n",
			err)
		os.Exit(1)
	}

	server, err := fedd.NewServer(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to create server: %v\n", err)
		os.Exit(1)
	}

	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "unable to start server: %v\n", err)
		os.Exit(1)
	}

	<-shutdownInterceptor.ShutdownChannel()

	if err := server.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown failed: %v\n", err)
		os.Exit(1)
	}
}
