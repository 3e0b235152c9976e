package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/donmezahmet/ring-unlock/credstore"
	"github.com/donmezahmet/ring-unlock/internal/config"
	"github.com/donmezahmet/ring-unlock/ring"
	"github.com/donmezahmet/ring-unlock/server"
	"github.com/donmezahmet/ring-unlock/session"
	"github.com/donmezahmet/ring-unlock/unlock"
)

const tokenFileName = "ring_token.json"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	store, err := buildStore(c)
	if err != nil {
		return fmt.Errorf("buildStore: %w", err)
	}
	primeStore(store, c.GetTokenSeed())

	clientOpts := []ring.ClientOption{}
	if hardwareID := c.GetHardwareID(); hardwareID != "" {
		clientOpts = append(clientOpts, ring.WithHardwareID(hardwareID))
	}
	client := ring.NewClient(c.GetAuthBaseURL(), c.GetAPIBaseURL(), clientOpts...)

	manager, err := session.NewManager(store, client)
	if err != nil {
		return fmt.Errorf("session.NewManager: %w", err)
	}

	dispatcher, err := unlock.NewDispatcher(manager, client, c.GetIntercomName())
	if err != nil {
		return fmt.Errorf("unlock.NewDispatcher: %w", err)
	}

	srv, err := server.New(c, manager, dispatcher)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// buildStore picks Redis when configured, otherwise the token file in the
// data folder.
func buildStore(c config.Config) (credstore.Store, error) {
	if redisURL := c.GetRedisURL(); redisURL != "" {
		log.Info().Msg("using redis credential store")
		return credstore.NewRedisStore(redisURL)
	}
	path := filepath.Join(c.GetDataFolder(), tokenFileName)
	log.Info().Str("path", path).Msg("using file credential store")
	return credstore.NewFileStore(path)
}

// primeStore seeds an empty store from the environment, so hosts that lose
// their disk between restarts can carry the session in an env var. A stored
// session always wins over the seed.
func primeStore(store credstore.Store, seed string) {
	if seed == "" {
		return
	}
	existing, err := store.Load()
	if err != nil || existing != nil {
		return
	}
	sess, err := credstore.DecodeSeed(seed)
	if err != nil {
		log.Err(err).Msg("ignoring malformed session seed")
		return
	}
	if err := store.Save(sess); err != nil {
		log.Err(err).Msg("failed to prime store from seed")
		return
	}
	log.Info().Msg("credential store primed from environment seed")
}

func setupLogging(c config.Config) {
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
