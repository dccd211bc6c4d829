package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/attendhq/go-session-coordinator/coordinator"
	"github.com/attendhq/go-session-coordinator/geomonitor"
	"github.com/attendhq/go-session-coordinator/internal/config"
	"github.com/attendhq/go-session-coordinator/livechannel"
	"github.com/attendhq/go-session-coordinator/livechannel/ssechannel"
	"github.com/attendhq/go-session-coordinator/profiles/httpstore"
	"github.com/attendhq/go-session-coordinator/provider"
	"github.com/attendhq/go-session-coordinator/provider/localidp"
	"github.com/attendhq/go-session-coordinator/provider/oidcprovider"
	"github.com/attendhq/go-session-coordinator/resolver"
	"github.com/attendhq/go-session-coordinator/subscriptions"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("sessiond failed")
	}
	log.Info().Msg("sessiond stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx := context.Background()

	idp, err := buildIdentityProvider(ctx, c)
	if err != nil {
		return err
	}

	store, err := httpstore.New(c.GetProfileAPIBaseURL(), c.GetProfileAPIKey(),
		httpstore.WithLogger(log.Logger),
		httpstore.WithTimeout(c.GetProfileAPITimeout()),
	)
	if err != nil {
		return err
	}

	res, err := resolver.New(idp, resolver.Stores{Primary: store, Secondary: store}, resolver.WithLogger(log.Logger))
	if err != nil {
		return err
	}

	channels, err := ssechannel.New(c.GetRealtimeBaseURL(), c.GetProfileAPIKey(),
		ssechannel.WithLogger(log.Logger),
		ssechannel.WithRetryInterval(c.GetRealtimeRetryInterval()),
	)
	if err != nil {
		return err
	}

	supervisor, err := subscriptions.New(channels, geomonitor.Noop{},
		func(e livechannel.Event) {
			log.Info().Str("topic", e.Topic).RawJSON("payload", e.Payload).Msg("live update")
		},
		func(err error) {
			log.Warn().Err(err).Msg("subscription error")
		},
		subscriptions.WithLogger(log.Logger),
	)
	if err != nil {
		return err
	}

	coord, err := coordinator.New(idp, res, supervisor, coordinator.WithLogger(log.Logger))
	if err != nil {
		return err
	}

	coord.Start(ctx)
	defer coord.Stop()

	waitForStopSignal()

	signOutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := coord.SignOut(signOutCtx); err != nil {
		log.Warn().Err(err).Msg("sign-out on shutdown failed")
	}
	return nil
}

// buildIdentityProvider selects the identity backend from IDP_MODE. The
// default local mode runs self-contained with a seeded demo account; oidc
// mode discovers the configured issuer and expects tokens to arrive through
// SignInWithToken.
func buildIdentityProvider(ctx context.Context, c config.Config) (provider.IdentityProvider, error) {
	switch mode := c.GetIdentityProviderMode(); mode {
	case "oidc":
		return oidcprovider.New(ctx, oidcprovider.Config{
			IssuerURL:     c.GetIssuerURL(),
			ClientID:      c.GetClientID(),
			ClientSecret:  c.GetClientSecret(),
			Scopes:        c.GetScopes(),
			RefreshLeeway: c.GetRefreshLeeway(),
		}, oidcprovider.WithLogger(log.Logger))
	case "local":
		idp := localidp.New(localidp.WithLogger(log.Logger))
		if err := seedDemoAccount(ctx, idp); err != nil {
			return nil, err
		}
		return idp, nil
	default:
		return nil, fmt.Errorf("unknown identity provider mode %q", mode)
	}
}

// seedDemoAccount registers and signs in the demo user so the coordinator
// has a session to resolve.
func seedDemoAccount(ctx context.Context, idp *localidp.Provider) error {
	email := config.GetEnv("DEMO_EMAIL", "demo@example.com")
	password := config.GetEnv("DEMO_PASSWORD", "demo-password")

	if _, err := idp.Register("", email, password); err != nil {
		return err
	}
	return idp.SignIn(ctx, email, password)
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
