package websocket_interface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	appconfig "github.com/vulpemventures/hwsign/internal/app-config"
)

const shutdownTimeout = 10 * time.Second

type service struct {
	config    ServiceConfig
	appConfig *appconfig.AppConfig
	server    *http.Server
	chClose   chan struct{}
	closeOnce *sync.Once

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewService(
	config ServiceConfig, appConfig *appconfig.AppConfig,
) (*service, error) {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("service: %s", format)
		log.Infof(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}

	return &service{
		config:    config,
		appConfig: appConfig,
		chClose:   make(chan struct{}),
		closeOnce: &sync.Once{},
		log:       logFn,
		warn:      warnFn,
	}, nil
}

func (s *service) Start() error {
	lis, err := net.Listen("tcp", s.config.address())
	if err != nil {
		return err
	}

	h := newHandler(s.appConfig.SigningService(), s.chClose)
	rps, burst := s.config.rateLimit()
	limiter := newRateLimiter(rps, burst, defaultIdleTTL)

	s.server = &http.Server{
		Handler:           limiter.middleware(h.router()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log("registered sign, flow and history handlers on public interface")

	go func() {
		if err := s.server.Serve(lis); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.warn(err, "server stopped unexpectedly")
		}
	}()

	s.log("start listening on %s", s.config.address())
	return nil
}

func (s *service) Stop() {
	s.closeOnce.Do(func() { close(s.chClose) })
	s.log("closed stream connections")

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.warn(err, "failed to gracefully stop http server")
		}
		s.log("stopped http server")
	}

	s.appConfig.Close()
	s.log("shutdown")
}
