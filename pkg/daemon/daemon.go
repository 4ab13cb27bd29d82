package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smuseq/pkg/config"
	"github.com/charlie0129/smuseq/pkg/events"
	"github.com/charlie0129/smuseq/pkg/instrument"
	"github.com/charlie0129/smuseq/pkg/route"
	"github.com/charlie0129/smuseq/pkg/sequencer"
)

var (
	conf        config.Config
	inst        instrument.Instrument
	seq         *sequencer.Sequencer
	locks       = newChannelLocks()
	runRecorder = NewRunRecorder(maxRunRecords)
	hub         = events.NewEventHub()
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	// Programs are closed records: a misspelled field must not silently
	// fall back to its zero value.
	binding.EnableDecoderDisallowUnknownFields = true

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.GET("/channels", getChannels)
	router.POST("/monitor", postMonitor)
	router.POST("/pulse", postPulse)
	router.POST("/sweep", postSweep)
	router.POST("/run", postRun)
	router.GET("/runs", getRuns)
	router.GET("/runs/:id", getRun)
	router.GET("/schedules", getSchedules)
	router.POST("/schedules/:name/skip", postSkipSchedule)
	router.GET("/events", getEvents)
	router.GET("/version", getVersion)

	return router
}

// setupEngine binds the daemon to a fixture and its instrument.
func setupEngine(c config.Config, i instrument.Instrument) {
	conf = c
	inst = i
	seq = sequencer.New(route.NewController(i))
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	c, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(c.LogrusFields()).Infof("config loaded")

	setupEngine(c, config.NewSim(c))

	// Cancelled on shutdown so event streams and running programs end.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	if err := schedules.apply(baseCtx, c.Schedules()); err != nil {
		logrus.Fatalf("failed to set up schedules: %v", err)
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := c.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			// The instrument keeps the channels it was built with.
			logrus.WithFields(c.LogrusFields()).Infof("config reloaded, channel changes take effect after a restart")
			if err := schedules.apply(baseCtx, c.Schedules()); err != nil {
				logrus.Errorf("failed to apply schedules: %v", err)
			}
		}
	}()

	srv := &http.Server{
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	schedules.stop()

	if n := hub.Subscribers(); n > 0 {
		logrus.WithField("streams", n).Info("closing event streams")
	}
	hub.Close()

	logrus.Info("shutting down http server")
	cancelRequests()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	if busy := locks.list(); len(busy) > 0 {
		logrus.WithField("channels", busy).Warn("programs still running at shutdown")
	}

	logrus.Info("parking all channels at 0 V")
	seq.Park(inst.Channels()...)

	logrus.Info("exiting")
	return nil
}
