package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"notes-server/collab"
	"notes-server/config"
	"notes-server/core"
	"notes-server/handlers/api/notes"
	"notes-server/handlers/api/rooms"
	"notes-server/handlers/websocket"
	"notes-server/stores"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const shutdownTimeout = 10 * time.Second

func setupRouter(cfg config.Config, noteStore core.NoteStore, live rooms.LiveRooms, roomRegistry core.RoomRegistry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsOptions := cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return cfg.AllowOrigin(origin)
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	r.Use(cors.Handler(corsOptions))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/notes", func(r chi.Router) {
			r.Post("/", notes.HandleCreate(noteStore))
			r.Get("/{id}", notes.HandleGet(noteStore))
			r.Put("/{id}", notes.HandleUpdate(noteStore))
		})
		r.Get("/rooms", rooms.HandleList(live, roomRegistry))
	})

	return r
}

func waitForShutdown(server *http.Server, ioo *socketio.Server, stopCoordinator context.CancelFunc, coordinatorDone <-chan struct{}, noteStore core.NoteStore) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	s := <-signalC
	logrus.WithField("signal", s.String()).Info("Shutting down")

	ioo.Close(nil)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
	}

	stopCoordinator()
	<-coordinatorDone

	if closer, ok := noteStore.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close note store")
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := flag.String("loglevel", cfg.LogLevel, "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", cfg.ListenAddr, "Set the server listen address")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	noteStore, err := stores.GetStore(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialise note store")
	}
	var roomRegistry core.RoomRegistry
	if registry, ok := noteStore.(core.RoomRegistry); ok {
		roomRegistry = registry
	}

	coordinator := collab.NewCoordinator(noteStore, collab.Options{
		StoreTimeout: cfg.StoreTimeout,
		Registry:     roomRegistry,
	})
	coordinatorDone := make(chan struct{})
	go func() {
		defer close(coordinatorDone)
		if err := coordinator.Run(ctx); err != nil {
			logrus.WithError(err).Error("Collaboration coordinator failed")
		}
	}()

	r := setupRouter(cfg, noteStore, coordinator, roomRegistry)
	ioo := websocket.SetupSocketIO(coordinator, collab.NewDecoder(cfg.MaxContentLength), cfg)
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	server := &http.Server{
		Addr:              *listenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.WithField("addr", *listenAddr).Info("starting server")
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(server, ioo, stop, coordinatorDone, noteStore)
}
