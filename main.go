package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/CodedInternet/gosbrick/comms"
	"github.com/CodedInternet/gosbrick/onboard"
	"github.com/CodedInternet/gosbrick/onboard/hardware"
	"github.com/asdine/storm/v3"
	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/sirupsen/logrus"
)

type EnvConfig struct {
	JWT_ISSUER         string        `env:"JWT_ISSUER" envDefault:"DEV"`
	JWT_SECRET         string        `env:"JWT_SECRET" envDefault:"xWumOlRfhu+LBi2F2e1yF4FiaopQ5mr8klL4fpILnlI="`
	DEBUG              bool          `env:"DEBUG" envDefault:"false"`
	SRCDIR             string        `env:"SRCDIR" envDefault:"."`
	SBRICK_CONFIG      string        `env:"SBRICK_CONFIG" envDefault:"sbrick.yaml"`
	DB_PATH            string        `env:"DB_PATH" envDefault:"./tmp/dev.db"`
	MQTT_BROKER        string        `env:"MQTT_BROKER"`
	TELEMETRY_INTERVAL time.Duration `env:"TELEMETRY_INTERVAL" envDefault:"30s"`
	HTMLDIR            string        `env:"HTMLDIR" envDefault:"./frontend/dist/"`
	DB                 *storm.DB
	Device             onboard.SBrick
	Conductor          *comms.Conductor
	Simulated          bool
}

var (
	ENV *EnvConfig
)

func init() {
	ENV = new(EnvConfig)
	if err := env.Parse(ENV); err != nil {
		panic(err)
	}

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if ENV.DEBUG {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func main() {
	simulated := flag.Bool("sim", false, "Run against a simulated SBrick")
	port := flag.String("port", "0.0.0.0:80", "Specify the ip:port to listen on")
	interactive := flag.Bool("shell", true, "Start the development shell on stdin")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	db, err := openDb(ENV.DB_PATH)
	if err != nil {
		logrus.WithError(err).Fatal("unable to open database")
	}
	ENV.DB = db
	defer ENV.DB.Close()

	filename := ENV.SBRICK_CONFIG
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(ENV.SRCDIR, filename)
	}
	config, err := onboard.LoadConfig(filename)
	if err != nil {
		logrus.WithError(err).Fatal("unable to load sbrick config")
	}

	//---
	// Connect the device
	//---
	var device *onboard.BLESBrick
	ENV.Simulated = *simulated
	if ENV.Simulated {
		logrus.Info("creating simulator")
		device, err = onboard.NewSBrick(onboard.NewSimulatedTransport(config.Handles), config)
	} else {
		logrus.WithField("address", config.Address).Info("connecting to sbrick")
		device, err = onboard.Connect(ctx, config)
	}
	if err != nil {
		logrus.WithError(err).Fatal("unable to initialize sbrick")
	}
	defer device.Close()
	ENV.Device = device

	ENV.Conductor = &comms.Conductor{Device: device}
	if twilio, err := comms.NewTwilioClient(); err == nil {
		if ENV.Conductor.ICEServers, err = twilio.IceServers(); err != nil {
			logrus.WithError(err).Warn("unable to fetch twilio ice servers, using public STUN")
		}
	}
	defer ENV.Conductor.Close()

	device.OnRunExit(recordRuns(ENV.DB, config.Name))
	device.OnRunExit(func(result hardware.RunResult) {
		ENV.Conductor.UpdateClients(false)
	})

	if ENV.MQTT_BROKER != "" {
		publisher, err := comms.NewPublisher(ENV.MQTT_BROKER, config.Name)
		if err != nil {
			logrus.WithError(err).Fatal("unable to connect to MQTT broker")
		}
		device.OnRunExit(publisher.PublishRun)
		go publisher.PollTelemetry(ctx, device, ENV.TELEMETRY_INTERVAL)
	}

	go func() {
		ticker := time.NewTicker(ENV.TELEMETRY_INTERVAL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ENV.Conductor.UpdateClients(true)
			}
		}
	}()

	if *interactive {
		go newShell(device, ENV.DB).Start()
	}

	server := &http.Server{Addr: *port, Handler: routes()}
	go func() {
		<-ctx.Done()
		shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		server.Shutdown(shutdown)
	}()

	logrus.WithField("port", *port).Info("listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.WithError(err).Error("server failed")
	}
}

func routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	r.Route("/api", apiRoutes)

	r.Route("/ws", func(r chi.Router) {
		if !ENV.DEBUG {
			r.Use(ValidateJWT)
		} else {
			logrus.Warn("running in debug mode, websocket authentication disabled")
		}

		r.Get("/drive", DriveSocketHandler)
		r.Get("/signal", WebRTCSignalHandler)
	})

	FileServer(r, "/", http.Dir(ENV.HTMLDIR))
	return r
}

func openDb(dbFile string) (db *storm.DB, err error) {
	dir := filepath.Dir(dbFile)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return
	}

	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	// call inits for each type
	for _, t := range []interface{}{&Operator{}, &RunRecord{}} {
		if err := db.Init(t); err != nil {
			db.Close()
			return nil, err
		}
	}

	return
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := http.StripPrefix(path, http.FileServer(root))

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", 301).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	}))
}
