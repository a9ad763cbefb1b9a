// Package spacestatus maintains a hackspace's SpaceAPI status document from
// door and lever events received over MQTT.
package spacestatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andrew-d/spacestatus/internal/bus"
	"github.com/andrew-d/spacestatus/internal/checkpoint"
	"github.com/andrew-d/spacestatus/internal/mqttslog"
)

// Defaults used by [New] for unset [Config] fields.
const (
	DefaultBroker       = "mqtt.n39.eu"
	DefaultTemplatePath = "template.json"
	DefaultOutPath      = "www/spaceapi.json"
	DefaultOpenImage    = "www/open.png"
	DefaultClosedImage  = "www/closed.png"
	DefaultSymlinkPath  = "www/state.png"

	defaultPublishTimeout = 30 * time.Second
)

// Config holds the configuration for an [App].
type Config struct {
	// Broker is the MQTT broker address (default "mqtt.n39.eu"). Ignored
	// when Bus is set.
	Broker string

	// ClientID is the MQTT client identifier (default "spacestatus-" plus
	// the hostname).
	ClientID string

	// TemplatePath is the SpaceAPI template the document is seeded from.
	TemplatePath string

	// OutPath is where the document file is written.
	OutPath string

	// OpenImage and ClosedImage are the state images; SymlinkPath is
	// repointed at one of them after every persisted change.
	OpenImage   string
	ClosedImage string
	SymlinkPath string

	// Input and output topics. Empty fields use the package defaults.
	DoorTopic       string
	LeverTopic      string
	JSONTopic       string
	IsOpenTopic     string
	LastChangeTopic string

	// HTTPAddr is the address of the status API. Empty disables it.
	HTTPAddr string

	// StateDB is the path of the SQLite checkpoint. Empty disables it.
	StateDB string

	// PublishTimeout bounds the checkpoint and publish steps of one message
	// (default 30s).
	PublishTimeout time.Duration

	// Bus, if set, is used instead of dialing Broker. The App does not close
	// it.
	Bus Bus

	// Now returns the current time. Defaults to [time.Now].
	Now func() time.Time

	// Logger is the structured logger for the App. If nil, [slog.Default] is
	// used.
	Logger *slog.Logger
}

// App wires the bus, the state store, the persister, the publisher and the
// optional checkpoint and HTTP API together.
type App struct {
	config Config
	logger *slog.Logger

	decoder    Decoder
	store      *Store
	persister  *Persister
	publisher  *Publisher
	checkpoint *checkpoint.Store
	bus        Bus
	client     *bus.Client // non-nil when the App dialed the broker itself

	health  *health
	metrics *metrics
	watches *watchHub

	httpServer *http.Server
	httpAddr   string // actual bound address from listener

	// handled counts bus messages the consumer has finished with.
	handled atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new App with the given configuration.
func New(config Config) *App {
	if config.Broker == "" {
		config.Broker = DefaultBroker
	}
	if config.ClientID == "" {
		config.ClientID = defaultClientID()
	}
	if config.TemplatePath == "" {
		config.TemplatePath = DefaultTemplatePath
	}
	if config.OutPath == "" {
		config.OutPath = DefaultOutPath
	}
	if config.OpenImage == "" {
		config.OpenImage = DefaultOpenImage
	}
	if config.ClosedImage == "" {
		config.ClosedImage = DefaultClosedImage
	}
	if config.SymlinkPath == "" {
		config.SymlinkPath = DefaultSymlinkPath
	}
	if config.DoorTopic == "" {
		config.DoorTopic = DefaultDoorTopic
	}
	if config.LeverTopic == "" {
		config.LeverTopic = DefaultLeverTopic
	}
	if config.JSONTopic == "" {
		config.JSONTopic = DefaultJSONTopic
	}
	if config.IsOpenTopic == "" {
		config.IsOpenTopic = DefaultIsOpenTopic
	}
	if config.LastChangeTopic == "" {
		config.LastChangeTopic = DefaultLastChangeTopic
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaultPublishTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &App{
		config:  config,
		logger:  logger,
		decoder: Decoder{DoorTopic: config.DoorTopic, LeverTopic: config.LeverTopic},
		health:  newHealth(config.Now),
		metrics: newMetrics(),
		watches: newWatchHub(),
		persister: &Persister{
			OutPath:     config.OutPath,
			OpenImage:   config.OpenImage,
			ClosedImage: config.ClosedImage,
			SymlinkPath: config.SymlinkPath,
		},
	}
}

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "spacestatus"
	}
	return "spacestatus-" + host
}

// Start loads the template, restores the checkpoint, connects to the bus,
// starts the HTTP API and then the consumer. It returns once the consumer is
// running; call [App.Shutdown] to stop it. If Start fails, everything it
// opened is closed again.
func (a *App) Start(ctx context.Context) (err error) {
	a.ctx, a.cancel = context.WithCancel(ctx)
	defer func() {
		if err != nil {
			a.cancel()
			a.closeResources(context.Background())
		}
	}()

	seed, err := LoadTemplate(a.config.TemplatePath)
	if err != nil {
		return err
	}
	a.store = NewStore(seed)
	a.metrics.observe(seed)

	if a.config.StateDB != "" {
		cp, err := checkpoint.Open(a.ctx, a.config.StateDB)
		if err != nil {
			return fmt.Errorf("open checkpoint: %w", err)
		}
		a.checkpoint = cp
		if err := a.restoreCheckpoint(a.ctx); err != nil {
			return fmt.Errorf("restore checkpoint: %w", err)
		}
	}

	a.bus = a.config.Bus
	if a.bus == nil {
		mqttLogger := a.logger.With("component", "mqtt")
		mqttslog.Install(mqttLogger)
		client, err := bus.Dial(a.ctx, bus.Options{
			Broker:       a.config.Broker,
			ClientID:     a.config.ClientID,
			Topics:       a.decoder.Topics(),
			SubscribeQoS: bus.AtLeastOnce,
			Logger:       mqttLogger,
		})
		if err != nil {
			return fmt.Errorf("connect to broker: %w", err)
		}
		a.client = client
		a.bus = client
	}
	if b, ok := a.bus.(backlogger); ok {
		a.metrics.watchBacklog(b)
	}
	a.publisher = &Publisher{
		Bus:             a.bus,
		JSONTopic:       a.config.JSONTopic,
		IsOpenTopic:     a.config.IsOpenTopic,
		LastChangeTopic: a.config.LastChangeTopic,
	}

	if a.config.HTTPAddr != "" {
		if err := a.startHTTP(); err != nil {
			return fmt.Errorf("start HTTP: %w", err)
		}
	}

	a.wg.Go(func() { a.consume(a.ctx) })

	a.logger.Info("started",
		"broker", a.config.Broker,
		"door_topic", a.config.DoorTopic,
		"lever_topic", a.config.LeverTopic,
		"out", a.config.OutPath,
		"http_addr", a.httpAddr,
	)
	return nil
}

// Shutdown stops the consumer after the message in flight, then closes the
// HTTP API, the broker connection and the checkpoint.
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	return a.closeResources(ctx)
}

func (a *App) closeResources(ctx context.Context) error {
	var errs []error
	if a.httpServer != nil {
		errs = append(errs, a.httpServer.Shutdown(ctx))
		a.httpServer = nil
	}
	if a.client != nil {
		errs = append(errs, a.client.Close())
		a.client = nil
	}
	if a.checkpoint != nil {
		errs = append(errs, a.checkpoint.Close())
		a.checkpoint = nil
	}
	return errors.Join(errs...)
}

// Document returns a copy of the current document. Before a successful
// [App.Start] it returns the zero Document.
func (a *App) Document() Document {
	if a.store == nil {
		return Document{}
	}
	return a.store.Document()
}

// Problems returns the stages that failed on the latest event.
func (a *App) Problems() []Problem {
	return a.health.problems()
}

// HandledForTest returns how many bus messages the consumer has finished
// handling, including ignored ones.
//
// This should only be used in tests.
func (a *App) HandledForTest() uint64 {
	return a.handled.Load()
}

// HTTPAddrForTest returns the actual bound HTTP address. This may differ
// from Config.HTTPAddr when using port 0.
//
// This should only be used in tests.
func (a *App) HTTPAddrForTest() string {
	return a.httpAddr
}
