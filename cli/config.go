package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/andrew-d/spacestatus"
)

const defaultHTTPAddr = "127.0.0.1:8039"

// Settings is the serve configuration. It is read from an optional YAML file
// (--config) and then overridden by any flags given on the command line.
type Settings struct {
	Server          string `yaml:"server"`
	ClientID        string `yaml:"client_id"`
	Template        string `yaml:"template"`
	Out             string `yaml:"out"`
	OpenImage       string `yaml:"open_image"`
	ClosedImage     string `yaml:"closed_image"`
	SymlinkLocation string `yaml:"symlink_location"`
	HTTP            string `yaml:"http"`
	StateDB         string `yaml:"state_db"`

	Topics struct {
		Door       string `yaml:"door"`
		Lever      string `yaml:"lever"`
		JSON       string `yaml:"json"`
		IsOpen     string `yaml:"is_open"`
		LastChange string `yaml:"last_change"`
	} `yaml:"topics"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func defaultSettings() Settings {
	var s Settings
	s.Server = spacestatus.DefaultBroker
	s.Template = spacestatus.DefaultTemplatePath
	s.Out = spacestatus.DefaultOutPath
	s.OpenImage = spacestatus.DefaultOpenImage
	s.ClosedImage = spacestatus.DefaultClosedImage
	s.SymlinkLocation = spacestatus.DefaultSymlinkPath
	s.HTTP = defaultHTTPAddr
	s.Topics.Door = spacestatus.DefaultDoorTopic
	s.Topics.Lever = spacestatus.DefaultLeverTopic
	s.Topics.JSON = spacestatus.DefaultJSONTopic
	s.Topics.IsOpen = spacestatus.DefaultIsOpenTopic
	s.Topics.LastChange = spacestatus.DefaultLastChangeTopic
	s.Log.Level = "info"
	s.Log.Format = "text"
	return s
}

type settingField struct {
	flag  string
	usage string
	ptr   func(*Settings) *string
}

var settingFields = []settingField{
	{"server", "address of the MQTT server", func(s *Settings) *string { return &s.Server }},
	{"client-id", "MQTT client ID (default spacestatus-<hostname>)", func(s *Settings) *string { return &s.ClientID }},
	{"template", "template of the JSON document", func(s *Settings) *string { return &s.Template }},
	{"out", "output file location", func(s *Settings) *string { return &s.Out }},
	{"open-image", "image for open state", func(s *Settings) *string { return &s.OpenImage }},
	{"closed-image", "image for closed state", func(s *Settings) *string { return &s.ClosedImage }},
	{"symlink-location", "location of the symlink to the state image", func(s *Settings) *string { return &s.SymlinkLocation }},
	{"http", `status API address ("" disables it)`, func(s *Settings) *string { return &s.HTTP }},
	{"state-db", "SQLite checkpoint path (empty disables it)", func(s *Settings) *string { return &s.StateDB }},
	{"door-topic", "door events topic", func(s *Settings) *string { return &s.Topics.Door }},
	{"lever-topic", "status lever topic", func(s *Settings) *string { return &s.Topics.Lever }},
	{"json-topic", "topic the document is published on", func(s *Settings) *string { return &s.Topics.JSON }},
	{"is-open-topic", "topic the open flag is published on", func(s *Settings) *string { return &s.Topics.IsOpen }},
	{"lastchange-topic", "topic the last change time is published on", func(s *Settings) *string { return &s.Topics.LastChange }},
	{"log-level", "log level (debug, info, warn, error)", func(s *Settings) *string { return &s.Log.Level }},
	{"log-format", "log format (text or json)", func(s *Settings) *string { return &s.Log.Format }},
}

// parseServe parses serve's command line into Settings.
func parseServe(args []string, stderr io.Writer) (Settings, error) {
	fromFlags := defaultSettings()
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	for _, f := range settingFields {
		p := f.ptr(&fromFlags)
		fs.StringVar(p, f.flag, *p, f.usage)
	}
	configPath := fs.String("config", "", "YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return Settings{}, err
	}
	if fs.NArg() > 0 {
		return Settings{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	s := defaultSettings()
	if *configPath != "" {
		if err := s.loadFile(*configPath); err != nil {
			return Settings{}, err
		}
	}
	for _, f := range settingFields {
		if fs.Changed(f.flag) {
			*f.ptr(&s) = *f.ptr(&fromFlags)
		}
	}
	return s, nil
}

// loadFile merges the YAML file at path into s. Unknown keys are errors.
func (s *Settings) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	return nil
}

// AppConfig converts s into a [spacestatus.Config].
func (s Settings) AppConfig(logger *slog.Logger) spacestatus.Config {
	return spacestatus.Config{
		Broker:          s.Server,
		ClientID:        s.ClientID,
		TemplatePath:    s.Template,
		OutPath:         s.Out,
		OpenImage:       s.OpenImage,
		ClosedImage:     s.ClosedImage,
		SymlinkPath:     s.SymlinkLocation,
		DoorTopic:       s.Topics.Door,
		LeverTopic:      s.Topics.Lever,
		JSONTopic:       s.Topics.JSON,
		IsOpenTopic:     s.Topics.IsOpen,
		LastChangeTopic: s.Topics.LastChange,
		HTTPAddr:        s.HTTP,
		StateDB:         s.StateDB,
		Logger:          logger,
	}
}

// newLogger builds the process logger from the log settings.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
