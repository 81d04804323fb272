package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"reflect"
)

// ConfigLoader is an abstraction for parsing a Config from a given
// io.Reader instance.
type ConfigLoader interface {
	// LoadConfig parses an instance of the Config type using a given
	// instance of io.Reader.
	LoadConfig(io.Reader, *Config) error
}

// ConfigWriter is an abstraction for storing a Config using a given
// instance of io.Writer.
type ConfigWriter interface {
	// StoreConfig outputs a representation of the Config using the
	// provided io.Writer.
	StoreConfig(io.Writer, *Config) error
}

type jsonConfigLoader struct{}

func (l jsonConfigLoader) LoadConfig(reader io.Reader, cfg *Config) error {
	if cfg == nil {
		return errors.New("config: target Config is nil")
	}

	var buffer bytes.Buffer
	decoder := json.NewDecoder(io.TeeReader(reader, &buffer))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return err
	}
	// check if the provided JSON representation has the same number of
	// fields as the Config type, catching a field left out of the JSON
	// (and so silently left at its zero value), which
	// DisallowUnknownFields does not report.
	var parsedJSON map[string]interface{}
	if err := json.NewDecoder(&buffer).Decode(&parsedJSON); err != nil {
		return err
	}
	if reflect.Indirect(reflect.ValueOf(cfg)).NumField() != len(parsedJSON) {
		return errors.New("config: provided configuration has incorrect number of fields")
	}
	return nil
}

func (l jsonConfigLoader) StoreConfig(writer io.Writer, cfg *Config) error {
	return json.NewEncoder(writer).Encode(*cfg)
}

// NewJSONConfigLoader returns a new instance of the ConfigLoader type that
// expects that the provided configuration is stored using the JSON format.
func NewJSONConfigLoader() ConfigLoader {
	return jsonConfigLoader{}
}

// NewJSONConfigWriter returns a new instance of the ConfigWriter type that
// stores the configuration using the JSON format.
func NewJSONConfigWriter() ConfigWriter {
	return jsonConfigLoader{}
}
