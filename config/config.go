// Package config decodes YAML task descriptions into initializer trees.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/xaionaro-go/avcompose"
	"github.com/xaionaro-go/avcompose/types"
	"gopkg.in/yaml.v3"
)

// Task is a single composition: the stage to build and where its output goes.
type Task struct {
	// Output is the path of the file the root stage is drained into;
	// "-" or empty means stdout.
	Output   string `yaml:"output,omitempty"`
	Pipeline Stage  `yaml:"pipeline"`
}

// Stage describes an initializer. A stage without a kind and with a file
// is raw container bytes.
type Stage struct {
	Kind          types.Kind                `yaml:"kind,omitempty"`
	OwnershipMode types.OwnershipMode       `yaml:"ownership_mode,omitempty"`
	Format        string                    `yaml:"format,omitempty"`
	Video         *types.VideoEncoderConfig `yaml:"video,omitempty"`
	Audio         *types.AudioEncoderConfig `yaml:"audio,omitempty"`
	OutputNative  bool                      `yaml:"output_native,omitempty"`
	Input         *Stage                    `yaml:"input,omitempty"`
	File          string                    `yaml:"file,omitempty"`
}

// Opener opens the file of a raw stage.
type Opener func(path string) (io.Reader, error)

// OpenFile is the Opener reading from the local filesystem.
func OpenFile(path string) (io.Reader, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

// Parse decodes a task; unknown fields are rejected.
func Parse(r io.Reader) (*Task, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var task Task
	if err := dec.Decode(&task); err != nil {
		return nil, fmt.Errorf("unable to decode the task: %w", err)
	}
	if err := task.Pipeline.validate(); err != nil {
		return nil, err
	}
	return &task, nil
}

// ParseFile is Parse over the content of the file at path.
func ParseFile(path string) (*Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

func (s *Stage) validate() error {
	for cur := s; cur != nil; cur = cur.Input {
		switch {
		case cur.Kind == types.KindUndefined:
			if cur.File == "" {
				return ErrNoInput{}
			}
			if cur.Input != nil {
				return ErrAmbiguousInput{Kind: cur.Kind}
			}
		case cur.Kind.IsUserStream():
			return ErrUserStream{Kind: cur.Kind}
		case !cur.Kind.IsKnown():
			return types.ErrUnrecognizedInitializer{Kind: cur.Kind}
		case cur.File != "" && cur.Input != nil:
			return ErrAmbiguousInput{Kind: cur.Kind}
		}
	}
	return nil
}

// Initializer converts the top stage into the initializer to build; it
// must have a kind.
func (s *Stage) Initializer(open Opener) (*avcompose.Initializer, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.Kind == types.KindUndefined {
		return nil, types.ErrUnrecognizedInitializer{}
	}
	in, err := s.input(open)
	if err != nil {
		return nil, err
	}
	return in.(*avcompose.Initializer), nil
}

func (s *Stage) input(open Opener) (avcompose.Input, error) {
	if s.Kind == types.KindUndefined {
		return s.raw(open)
	}

	init := &avcompose.Initializer{
		Kind:          s.Kind,
		OwnershipMode: s.OwnershipMode,
		Format:        s.Format,
		VideoConfig:   s.Video,
		AudioConfig:   s.Audio,
		OutputNative:  s.OutputNative,
	}
	switch {
	case s.Input != nil:
		in, err := s.Input.input(open)
		if err != nil {
			return nil, err
		}
		init.Input = in
	case s.File != "":
		in, err := s.raw(open)
		if err != nil {
			return nil, err
		}
		init.Input = in
	}
	return init, nil
}

func (s *Stage) raw(open Opener) (avcompose.Input, error) {
	r, err := open(s.File)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", s.File, err)
	}
	return avcompose.Raw{Reader: r}, nil
}
