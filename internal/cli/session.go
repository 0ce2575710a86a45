package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"
	"gopkg.in/yaml.v3"

	"sharing/internal/auth"
	"sharing/internal/share"
	"sharing/internal/storeclient"
	"sharing/pkg/types"
)

var (
	ErrTokenRequired  = errors.New("--token is required")
	ErrUnknownStudent = errors.New("student is not on the roster")
)

// LoadClassFile reads a YAML class roster
func LoadClassFile(path string) (*auth.ClassInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class file %s: %w", path, err)
	}
	var class auth.ClassInfo
	if err := yaml.Unmarshal(data, &class); err != nil {
		return nil, fmt.Errorf("failed to parse class file %s: %w", path, err)
	}
	return &class, nil
}

// session is one connected engine plus the client it owns
type session struct {
	engine *share.Engine
	client *storeclient.Client
}

func (s *session) Close() {
	s.engine.Close()
	if err := s.client.Close(); err != nil {
		glog.V(1).Infof("[cli] closing store client: %v", err)
	}
}

// openSession dials the server and starts an authenticated session from the token
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	if opts.Token == "" {
		return nil, ErrTokenRequired
	}

	var class *auth.ClassInfo
	if opts.ClassFile != "" {
		var err error
		if class, err = LoadClassFile(opts.ClassFile); err != nil {
			return nil, err
		}
	}

	params, err := auth.ParamsFromToken(opts.Token, class, opts.PluginID, opts.InteractiveName)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	return dialAndInit(ctx, opts, params)
}

func dialAndInit(ctx context.Context, opts *RootOptions, params types.SessionParams) (*session, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := storeclient.Dial(ctx, opts.Server, storeclient.Options{})
	if err != nil {
		return nil, err
	}

	engine := share.NewEngine(client)
	if err := engine.Init(ctx, params); err != nil {
		engine.Close()
		_ = client.Close()
		return nil, err
	}
	return &session{engine: engine, client: client}, nil
}

// withSession runs fn against a live session and closes it afterwards
func withSession(ctx context.Context, opts *RootOptions, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	return fn(ctx, s)
}
