package cmd

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	coreconfig "github.com/m3rciful/quizbot/core/config"
)

type testCarrier struct{ cfg *coreconfig.Config }

func (c testCarrier) CoreConfig() *coreconfig.Config { return c.cfg }

type testApp struct {
	runErr   error
	closeErr error
	closed   bool
}

func (a *testApp) Run(context.Context) error { return a.runErr }

func (a *testApp) Close(context.Context) error {
	a.closed = true
	return a.closeErr
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("QUIZ_CONFIG", "/etc/env.yaml")
	cases := []struct {
		opts Options
		want string
	}{
		{Options{ConfigPath: "/flag.yaml", ConfigEnvVar: "QUIZ_CONFIG"}, "/flag.yaml"},
		{Options{ConfigEnvVar: "QUIZ_CONFIG", DefaultConfigPath: "config.yaml"}, "/etc/env.yaml"},
		{Options{ConfigEnvVar: "QUIZ_UNSET", DefaultConfigPath: "config.yaml"}, "config.yaml"},
	}
	for _, c := range cases {
		got, err := ResolveConfigPath(c.opts)
		if err != nil || got != c.want {
			t.Fatalf("ResolveConfigPath(%+v) = %q, %v; want %q", c.opts, got, err, c.want)
		}
	}
	if _, err := ResolveConfigPath(Options{ConfigEnvVar: "QUIZ_UNSET"}); err == nil {
		t.Fatal("expected error without any path")
	}
}

func TestRunClosesAppAndReturnsRunError(t *testing.T) {
	app := &testApp{runErr: errors.New("listen tcp: address in use")}
	err := Run(Options{
		ConfigPath:     "config.yaml",
		LoadConfig:     func(string) (ConfigCarrier, error) { return testCarrier{cfg: &coreconfig.Config{}}, nil },
		Bootstrap:      func(ConfigCarrier) (App, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
		Signals:        []os.Signal{syscall.SIGUSR1},
	})
	if err == nil || !app.closed {
		t.Fatalf("Run = %v closed = %v", err, app.closed)
	}
}

func TestRunRejectsMissingCoreConfig(t *testing.T) {
	err := Run(Options{
		ConfigPath: "config.yaml",
		LoadConfig: func(string) (ConfigCarrier, error) { return testCarrier{}, nil },
		Bootstrap:  func(ConfigCarrier) (App, error) { t.Fatal("bootstrap must not run"); return nil, nil },
	})
	if err == nil {
		t.Fatal("expected error")
	}
}
