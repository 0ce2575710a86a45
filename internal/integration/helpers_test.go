package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sharing/internal/app"
	"sharing/internal/config"
	"sharing/internal/share"
	"sharing/internal/storeclient"
	"sharing/pkg/types"
)

const tokenSecret = "integration-secret"

var scope = types.ClassroomScope{
	Domain:     "https://learn.concord.org/",
	ClassHash:  "class-hash",
	OfferingID: "101",
	PluginID:   "7",
}

var roster = types.UserMap{
	"s1": "Ann A.",
	"s2": "Bob B.",
	"s3": "Cy C.",
}

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Store.Backend = backend
	cfg.Store.Path = filepath.Join(t.TempDir(), "sharestore.db")
	cfg.Auth.TokenSecret = tokenSecret
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) *app.Application {
	t.Helper()
	application, err := app.NewApplication(cfg)
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() { stopApp(t, application) })
	return application
}

func stopApp(t *testing.T, application *app.Application) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, application.Stop(ctx))
}

func wsURL(application *app.Application) string {
	return "ws://" + application.Addr() + "/ws"
}

// student opens an engine for userID over a fresh websocket client
func student(t *testing.T, application *app.Application, userID string) *share.Engine {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := storeclient.Dial(ctx, wsURL(application), storeclient.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	token, err := application.Authenticator().IssueToken(userID, nil, time.Hour)
	require.NoError(t, err)

	engine := share.NewEngine(client)
	t.Cleanup(engine.Close)
	require.NoError(t, engine.Init(ctx, types.AuthenticatedParams{
		CredentialToken: token,
		Scope:           scope,
		CurrentUserID:   userID,
		UserMap:         roster,
		InteractiveName: "Sea Level Model",
	}))
	return engine
}

// eventually waits until cond holds for the engine's latest state
func eventually(t *testing.T, e *share.Engine, cond func(*types.ClassShareState) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(e.State()) }, 3*time.Second, 10*time.Millisecond, msg)
}

// newApp starts an application the caller stops itself
func newApp(cfg *config.Config) (*app.Application, error) {
	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, err
	}
	return application, application.Start(context.Background())
}
