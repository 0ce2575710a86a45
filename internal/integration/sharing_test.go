package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharing/internal/api"
	"sharing/internal/config"
	"sharing/internal/share"
	"sharing/internal/storeclient"
	"sharing/pkg/types"
)

func TestSharing_ShareIsSeenByClassmates(t *testing.T) {
	application := startApp(t, testConfig(t, config.BackendMemory))
	ann := student(t, application, "s1")
	bob := student(t, application, "s2")
	ctx := context.Background()

	require.NoError(t, ann.Share(ctx, "https://models.example.com/run/1"))

	eventually(t, bob, func(s *types.ClassShareState) bool {
		v, ok := s.Student("s1")
		return ok && v.IframeURL != nil && *v.IframeURL == "https://models.example.com/run/1"
	}, "bob sees ann's shared work")
	assert.False(t, bob.State().CurrentUserIsShared)

	eventually(t, ann, func(s *types.ClassShareState) bool { return s.CurrentUserIsShared }, "ann sees herself shared")

	require.NoError(t, ann.Unshare(ctx))
	eventually(t, bob, func(s *types.ClassShareState) bool {
		v, ok := s.Student("s1")
		return ok && v.IframeURL == nil
	}, "unsharing reaches bob")
}

func TestSharing_CommentsAndReadMarkers(t *testing.T) {
	application := startApp(t, testConfig(t, config.BackendMemory))
	ann := student(t, application, "s1")
	bob := student(t, application, "s2")
	ctx := context.Background()

	require.NoError(t, bob.Share(ctx, "https://models.example.com/run/2"))
	require.NoError(t, ann.PostComment(ctx, "s2", "Nice graph"))
	require.NoError(t, ann.PostComment(ctx, "s2", "What about 2050?"))

	eventually(t, bob, func(s *types.ClassShareState) bool { return s.UnreadCount("s1") == 2 }, "bob has two unread comments")
	me := bob.State().CurrentUser()
	require.NotNil(t, me)
	require.Len(t, me.CommentsReceived, 2)
	assert.Equal(t, "s1", me.CommentsReceived[0].Sender)

	require.NoError(t, bob.MarkCommentsRead(ctx, "s1"))
	eventually(t, bob, func(s *types.ClassShareState) bool { return s.UnreadCount("s1") == 0 }, "marking read clears the count")

	require.NoError(t, ann.DeleteComment(ctx, me.CommentsReceived[0]))
	eventually(t, bob, func(s *types.ClassShareState) bool {
		v := s.CurrentUser()
		return v != nil && len(v.CommentsReceived) == 1
	}, "deleted comment disappears for the recipient")
}

func TestSharing_ConcurrentCommentersKeepEveryComment(t *testing.T) {
	application := startApp(t, testConfig(t, config.BackendSQLite))
	engines := []*share.Engine{
		student(t, application, "s1"),
		student(t, application, "s2"),
		student(t, application, "s3"),
	}
	ctx := context.Background()

	const perStudent = 3
	var wg sync.WaitGroup
	for _, e := range engines {
		wg.Add(1)
		go func(e *share.Engine) {
			defer wg.Done()
			for i := 0; i < perStudent; i++ {
				recipient := "s1"
				if e.CurrentUserID() == "s1" {
					recipient = "s2"
				}
				assert.NoError(t, e.PostComment(ctx, recipient, "comment"))
			}
		}(e)
	}
	wg.Wait()

	eventually(t, engines[0], func(s *types.ClassShareState) bool {
		v := s.CurrentUser()
		return v != nil && len(v.CommentsReceived) == 2*perStudent
	}, "s1 receives every comment from s2 and s3")
}

func TestSharing_DocumentsSurviveRestart(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)

	first, err := newApp(cfg)
	require.NoError(t, err)
	ann := student(t, first, "s1")
	require.NoError(t, ann.Share(context.Background(), "https://models.example.com/run/9"))
	ann.Close()
	stopApp(t, first)

	second := startApp(t, cfg)
	bob := student(t, second, "s2")
	v, ok := bob.State().Student("s1")
	require.True(t, ok)
	require.NotNil(t, v.IframeURL)
	assert.Equal(t, "https://models.example.com/run/9", *v.IframeURL)
}

func TestSharing_ServerShutdownMovesEngineToError(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	application, err := newApp(cfg)
	require.NoError(t, err)
	ann := student(t, application, "s1")

	stopApp(t, application)

	require.Eventually(t, func() bool { return ann.Status() == share.StatusError }, 3*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, ann.Err(), share.ErrRemoteSubscription)
	assert.NotNil(t, ann.State(), "the last good state is kept")
}

func TestSharing_InvalidTokenIsRejected(t *testing.T) {
	application := startApp(t, testConfig(t, config.BackendMemory))
	ctx := context.Background()

	client, err := storeclient.Dial(ctx, wsURL(application), storeclient.Options{})
	require.NoError(t, err)
	defer client.Close()

	engine := share.NewEngine(client)
	defer engine.Close()
	err = engine.Init(ctx, types.AuthenticatedParams{
		CredentialToken: "forged.token.value",
		Scope:           scope,
		CurrentUserID:   "s1",
		UserMap:         roster,
	})
	assert.ErrorIs(t, err, share.ErrAuthentication)
	assert.Equal(t, share.StatusError, engine.Status())
}

func TestSharing_DemoOverTheWire(t *testing.T) {
	application := startApp(t, testConfig(t, config.BackendMemory))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := storeclient.Dial(ctx, wsURL(application), storeclient.Options{})
	require.NoError(t, err)
	defer client.Close()

	engine := share.NewEngine(client)
	defer engine.Close()
	require.NoError(t, engine.Init(ctx, types.DemoParams{}))

	state := engine.State()
	assert.Equal(t, types.SessionKindDemo, state.Type)
	assert.Equal(t, share.DemoInteractiveName, state.InteractiveName)
	assert.Equal(t, share.DemoCurrentUserName, engine.DisplayName(share.DemoCurrentUserID))
	assert.NotEmpty(t, state.Students)
	require.NotNil(t, state.CurrentUser())
	assert.Equal(t, 2, state.TotalUnread())
}

func TestSharing_DashboardReadsDocuments(t *testing.T) {
	application := startApp(t, testConfig(t, config.BackendMemory))
	ann := student(t, application, "s1")
	require.NoError(t, ann.Share(context.Background(), "https://models.example.com/run/3"))

	token, err := application.Authenticator().IssueToken("teacher", nil, time.Hour)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet,
		"http://"+application.Addr()+"/api/documents?collection="+scope.CollectionPath(), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var docs api.DocumentsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&docs))
	require.Len(t, docs.Documents, 1)
	assert.Equal(t, "s1", docs.Documents[0].ID)

	health, err := http.Get("http://" + application.Addr() + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
