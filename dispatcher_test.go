package despacho_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/despacho"
	"github.com/prilive-com/despacho/internal/testutil"
	"github.com/prilive-com/despacho/sender"
	"github.com/prilive-com/despacho/tg"
)

// stubFetcher writes canned files into the store directory, or fails.
type stubFetcher struct {
	files []string
	err   error
	calls int
	dirs  []string
}

func (f *stubFetcher) Fetch(_ context.Context, _ string, dir string) ([]string, error) {
	f.calls++
	f.dirs = append(f.dirs, dir)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, 0, len(f.files))
	for _, name := range f.files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("fake video bytes"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func testSenderConfig(srv *testutil.MockAPIServer) sender.Config {
	cfg := sender.DefaultConfig()
	cfg.BaseURL = srv.BaseURL()
	cfg.GlobalRPS = 1000
	cfg.GlobalBurst = 100
	cfg.PerChatRPS = 1000
	cfg.PerChatBurst = 100
	return cfg
}

func newTestDispatcher(t *testing.T, srv *testutil.MockAPIServer, opts []despacho.DispatcherOption, tokens ...tg.SecretToken) *despacho.Dispatcher {
	t.Helper()

	pool, err := despacho.NewPool(tokens...)
	require.NoError(t, err)

	base := []despacho.DispatcherOption{
		despacho.WithSenderConfig(testSenderConfig(srv)),
		despacho.WithConnectDelay(0),
		despacho.WithSleeper(&testutil.FakeSleeper{}),
	}
	d, err := despacho.New(pool, testutil.TestChatID, append(base, opts...)...)
	require.NoError(t, err)
	return d
}

func TestNewPool_Empty(t *testing.T) {
	_, err := despacho.NewPool()
	assert.ErrorIs(t, err, despacho.ErrNoCredentials)
}

func TestNewPool_EmptyToken(t *testing.T) {
	_, err := despacho.NewPool(testutil.TestToken, "")
	assert.ErrorIs(t, err, tg.ErrInvalidToken)
}

func TestNew_InvalidDestination(t *testing.T) {
	pool, err := despacho.NewPool(testutil.TestToken)
	require.NoError(t, err)

	_, err = despacho.New(pool, 0)
	assert.ErrorIs(t, err, tg.ErrInvalidDestination)
}

func TestDispatch_TextOnly(t *testing.T) {
	srv := testutil.NewMockServer(t)
	fetcher := &stubFetcher{}
	d := newTestDispatcher(t, srv,
		[]despacho.DispatcherOption{despacho.WithFetcher(fetcher)},
		testutil.TestToken)

	err := d.Dispatch(context.Background(), despacho.Payload{
		Title: "*Breaking*",
		Body:  "A thing happened.",
		Link:  "https://example.com/post/1",
	})
	require.NoError(t, err)

	assert.Len(t, srv.CapturesOf("sendMessage"), 1)
	assert.Empty(t, srv.CapturesOf("sendPhoto"))
	assert.Empty(t, srv.CapturesOf("sendMediaGroup"))
	assert.Zero(t, fetcher.calls, "text payload must not touch the fetcher")

	body := string(srv.CapturesOf("sendMessage")[0].Body)
	assert.Contains(t, body, "*Breaking*")
	assert.Contains(t, body, "https://example.com/post/1")
	assert.Contains(t, body, "A thing happened.")
}

func TestDispatch_SingleImageNoAlbum(t *testing.T) {
	srv := testutil.NewMockServer(t)
	d := newTestDispatcher(t, srv, nil, testutil.TestToken)

	err := d.Dispatch(context.Background(), despacho.Payload{
		Title:  "post",
		Images: []string{"https://img.example.com/a.jpg"},
	})
	require.NoError(t, err)

	assert.Empty(t, srv.CapturesOf("sendMediaGroup"))
	require.Len(t, srv.CapturesOf("sendPhoto"), 1)
	assert.Contains(t, string(srv.CapturesOf("sendPhoto")[0].Body), "a.jpg")
}

func TestDispatch_AlbumThenAnchor(t *testing.T) {
	srv := testutil.NewMockServer(t)
	d := newTestDispatcher(t, srv, nil, testutil.TestToken)

	err := d.Dispatch(context.Background(), despacho.Payload{
		Title:  "post",
		Images: []string{"https://img/0.jpg", "https://img/1.jpg", "https://img/2.jpg"},
	})
	require.NoError(t, err)

	albums := srv.CapturesOf("sendMediaGroup")
	require.Len(t, albums, 1)
	album := string(albums[0].Body)
	assert.Contains(t, album, "1.jpg")
	assert.Contains(t, album, "2.jpg")
	assert.NotContains(t, album, "0.jpg", "anchor image must not appear in the album")

	anchors := srv.CapturesOf("sendPhoto")
	require.Len(t, anchors, 1, "anchor photo is sent exactly once")
	assert.Contains(t, string(anchors[0].Body), "0.jpg")
}

func TestDispatch_AlbumCappedAtTenImages(t *testing.T) {
	srv := testutil.NewMockServer(t)
	d := newTestDispatcher(t, srv, nil, testutil.TestToken)

	images := make([]string, 15)
	for i := range images {
		images[i] = "https://img/" + string(rune('a'+i)) + ".jpg"
	}
	err := d.Dispatch(context.Background(), despacho.Payload{Title: "post", Images: images})
	require.NoError(t, err)

	albums := srv.CapturesOf("sendMediaGroup")
	require.Len(t, albums, 1)
	album := string(albums[0].Body)
	assert.Equal(t, 9, strings.Count(album, ".jpg"), "album carries at most nine extras")
	assert.Len(t, srv.CapturesOf("sendPhoto"), 1)
}

func TestDispatch_AlbumRejectionKeepsAnchor(t *testing.T) {
	srv := testutil.NewMockServer(t)
	srv.OnBot(testutil.TestToken, "sendMediaGroup", func(w http.ResponseWriter, _ *http.Request) {
		testutil.ReplyBadRequest(w, "wrong type of the web page content")
	})
	d := newTestDispatcher(t, srv, nil, testutil.TestToken)

	err := d.Dispatch(context.Background(), despacho.Payload{
		Title:  "post",
		Images: []string{"https://img/0.jpg", "https://img/1.jpg", "https://img/2.jpg"},
	})
	require.NoError(t, err, "album rejection must not fail the attempt")

	assert.Len(t, srv.CapturesOf("sendMediaGroup"), 1)
	anchors := srv.CapturesOf("sendPhoto")
	require.Len(t, anchors, 1)
	assert.Contains(t, string(anchors[0].Body), "0.jpg")
}

func TestDispatch_SingleExtraRejectionKeepsAnchor(t *testing.T) {
	// Two images: the lone extra goes out as a plain photo, not an
	// album, and its rejection is swallowed just the same.
	var photoCalls atomic.Int32

	srv := testutil.NewMockServer(t)
	srv.OnBot(testutil.TestToken, "sendPhoto", func(w http.ResponseWriter, _ *http.Request) {
		if photoCalls.Add(1) == 1 {
			testutil.ReplyBadRequest(w, "wrong type of the web page content")
			return
		}
		testutil.ReplyMessage(w, 2)
	})
	d := newTestDispatcher(t, srv, nil, testutil.TestToken)

	err := d.Dispatch(context.Background(), despacho.Payload{
		Title:  "post",
		Images: []string{"https://img/0.jpg", "https://img/1.jpg"},
	})
	require.NoError(t, err)

	assert.Empty(t, srv.CapturesOf("sendMediaGroup"))
	photos := srv.CapturesOf("sendPhoto")
	require.Len(t, photos, 2)
	assert.Contains(t, string(photos[0].Body), "1.jpg", "extra image goes first")
	assert.Contains(t, string(photos[1].Body), "0.jpg", "anchor still sent after the rejected extra")
}

func TestDispatch_AnchorRejectionFailsAttempt(t *testing.T) {
	srv := testutil.NewMockServer(t)
	srv.OnBot(testutil.TestToken, "sendPhoto", func(w http.ResponseWriter, _ *http.Request) {
		testutil.ReplyBadRequest(w, "wrong file identifier")
	})
	d := newTestDispatcher(t, srv, nil, testutil.TestToken, testutil.TestToken2)

	err := d.Dispatch(context.Background(), despacho.Payload{
		Title:  "post",
		Images: []string{"https://img/0.jpg"},
	})

	var de *despacho.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, despacho.FailRejected, de.Kind)
	assert.Len(t, srv.CapturesOf("getMe"), 1, "rejection must not rotate credentials")
}

func TestDispatch_RateLimitRotatesWithoutWaiting(t *testing.T) {
	srv := testutil.NewMockServer(t)
	srv.OnBot(testutil.TestToken, "sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		testutil.ReplyRateLimit(w, 30)
	})
	srv.OnBot(testutil.TestToken2, "sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		testutil.ReplyRateLimit(w, 60)
	})

	sleeper := &testutil.FakeSleeper{}
	d := newTestDispatcher(t, srv,
		[]despacho.DispatcherOption{despacho.WithSleeper(sleeper)},
		testutil.TestToken, testutil.TestToken2, testutil.TestToken3)

	err := d.Dispatch(context.Background(), despacho.Payload{Title: "post"})
	require.NoError(t, err, "third credential should deliver")

	assert.Len(t, srv.CapturesOf("getMe"), 3, "all three credentials attempted")
	assert.Len(t, srv.CapturesOf("sendMessage"), 3)
	assert.Zero(t, sleeper.CallCount(), "rotation must not honor advised waits")
}

func TestDispatch_LastCredentialBlocksAdvisedWait(t *testing.T) {
	srv := testutil.NewMockServer(t)
	srv.OnBot(testutil.TestToken, "sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		testutil.ReplyRateLimit(w, 42)
	})

	sleeper := &testutil.FakeSleeper{}
	d := newTestDispatcher(t, srv,
		[]despacho.DispatcherOption{despacho.WithSleeper(sleeper)},
		testutil.TestToken)

	err := d.Dispatch(context.Background(), despacho.Payload{Title: "post"})

	var de *despacho.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, despacho.FailRateLimited, de.Kind)
	assert.Equal(t, 42*time.Second, de.Wait)
	assert.True(t, despacho.IsRateLimited(err))

	require.Equal(t, 1, sleeper.CallCount())
	assert.Equal(t, 42*time.Second, sleeper.LastCall(), "block exactly the advised interval")
}

func TestDispatch_AlbumRateLimitRotates(t *testing.T) {
	srv := testutil.NewMockServer(t)
	srv.OnBot(testutil.TestToken, "sendMediaGroup", func(w http.ResponseWriter, _ *http.Request) {
		testutil.ReplyRateLimit(w, 13)
	})

	sleeper := &testutil.FakeSleeper{}
	d := newTestDispatcher(t, srv,
		[]despacho.DispatcherOption{despacho.WithSleeper(sleeper)},
		testutil.TestToken, testutil.TestToken2)

	err := d.Dispatch(context.Background(), despacho.Payload{
		Title:  "post",
		Images: []string{"https://img/0.jpg", "https://img/1.jpg", "https://img/2.jpg"},
	})
	require.NoError(t, err)

	// First credential was rate limited on the album, so its anchor was
	// never attempted; the second credential sent album plus anchor.
	assert.Len(t, srv.CapturesOf("sendMediaGroup"), 2)
	assert.Len(t, srv.CapturesOf("sendPhoto"), 1)
	assert.Zero(t, sleeper.CallCount())
}

func TestDispatch_ProbeFailureAborts(t *testing.T) {
	srv := testutil.NewMockServer(t)
	srv.OnBot(testutil.TestToken, "getMe", func(w http.ResponseWriter, _ *http.Request) {
		testutil.ReplyError(w, http.StatusUnauthorized, "Unauthorized", nil)
	})
	d := newTestDispatcher(t, srv, nil, testutil.TestToken, testutil.TestToken2)

	err := d.Dispatch(context.Background(), despacho.Payload{Title: "post"})

	var de *despacho.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, despacho.FailConnectivity, de.Kind)
	assert.Empty(t, srv.CapturesOf("sendMessage"))
	assert.Len(t, srv.CapturesOf("getMe"), 1, "fatal outcomes must not rotate")
}

func TestDispatch_ConnectDelayBeforeFirstSend(t *testing.T) {
	srv := testutil.NewMockServer(t)
	sleeper := &testutil.FakeSleeper{}
	d := newTestDispatcher(t, srv,
		[]despacho.DispatcherOption{
			despacho.WithSleeper(sleeper),
			despacho.WithConnectDelay(5 * time.Second),
		},
		testutil.TestToken)

	err := d.Dispatch(context.Background(), despacho.Payload{Title: "post"})
	require.NoError(t, err)

	require.Equal(t, 1, sleeper.CallCount())
	assert.Equal(t, 5*time.Second, sleeper.LastCall())
}

func TestDispatch_VideoDelivered(t *testing.T) {
	srv := testutil.NewMockServer(t)
	fetcher := &stubFetcher{files: []string{"clip.mp4"}}
	d := newTestDispatcher(t, srv,
		[]despacho.DispatcherOption{despacho.WithFetcher(fetcher)},
		testutil.TestToken)

	err := d.Dispatch(context.Background(), despacho.Payload{
		Title: "post",
		Video: "https://example.com/watch?v=abc",
	})
	require.NoError(t, err)

	videos := srv.CapturesOf("sendVideo")
	require.Len(t, videos, 1)
	assert.Contains(t, videos[0].ContentType, "multipart/form-data")
	assert.Empty(t, srv.CapturesOf("sendMessage"))

	require.Len(t, fetcher.dirs, 1)
	_, statErr := os.Stat(fetcher.dirs[0])
	assert.True(t, os.IsNotExist(statErr), "media store must be removed after dispatch")
}

func TestDispatch_VideoRejectedFallsBackToText(t *testing.T) {
	srv := testutil.NewMockServer(t)
	srv.OnBot(testutil.TestToken, "sendVideo", func(w http.ResponseWriter, _ *http.Request) {
		testutil.ReplyBadRequest(w, "VIDEO_CONTENT_TYPE_INVALID")
	})
	fetcher := &stubFetcher{files: []string{"clip.mp4"}}
	d := newTestDispatcher(t, srv,
		[]despacho.DispatcherOption{despacho.WithFetcher(fetcher)},
		testutil.TestToken)

	payload := despacho.Payload{
		Title:    "*post*",
		Body:     "body text",
		Link:     "https://example.com/post/2",
		Video:    "https://example.com/watch?v=abc",
		Keyboard: tg.InlineKeyboard(tg.Row(tg.BtnURL("Open", "https://example.com/post/2"))),
	}
	err := d.Dispatch(context.Background(), payload)
	require.NoError(t, err, "rejection degrades to text, attempt still succeeds")

	msgs := srv.CapturesOf("sendMessage")
	require.Len(t, msgs, 1)
	body := string(msgs[0].Body)
	assert.Contains(t, body, "*post*")
	assert.Contains(t, body, "body text")
	assert.Contains(t, body, "https://example.com/post/2")
	assert.Contains(t, body, "reply_markup", "fallback text keeps the keyboard")

	require.Len(t, fetcher.dirs, 1)
	_, statErr := os.Stat(fetcher.dirs[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestDispatch_VideoRateLimitDoesNotDegrade(t *testing.T) {
	srv := testutil.NewMockServer(t)
	srv.OnBot(testutil.TestToken, "sendVideo", func(w http.ResponseWriter, _ *http.Request) {
		testutil.ReplyRateLimit(w, 9)
	})
	fetcher := &stubFetcher{files: []string{"clip.mp4"}}
	sleeper := &testutil.FakeSleeper{}
	d := newTestDispatcher(t, srv,
		[]despacho.DispatcherOption{
			despacho.WithFetcher(fetcher),
			despacho.WithSleeper(sleeper),
		},
		testutil.TestToken)

	err := d.Dispatch(context.Background(), despacho.Payload{
		Title: "post",
		Video: "https://example.com/watch?v=abc",
	})

	var de *despacho.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, despacho.FailRateLimited, de.Kind)
	assert.Empty(t, srv.CapturesOf("sendMessage"), "rate limit must never degrade to text")
	assert.Equal(t, 9*time.Second, sleeper.LastCall())

	require.Len(t, fetcher.dirs, 1)
	_, statErr := os.Stat(fetcher.dirs[0])
	assert.True(t, os.IsNotExist(statErr), "media store removed on the rate-limit path too")
}

func TestDispatch_VideoFetchFailureFallsBackToText(t *testing.T) {
	srv := testutil.NewMockServer(t)
	fetcher := &stubFetcher{err: errors.New("yt-dlp: unsupported url")}
	d := newTestDispatcher(t, srv,
		[]despacho.DispatcherOption{despacho.WithFetcher(fetcher)},
		testutil.TestToken)

	err := d.Dispatch(context.Background(), despacho.Payload{
		Title: "post",
		Video: "https://example.com/watch?v=abc",
	})
	require.NoError(t, err)

	assert.Empty(t, srv.CapturesOf("sendVideo"))
	assert.Len(t, srv.CapturesOf("sendMessage"), 1)
}

func TestDispatch_VideoWinsOverImages(t *testing.T) {
	srv := testutil.NewMockServer(t)
	fetcher := &stubFetcher{files: []string{"clip.mp4"}}
	d := newTestDispatcher(t, srv,
		[]despacho.DispatcherOption{despacho.WithFetcher(fetcher)},
		testutil.TestToken)

	err := d.Dispatch(context.Background(), despacho.Payload{
		Title:  "post",
		Images: []string{"https://img/0.jpg"},
		Video:  "https://example.com/watch?v=abc",
	})
	require.NoError(t, err)

	assert.Len(t, srv.CapturesOf("sendVideo"), 1)
	assert.Empty(t, srv.CapturesOf("sendPhoto"))
}

func TestPayload_Text(t *testing.T) {
	tests := []struct {
		name    string
		payload despacho.Payload
		want    string
	}{
		{
			name:    "all fields",
			payload: despacho.Payload{Title: "t", Link: "l", Body: "b"},
			want:    "l\n\nt\n\nb",
		},
		{
			name:    "title only",
			payload: despacho.Payload{Title: "t"},
			want:    "t",
		},
		{
			name:    "empty link skipped",
			payload: despacho.Payload{Title: "t", Body: "b"},
			want:    "t\n\nb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.payload.Text())
		})
	}
}

func TestPayload_MediaKind(t *testing.T) {
	assert.Equal(t, despacho.MediaNone, despacho.Payload{}.MediaKind())
	assert.Equal(t, despacho.MediaImages, despacho.Payload{Images: []string{"u"}}.MediaKind())
	assert.Equal(t, despacho.MediaVideo, despacho.Payload{Video: "u"}.MediaKind())
	assert.Equal(t, despacho.MediaVideo,
		despacho.Payload{Images: []string{"u"}, Video: "v"}.MediaKind())
}
