package sweeper

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"moe-bot/internal/settings"
	"moe-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeResolver struct {
	mu          sync.Mutex
	channelErrs map[string]error
	messageErrs map[string]error
	calls       int
}

func (f *fakeResolver) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.channelErrs[channelID]; err != nil {
		return nil, err
	}
	return &discordgo.Channel{ID: channelID}, nil
}

func (f *fakeResolver) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.messageErrs[messageID]; err != nil {
		return nil, err
	}
	return &discordgo.Message{ID: messageID, ChannelID: channelID}, nil
}

func (f *fakeResolver) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func notFound(code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusNotFound},
		Message:  &discordgo.APIErrorMessage{Code: code},
	}
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "settings.json"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Update(func(c settings.Collection) bool {
		c.Ensure("42", "")
		c.Bind("42", "10", "100", "✅", "501")
		c.Bind("42", "10", "101", "✅", "502")
		c.Bind("42", "20", "200", "✅", "503")
		c.Bind("42", "20", "201", "✅", "504")
		c.Ensure("43", "")
		c.Bind("43", "30", "300", "✅", "505")
		return true
	}))
	return store
}

func TestRunOnceRemovesVanishedEntriesWithOneSave(t *testing.T) {
	store := newStore(t)
	resolver := &fakeResolver{
		channelErrs: map[string]error{"10": notFound(discordgo.ErrCodeUnknownChannel)},
		messageErrs: map[string]error{"201": notFound(discordgo.ErrCodeUnknownMessage)},
	}
	before := store.Saves()

	result, err := New(Config{}, store, resolver, nil, zap.NewNop()).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.ChannelsRemoved)
	assert.Equal(t, 1, result.MessagesRemoved)
	assert.Equal(t, uint64(1), store.Saves()-before)

	guild, _ := store.Guild("42")
	assert.NotContains(t, guild.ReactionRoles, "10")
	assert.Contains(t, guild.ReactionRoles["20"], "200")
	assert.NotContains(t, guild.ReactionRoles["20"], "201")

	other, _ := store.Guild("43")
	assert.Contains(t, other.ReactionRoles["30"], "300")
}

func TestRunOnceWithoutRemovalsDoesNotSave(t *testing.T) {
	store := newStore(t)
	before := store.Saves()

	result, err := New(Config{}, store, &fakeResolver{}, nil, zap.NewNop()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Removed())
	assert.Equal(t, before, store.Saves())
}

func TestRunOnceSkipsTransientFailures(t *testing.T) {
	store := newStore(t)
	resolver := &fakeResolver{
		channelErrs: map[string]error{"10": errors.New("connection reset")},
		messageErrs: map[string]error{"200": &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusBadGateway}}},
	}

	result, err := New(Config{}, store, resolver, nil, zap.NewNop()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Removed())
	assert.Equal(t, 3, result.Skipped)

	guild, _ := store.Guild("42")
	assert.Contains(t, guild.ReactionRoles, "10")
	assert.Contains(t, guild.ReactionRoles["20"], "200")
}

func TestRunOnceTreatsLostAccessAsVanished(t *testing.T) {
	store := newStore(t)
	resolver := &fakeResolver{
		channelErrs: map[string]error{"30": &discordgo.RESTError{
			Response: &http.Response{StatusCode: http.StatusForbidden},
			Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingAccess},
		}},
	}

	result, err := New(Config{}, store, resolver, nil, zap.NewNop()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChannelsRemoved)

	other, _ := store.Guild("43")
	assert.Empty(t, other.ReactionRoles)
}

func TestRunOnceSinglePass(t *testing.T) {
	store := newStore(t)
	s := New(Config{}, store, &fakeResolver{}, nil, zap.NewNop())

	s.running.Lock()
	_, err := s.RunOnce(context.Background())
	s.running.Unlock()
	assert.ErrorIs(t, err, ErrPassInProgress)
}

func TestRunOnceHonoursCancellation(t *testing.T) {
	store := newStore(t)
	resolver := &fakeResolver{channelErrs: map[string]error{"10": notFound(discordgo.ErrCodeUnknownChannel)}}
	before := store.Saves()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}, store, resolver, nil, zap.NewNop()).RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, store.Saves())
}

func TestStartRunsAndStops(t *testing.T) {
	store := newStore(t)
	resolver := &fakeResolver{}
	s := New(Config{Interval: 5 * time.Millisecond}, store, resolver, nil, zap.NewNop())

	stop := s.Start(context.Background())
	assert.Eventually(t, func() bool { return resolver.Calls() >= 10 }, time.Second, time.Millisecond)
	stop()
}
