package notify

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifierLogsEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()

	n, err := New(context.Background(), "", "ignored", logger)
	require.NoError(t, err)
	require.IsType(t, &LogNotifier{}, n)

	require.NoError(t, n.Notify(context.Background(), CommitEvent{
		JobID:      "job-1",
		RepoID:     "repo",
		CommitHash: "abc",
		At:         time.Unix(0, 0),
	}))
	require.NoError(t, n.Close())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "abc", entry.Data["commit"])
	assert.Equal(t, "notify", entry.Data["component"])
}

func TestRedisNotifierFailsFastWhenUnreachable(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := NewRedisNotifier(ctx, "127.0.0.1:1", "events", logger)
	assert.Error(t, err)

	_, err = NewRedisNotifier(ctx, "", "events", logger)
	assert.Error(t, err)
	_, err = NewRedisNotifier(ctx, "127.0.0.1:6379", "", logger)
	assert.Error(t, err)
}
