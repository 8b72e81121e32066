package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsBusyGroup(t *testing.T) {
	assert.True(t, isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isBusyGroup(errors.New("NOGROUP No such key")))
	assert.False(t, isBusyGroup(nil))
}

func TestSleepReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	sleep(ctx, time.Minute)
	assert.Less(t, time.Since(start), time.Second)
}
