package main

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
)

func TestRedisURL(t *testing.T) {
	assert.Equal(t, "redis://127.0.0.1:6379/0", redisURL(""))
	assert.Equal(t, "redis://cache:6379/1", redisURL("redis://cache:6379/1"))
}

func TestCheck(t *testing.T) {
	mr := miniredis.RunT(t)

	t.Setenv("REDIS_URL", "redis://"+mr.Addr())
	assert.Equal(t, 0, check())

	t.Setenv("REDIS_URL", "redis://127.0.0.1:1")
	assert.Equal(t, 1, check())
}
