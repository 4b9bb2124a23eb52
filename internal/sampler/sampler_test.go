package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/basetenlabs/loadbench/internal/model"
)

func TestFixedSamplerAlwaysReturnsSameRequest(t *testing.T) {
	req := model.UserRequest{Prompt: "hello", Model: "m"}
	f := Fixed{Request: req}
	assert.Equal(t, req, f.Next())
	assert.Equal(t, req, f.Next())
}

func TestRoundRobinCyclesThroughRequests(t *testing.T) {
	rr := NewRoundRobin([]model.UserRequest{
		{Prompt: "a"}, {Prompt: "b"}, {Prompt: "c"},
	})
	got := []string{rr.Next().Prompt, rr.Next().Prompt, rr.Next().Prompt, rr.Next().Prompt}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestRoundRobinEmptyPoolReturnsZeroValue(t *testing.T) {
	rr := NewRoundRobin(nil)
	assert.Equal(t, model.UserRequest{}, rr.Next())
}

func TestUniformRandomAlwaysDrawsFromThePool(t *testing.T) {
	pool := []model.UserRequest{{Prompt: "a"}, {Prompt: "b"}, {Prompt: "c"}}
	u := NewUniformRandom(pool)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		req := u.Next()
		assert.Contains(t, []string{"a", "b", "c"}, req.Prompt)
		seen[req.Prompt] = true
	}
	assert.True(t, len(seen) > 1, "100 draws from a 3-element pool should hit more than one entry")
}

func TestUniformRandomEmptyPoolReturnsZeroValue(t *testing.T) {
	u := NewUniformRandom(nil)
	assert.Equal(t, model.UserRequest{}, u.Next())
}
