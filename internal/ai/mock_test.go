// ABOUTME: Tests for MockGateway call recording and error injection
// ABOUTME: Other packages rely on these behaviors in their own tests

package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGateway_RecordsCalls(t *testing.T) {
	m := NewMockGateway()
	ctx := context.Background()

	_, err := m.Complete(ctx, "prompt")
	require.NoError(t, err)
	_, err = m.DescribeImage(ctx, []byte{1, 2}, "image/png", "")
	require.NoError(t, err)
	url, err := m.GenerateImage(ctx, "cat")
	require.NoError(t, err)
	data, err := m.FetchImage(ctx, url)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	calls := m.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "Complete", calls[0].Method)
	assert.Equal(t, DefaultImageQuestion, calls[1].Prompt)
	assert.Equal(t, "cat", calls[2].Prompt)
	assert.Equal(t, url, calls[3].Prompt)
	assert.Len(t, m.CallsTo("DescribeImage"), 1)
}

func TestMockGateway_Errors(t *testing.T) {
	m := NewMockGateway()
	m.CompleteErr = errors.New("rate limited")

	_, err := m.Complete(context.Background(), "x")
	assert.EqualError(t, err, "rate limited")
	assert.Len(t, m.CallsTo("Complete"), 1, "failed calls are still recorded")
}

func TestMockGateway_CannedResponse(t *testing.T) {
	m := NewMockGateway()
	m.CompleteResponse = "fixed"

	got, err := m.Complete(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "fixed", got)
}
