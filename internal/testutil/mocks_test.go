package testutil_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stackvity/asset-compiler/internal/testutil"
	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The testify mocks only record calls; FakeConverter carries real logic and
// is checked here.
func TestFakeConverter_CountsAttemptsPerRecord(t *testing.T) {
	boom := errors.New("boom")
	f := testutil.NewFakeConverter("fake", ".dat")
	f.Outcome = func(job dispatch.Job, attempt int) error {
		if attempt == 1 {
			return boom
		}
		return nil
	}

	c := f.CreateCompiler()
	rec := testutil.Records("/src", "", "dat", 1)[0]
	job := dispatch.Job{Record: rec}

	assert.ErrorIs(t, c.Process(context.Background(), job), boom)
	assert.NoError(t, c.Process(context.Background(), job))
	c.Release()

	assert.Equal(t, 2, f.Attempts(rec.Key()))
	assert.Equal(t, int64(2), f.ProcessCalls.Load())
	assert.Equal(t, []string{"file00.dat", "file00.dat"}, f.Order())
	require.Len(t, f.Compilers(), 1)
	assert.Equal(t, int64(1), f.Compilers()[0].ReleaseCalls.Load())
	assert.Equal(t, int64(1), f.MaxActive.Load())
}
