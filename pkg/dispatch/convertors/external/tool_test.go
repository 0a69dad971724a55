package external_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stackvity/asset-compiler/internal/testutil"
	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stackvity/asset-compiler/pkg/dispatch/convertors/external"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func toolConfig() dispatch.ToolConfig {
	return dispatch.ToolConfig{
		Name:       "meshc",
		Extensions: []string{".fbx"},
		Command:    []string{"meshc", "--in", "{source}", "--out", "{targetDir}"},
		Params:     map[string]string{"lod": "3"},
	}
}

var rec = dispatch.FileRecord{SourceRoot: "/src", SourceRelativePath: "objects/tree.fbx", TargetRoot: "/out"}

func runJob(t *testing.T, conv *external.Converter) error {
	t.Helper()
	require.NoError(t, conv.Init(dispatch.InitContext{Config: dispatch.ProcessingConfig{Params: map[string]string{"lod": "1", "platform": "pc"}}}))
	c := conv.CreateCompiler()
	c.BeginProcessing(dispatch.ProcessingConfig{Refresh: true})
	defer c.Release()
	defer c.EndProcessing()
	return c.Process(context.Background(), dispatch.Job{Record: rec, SourcePath: rec.SourcePath(), TargetDir: rec.TargetDir(), WorkerID: 2, LogMemory: true})
}

func response(status, msg string) []byte {
	out, _ := json.Marshal(external.Response{SchemaVersion: external.SchemaVersion, Status: status, Error: msg})
	return out
}

func TestNew_Validation(t *testing.T) {
	runner := &testutil.MockToolRunner{}
	testCases := []struct {
		name   string
		mutate func(c *dispatch.ToolConfig)
	}{
		{"No name", func(c *dispatch.ToolConfig) { c.Name = " " }},
		{"No extensions", func(c *dispatch.ToolConfig) { c.Extensions = nil }},
		{"No command", func(c *dispatch.ToolConfig) { c.Command = nil }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := toolConfig()
			tc.mutate(&cfg)
			_, err := external.New(cfg, runner, nil)
			assert.ErrorIs(t, err, dispatch.ErrConfigValidation)
		})
	}

	_, err := external.New(toolConfig(), nil, nil)
	assert.ErrorIs(t, err, dispatch.ErrConfigValidation)
}

func TestCompiler_SendsRequestAndExpandsCommand(t *testing.T) {
	runner := &testutil.MockToolRunner{}
	wantCmd := []string{"meshc", "--in", rec.SourcePath(), "--out", rec.TargetDir()}
	runner.On("Run", mock.Anything, wantCmd, mock.MatchedBy(func(stdin []byte) bool {
		var req external.Request
		if err := json.Unmarshal(stdin, &req); err != nil {
			return false
		}
		return req.SchemaVersion == external.SchemaVersion &&
			req.RelativePath == "objects/tree.fbx" &&
			req.WorkerID == 2 && req.Refresh && req.LogMemory &&
			req.Params["lod"] == "3" && req.Params["platform"] == "pc"
	})).Return(response(external.StatusOK, ""), nil).Once()

	conv, err := external.New(toolConfig(), runner, nil)
	require.NoError(t, err)

	assert.NoError(t, runJob(t, conv))
	runner.AssertExpectations(t)
}

func TestCompiler_OutcomeMapping(t *testing.T) {
	testCases := []struct {
		name      string
		stdout    []byte
		runErr    error
		wantOOM   bool
		wantInErr string
	}{
		{"Tool reports oom", response(external.StatusOutOfMemory, ""), nil, true, "ran out of memory"},
		{"Tool reports error", response(external.StatusError, "bad mesh"), nil, false, "bad mesh"},
		{"Non-zero exit", nil, errors.New("exit status 3"), false, "exit status 3"},
		{"Invalid JSON", []byte("not json"), nil, false, "invalid JSON"},
		{"Schema mismatch", []byte(`{"schemaVersion":"0.1","status":"ok"}`), nil, false, "schema version"},
		{"Unknown status", response("maybe", ""), nil, false, "unknown status"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &testutil.MockToolRunner{}
			runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(tc.stdout, tc.runErr).Once()
			conv, err := external.New(toolConfig(), runner, nil)
			require.NoError(t, err)

			err = runJob(t, conv)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantInErr)
			if tc.wantOOM {
				assert.ErrorIs(t, err, dispatch.ErrOutOfMemory)
			} else {
				assert.ErrorIs(t, err, dispatch.ErrConversionFailed)
				assert.NotErrorIs(t, err, dispatch.ErrOutOfMemory)
			}
		})
	}
}

func TestConverter_Multithreading(t *testing.T) {
	cfg := toolConfig()
	conv, err := external.New(cfg, &testutil.MockToolRunner{}, nil)
	require.NoError(t, err)
	assert.False(t, conv.SupportsMultithreading())

	cfg.Multithreading = true
	conv, err = external.New(cfg, &testutil.MockToolRunner{}, nil)
	require.NoError(t, err)
	assert.True(t, conv.SupportsMultithreading())
	assert.Equal(t, "meshc", conv.Name())
}
