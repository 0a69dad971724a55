package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stackvity/asset-compiler/internal/testutil"
	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() dispatch.Report {
	return dispatch.Report{
		Summary: dispatch.ReportSummary{RunID: "r1", TotalFiles: 3, ConvertedCount: 2, FailedCount: 1, DurationSeconds: 1.3},
		Bindings: []dispatch.BindingResult{
			{Converter: "image", Files: 3, Rounds: 2, ThreadCounts: []int{4, 1}, PermanentOOM: []dispatch.FileRecord{{SourceRelativePath: "huge.png"}}},
		},
		Failed: []dispatch.FailureInfo{{Path: "/src/huge.png", Error: "out of memory"}},
	}
}

func TestWriteReport_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, dispatch.OutputFormatText, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "image")
	assert.Contains(t, out, "4 → 1")
	assert.Contains(t, out, "2 of 3 files were converted in 1.3 sec")
	assert.True(t, strings.HasSuffix(out, "  /src/huge.png\n"))
}

func TestWriteReport_TextWithoutBindings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, dispatch.OutputFormatText, dispatch.Report{}))
	assert.Equal(t, "0 file processed in 0.0 sec.\n", buf.String())
}

func TestWriteReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, dispatch.OutputFormatJSON, sampleReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	summary := decoded["summary"].(map[string]any)
	assert.Equal(t, "r1", summary["runId"])
	bindings := decoded["bindings"].([]any)
	require.Len(t, bindings, 1)
	assert.Len(t, bindings[0].(map[string]any)["permanentOutOfMemory"], 1)
}

func TestRenderConverters(t *testing.T) {
	reg := dispatch.NewRegistry()
	require.NoError(t, reg.Register(testutil.NewFakeConverter("image", ".png", ".jpg")))
	all := testutil.NewFakeConverter("copy", dispatch.WildcardExtension)
	all.Multithreading = true
	require.NoError(t, reg.Register(all))
	reg.SetOverwriteExtension("png")

	out := RenderConverters(reg)
	assert.Contains(t, out, ".png .jpg")
	assert.Contains(t, out, "(all)")
	assert.Contains(t, out, "true")
	assert.Contains(t, strings.ToLower(out), "every file looked up as .png")
}
