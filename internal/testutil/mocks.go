// Package testutil provides mock implementations for interfaces defined in the
// asset-compiler core library (pkg/dispatch) and the CLI. These mocks
// facilitate unit testing by isolating components.
package testutil

import (
	"context"
	"log/slog"
	"time"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stretchr/testify/mock"
)

// MockConverter provides a mock implementation of the dispatch.Converter interface.
// Configure expectations using testify/mock methods (e.g., .On("Init", ...).Return(...)).
type MockConverter struct {
	mock.Mock
}

// Name mocks the Name method.
func (m *MockConverter) Name() string {
	args := m.Called()
	return args.String(0)
}

// Extensions mocks the Extensions method.
func (m *MockConverter) Extensions() []string {
	args := m.Called()
	exts, _ := args.Get(0).([]string)
	return exts
}

// Init mocks the Init method.
func (m *MockConverter) Init(ic dispatch.InitContext) error {
	args := m.Called(ic)
	return args.Error(0)
}

// DeInit mocks the DeInit method.
func (m *MockConverter) DeInit() {
	m.Called()
}

// CreateCompiler mocks the CreateCompiler method.
func (m *MockConverter) CreateCompiler() dispatch.Compiler {
	args := m.Called()
	c, _ := args.Get(0).(dispatch.Compiler)
	return c
}

// SupportsMultithreading mocks the SupportsMultithreading method.
func (m *MockConverter) SupportsMultithreading() bool {
	args := m.Called()
	return args.Bool(0)
}

// MockCompiler provides a mock implementation of the dispatch.Compiler interface.
type MockCompiler struct {
	mock.Mock
}

// BeginProcessing mocks the BeginProcessing method.
func (m *MockCompiler) BeginProcessing(cfg dispatch.ProcessingConfig) {
	m.Called(cfg)
}

// Process mocks the Process method.
func (m *MockCompiler) Process(ctx context.Context, job dispatch.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// EndProcessing mocks the EndProcessing method.
func (m *MockCompiler) EndProcessing() {
	m.Called()
}

// Release mocks the Release method.
func (m *MockCompiler) Release() {
	m.Called()
}

// MockHooks provides a mock implementation of the dispatch.Hooks interface.
// Hooks are called concurrently by workers; testify mocks are safe for that.
type MockHooks struct {
	mock.Mock
}

// OnRoundStart mocks the OnRoundStart method.
func (m *MockHooks) OnRoundStart(converter string, round, threads, files int) error {
	args := m.Called(converter, round, threads, files)
	return args.Error(0)
}

// OnProgress mocks the OnProgress method.
func (m *MockHooks) OnProgress(p dispatch.Progress) error {
	args := m.Called(p)
	return args.Error(0)
}

// OnFileStatusUpdate mocks the OnFileStatusUpdate method.
func (m *MockHooks) OnFileStatusUpdate(rec dispatch.FileRecord, status dispatch.Status, message string, duration time.Duration) error {
	args := m.Called(rec, status, message, duration)
	return args.Error(0)
}

// OnRunComplete mocks the OnRunComplete method.
func (m *MockHooks) OnRunComplete(report dispatch.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

// MockToolRunner provides a mock implementation of the external converter's ToolRunner.
type MockToolRunner struct {
	mock.Mock
}

// Run mocks the Run method.
func (m *MockToolRunner) Run(ctx context.Context, command []string, stdin []byte) ([]byte, error) {
	args := m.Called(ctx, command, stdin)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

// MockLoggerHandler provides a mock implementation of slog.Handler.
type MockLoggerHandler struct {
	mock.Mock
}

// Enabled mocks the Enabled method.
func (m *MockLoggerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	args := m.Called(ctx, level)
	return args.Bool(0)
}

// Handle mocks the Handle method.
func (m *MockLoggerHandler) Handle(ctx context.Context, r slog.Record) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// WithAttrs mocks the WithAttrs method.
func (m *MockLoggerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	args := m.Called(attrs)
	if h, ok := args.Get(0).(slog.Handler); ok {
		return h
	}
	return m
}

// WithGroup mocks the WithGroup method.
func (m *MockLoggerHandler) WithGroup(name string) slog.Handler {
	args := m.Called(name)
	if h, ok := args.Get(0).(slog.Handler); ok {
		return h
	}
	return m
}
