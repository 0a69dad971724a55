package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
)

// OutcomeFunc decides the result of one Process call. attempt counts the
// calls for the same record, starting at 1.
type OutcomeFunc func(job dispatch.Job, attempt int) error

// FakeConverter is an instrumented dispatch.Converter for concurrency tests.
// All counters are safe for concurrent use.
type FakeConverter struct {
	ConverterName  string
	Exts           []string
	Multithreading bool
	InitErr        error
	Outcome        OutcomeFunc   // nil means every file converts
	Delay          time.Duration // sleep inside Process

	InitCalls    atomic.Int64
	DeInitCalls  atomic.Int64
	ProcessCalls atomic.Int64
	MaxActive    atomic.Int64

	active atomic.Int64

	mu        sync.Mutex
	attempts  map[string]int
	order     []string
	compilers []*FakeCompiler
	initFiles []dispatch.FileRecord
}

// NewFakeConverter creates a multithreaded fake bound to exts.
func NewFakeConverter(name string, exts ...string) *FakeConverter {
	return &FakeConverter{ConverterName: name, Exts: exts, Multithreading: true}
}

func (f *FakeConverter) Name() string                 { return f.ConverterName }
func (f *FakeConverter) Extensions() []string         { return f.Exts }
func (f *FakeConverter) SupportsMultithreading() bool { return f.Multithreading }

func (f *FakeConverter) Init(ic dispatch.InitContext) error {
	f.InitCalls.Add(1)
	f.mu.Lock()
	f.initFiles = append([]dispatch.FileRecord(nil), ic.Files...)
	f.mu.Unlock()
	return f.InitErr
}

func (f *FakeConverter) DeInit() { f.DeInitCalls.Add(1) }

func (f *FakeConverter) CreateCompiler() dispatch.Compiler {
	c := &FakeCompiler{parent: f}
	f.mu.Lock()
	f.compilers = append(f.compilers, c)
	f.mu.Unlock()
	return c
}

// Compilers returns every compiler created so far.
func (f *FakeConverter) Compilers() []*FakeCompiler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCompiler(nil), f.compilers...)
}

// Attempts returns how often the record with key was processed.
func (f *FakeConverter) Attempts(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[key]
}

// Order returns the relative paths in the order Process saw them.
func (f *FakeConverter) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// InitFiles returns the files passed to the last Init call.
func (f *FakeConverter) InitFiles() []dispatch.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatch.FileRecord(nil), f.initFiles...)
}

// FakeCompiler records its lifecycle calls.
type FakeCompiler struct {
	parent *FakeConverter

	BeginCalls   atomic.Int64
	EndCalls     atomic.Int64
	ReleaseCalls atomic.Int64
	Processed    atomic.Int64
}

func (c *FakeCompiler) BeginProcessing(dispatch.ProcessingConfig) { c.BeginCalls.Add(1) }
func (c *FakeCompiler) EndProcessing()                            { c.EndCalls.Add(1) }
func (c *FakeCompiler) Release()                                  { c.ReleaseCalls.Add(1) }

func (c *FakeCompiler) Process(ctx context.Context, job dispatch.Job) error {
	f := c.parent
	f.ProcessCalls.Add(1)
	c.Processed.Add(1)

	n := f.active.Add(1)
	for {
		cur := f.MaxActive.Load()
		if n <= cur || f.MaxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	defer f.active.Add(-1)

	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	key := job.Record.Key()
	f.attempts[key]++
	attempt := f.attempts[key]
	f.order = append(f.order, job.Record.SourceRelativePath)
	f.mu.Unlock()

	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if f.Outcome == nil {
		return nil
	}
	return f.Outcome(job, attempt)
}
