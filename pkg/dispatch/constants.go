package dispatch

import "time"

// Constants defining default values for various configuration options.
// These are used when setting up Viper defaults in the configuration loading process.
const (
	// DefaultThreads determines the default number of workers. 0 means runtime.NumCPU().
	DefaultThreads = 0
	// DefaultTuiEnabled is the default state for the Terminal UI.
	DefaultTuiEnabled = true
	// DefaultOutputFormat is the default format for the final summary.
	DefaultOutputFormat = OutputFormatText
	// DefaultLogFormat picks JSON logs when stderr is not a terminal.
	DefaultLogFormat = LogFormatAuto
	// DefaultProgressIntervalString is the polling interval of the progress observer.
	DefaultProgressIntervalString = "50ms"
	// DefaultProgressInterval is the parsed default polling interval.
	DefaultProgressInterval = 50 * time.Millisecond
	// DefaultMemoryWarnMB is the heap size that triggers a memory warning.
	DefaultMemoryWarnMB = 7500
	// DefaultMemoryErrorMB is the heap size reported as an error.
	DefaultMemoryErrorMB = 15500
	// DefaultImageFormat is the output format of the image converter.
	DefaultImageFormat = "png"
	// DefaultImageQuality is used for lossy image output.
	DefaultImageQuality = 90
	// DefaultImageMemoryBudgetMB bounds decoded pixel memory held at once by image compilers.
	DefaultImageMemoryBudgetMB = 1024
	// DefaultVerbose is the default state for verbose logging.
	DefaultVerbose = false
)

// DefaultImageExtensions are handled by the image converter unless configured otherwise.
var DefaultImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// DefaultTextExtensions are handled by the text converter unless configured otherwise.
var DefaultTextExtensions = []string{".txt", ".xml", ".json", ".cfg", ".ini", ".lua", ".csv", ".mtl", ".shader"}

// LockFileName is created in the target root while a run holds it.
const LockFileName = ".asset-compiler.lock"

// ReportSchemaVersion indicates the version of the JSON report structure.
const ReportSchemaVersion = "1.0"
