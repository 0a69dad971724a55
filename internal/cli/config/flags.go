package config

import (
	"github.com/spf13/pflag"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
)

// Flag names shared by the command definition and the config loader.
const (
	FlagSource             = "source"
	FlagTarget             = "target"
	FlagThreads            = "threads"
	FlagCopyOnly           = "copy-only"
	FlagRefresh            = "refresh"
	FlagOverwriteExtension = "overwrite-extension"
	FlagIgnore             = "ignore"
	FlagGitChanged         = "git-changed"
	FlagGitSince           = "git-since"
	FlagNoTUI              = "no-tui"
	FlagOutputFormat       = "output-format"
	FlagLogFormat          = "log-format"
	FlagLogFile            = "log-file"
	FlagProgressInterval   = "progress-interval"
	FlagConfig             = "config"
	FlagProfile            = "profile"
	FlagVerbose            = "verbose"
)

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	FlagSource:             "sourceRoots",
	FlagTarget:             "targetRoot",
	FlagThreads:            "threads",
	FlagCopyOnly:           "copyOnly",
	FlagRefresh:            "refresh",
	FlagOverwriteExtension: "overwriteExtension",
	FlagIgnore:             "ignore",
	FlagGitChanged:         "git.changedOnly",
	FlagGitSince:           "git.sinceRef",
	FlagOutputFormat:       "outputFormat",
	FlagLogFormat:          "logFormat",
	FlagLogFile:            "logFile",
	FlagProgressInterval:   "progressInterval",
	FlagVerbose:            "verbose",
}

// DefineFlags registers the compile flags on fs.
func DefineFlags(fs *pflag.FlagSet) {
	fs.StringSliceP(FlagSource, "s", nil, "Source root(s); repeat or separate with ';'. Later roots override earlier ones")
	fs.StringP(FlagTarget, "t", "", "Target root (default: convert next to the source)")
	fs.IntP(FlagThreads, "j", dispatch.DefaultThreads, "Worker threads (0 = number of CPUs)")
	fs.Bool(FlagCopyOnly, false, "Copy every file instead of converting it")
	fs.Bool(FlagRefresh, false, "Reconvert files even when the target is up to date")
	fs.String(FlagOverwriteExtension, "", "Pick the converter of this extension for every file")
	fs.StringSlice(FlagIgnore, nil, "Gitignore-style patterns to skip (repeatable)")
	fs.Bool(FlagGitChanged, false, "Only convert files changed in the git worktree")
	fs.String(FlagGitSince, "", "Only convert files changed since this git reference")
	fs.Bool(FlagNoTUI, false, "Disable the interactive progress UI")
	fs.String(FlagOutputFormat, string(dispatch.DefaultOutputFormat), "Summary format: text or json")
	fs.String(FlagLogFormat, string(dispatch.DefaultLogFormat), "Log format: auto, text or json")
	fs.String(FlagLogFile, "", "Also write logs to this file")
	fs.String(FlagProgressInterval, dispatch.DefaultProgressIntervalString, "How often progress is sampled")
	fs.String(FlagConfig, "", "Config file (default: ./asset-compiler.yaml, $HOME/.config/asset-compiler/)")
	fs.String(FlagProfile, "", "Config profile to apply")
	fs.BoolP(FlagVerbose, "v", dispatch.DefaultVerbose, "Debug logging; lists every file to convert")
}
