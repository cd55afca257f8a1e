package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/richardartoul/tieredcache/pkg/tiered"
)

// Input names. Each is also read from INPUT_<NAME>, e.g. INPUT_RESTORE-KEYS.
const (
	inputKey             = "key"
	inputPath            = "path"
	inputRestoreKeys     = "restore-keys"
	inputToHash          = "to-hash"
	inputUploadChunkSize = "upload-chunk-size"
	inputCheckOnly       = "check-only"
	inputSkipRestore     = "skip-restore"
	inputSkipSave        = "skip-save"

	inputBackend    = "backend"
	inputCacheDir   = "cache-dir"
	inputS3Bucket   = "s3-bucket"
	inputS3Prefix   = "s3-prefix"
	inputS3Region   = "s3-region"
	inputS3Endpoint = "s3-endpoint"
	inputDebug      = "debug"
)

// Keys bound to the runner's environment rather than to inputs.
const (
	envEventName     = "github-event-name"
	envStateFile     = "github-state"
	envOutputFile    = "github-output"
	envWorkspace     = "github-workspace"
	envCacheDisabled = "actions-cache-disabled"
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("INPUT")
	v.AutomaticEnv()

	_ = v.BindEnv(envEventName, "GITHUB_EVENT_NAME")
	_ = v.BindEnv(envStateFile, "GITHUB_STATE")
	_ = v.BindEnv(envOutputFile, "GITHUB_OUTPUT")
	_ = v.BindEnv(envWorkspace, "GITHUB_WORKSPACE")
	_ = v.BindEnv(envCacheDisabled, "ACTIONS_CACHE_DISABLED")
	return v
}

// registerFlags defines a flag per input and binds it, so flags take
// precedence over INPUT_* variables.
func registerFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.String(inputKey, "", "primary cache key")
	fs.StringArray(inputPath, nil, "path to cache (repeatable, or newline separated)")
	fs.StringArray(inputRestoreKeys, nil, "ordered restore key prefix (repeatable, or newline separated)")
	fs.String(inputToHash, "", "newline separated file patterns whose content qualifies the fast key")
	fs.String(inputUploadChunkSize, "", "upload chunk size in bytes")
	fs.String(inputCheckOnly, "", "only check the fast lookup key, never restore the bundle")
	fs.String(inputSkipRestore, "", "skip the restore phase")
	fs.String(inputSkipSave, "", "skip the save phase")

	fs.String(inputBackend, "disk", "cache backend: disk, s3 or none")
	fs.String(inputCacheDir, defaultCacheDir(), "cache directory for the disk backend")
	fs.String(inputS3Bucket, "", "bucket for the s3 backend")
	fs.String(inputS3Prefix, "", "object prefix for the s3 backend")
	fs.String(inputS3Region, "", "region for the s3 backend")
	fs.String(inputS3Endpoint, "", "endpoint override for S3-compatible services")
	fs.Bool(inputDebug, false, "enable debug logging")

	fs.String(envStateFile, "", "job state file (defaults to $GITHUB_STATE)")
	fs.String(envOutputFile, "", "output file (defaults to $GITHUB_OUTPUT)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "tieredcache")
}

// loadInputs reads and validates the recognized inputs. Presence of required
// inputs is checked by the phases, not here.
func loadInputs(v *viper.Viper) (tiered.Inputs, error) {
	in := tiered.Inputs{
		PrimaryKey:   strings.TrimSpace(v.GetString(inputKey)),
		Paths:        inputList(v, inputPath),
		RestoreKeys:  inputList(v, inputRestoreKeys),
		HashSelector: v.GetString(inputToHash),
	}

	var err error
	if in.UploadChunkSize, err = inputInt(v, inputUploadChunkSize); err != nil {
		return tiered.Inputs{}, err
	}
	if in.CheckOnly, err = inputBool(v, inputCheckOnly); err != nil {
		return tiered.Inputs{}, err
	}
	if in.SkipRestore, err = inputBool(v, inputSkipRestore); err != nil {
		return tiered.Inputs{}, err
	}
	if in.SkipSave, err = inputBool(v, inputSkipSave); err != nil {
		return tiered.Inputs{}, err
	}
	return in, nil
}

// inputList splits a multi-value input on newlines, trimming entries and
// dropping empty ones. Values from repeated flags are split the same way.
func inputList(v *viper.Viper, name string) []string {
	var raw []string
	switch t := v.Get(name).(type) {
	case []string:
		raw = t
	case string:
		raw = []string{t}
	}

	var out []string
	for _, r := range raw {
		for _, line := range strings.Split(r, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}

// inputBool accepts the YAML 1.2 core schema booleans. Empty means false.
func inputBool(v *viper.Viper, name string) (bool, error) {
	switch s := strings.TrimSpace(v.GetString(name)); s {
	case "":
		return false, nil
	case "true", "True", "TRUE":
		return true, nil
	case "false", "False", "FALSE":
		return false, nil
	default:
		return false, fmt.Errorf("input %s does not meet YAML 1.2 \"Core Schema\" specification: %q (support true | True | TRUE | false | False | FALSE)", name, s)
	}
}

func inputInt(v *viper.Viper, name string) (int64, error) {
	s := strings.TrimSpace(v.GetString(name))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("input %s is not a non-negative integer: %q", name, s)
	}
	return n, nil
}
