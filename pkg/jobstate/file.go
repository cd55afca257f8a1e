package jobstate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const delimiterPrefix = "ghadelimiter_"

// File is a Store backed by the runner's state file (GITHUB_STATE). Values
// are appended as heredoc records:
//
//	NAME<<ghadelimiter_<uuid>
//	value
//	ghadelimiter_<uuid>
//
// Get first consults STATE_<name> in the environment, which is how the runner
// hands saved state to a later step, and falls back to parsing the file.
type File struct {
	path      string
	lookupEnv func(string) (string, bool)
}

// NewFile returns a Store appending to path.
func NewFile(path string) *File {
	return &File{path: path, lookupEnv: os.LookupEnv}
}

func (f *File) lock() (*flock.Flock, error) {
	lock := flock.New(f.path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock state file: %w", err)
	}
	return lock, nil
}

func (f *File) Save(name, value string) error {
	if name == "" || strings.ContainsAny(name, "\n=<") {
		return fmt.Errorf("invalid state name %q", name)
	}

	delimiter := delimiterPrefix + uuid.NewString()
	if strings.Contains(value, delimiter) {
		return fmt.Errorf("state value for %s contains its delimiter", name)
	}

	lock, err := f.lock()
	if err != nil {
		return err
	}
	defer lock.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open state file: %w", err)
	}
	_, err = fmt.Fprintf(file, "%s<<%s\n%s\n%s\n", name, delimiter, value, delimiter)
	closeErr := file.Close()
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return closeErr
}

// Reset truncates the file, dropping every record written by earlier jobs.
func (f *File) Reset() error {
	lock, err := f.lock()
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := os.Truncate(f.path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to reset state file: %w", err)
	}
	return nil
}

func (f *File) Get(name string) (string, bool, error) {
	if v, ok := f.lookupEnv("STATE_" + name); ok {
		return v, true, nil
	}

	lock, err := f.lock()
	if err != nil {
		return "", false, err
	}
	defer lock.Unlock()

	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to open state file: %w", err)
	}
	defer file.Close()

	values, err := parse(file)
	if err != nil {
		return "", false, err
	}
	v, ok := values[name]
	return v, ok, nil
}

// parse reads both "NAME=value" and heredoc records. Later records win.
func parse(r io.Reader) (map[string]string, error) {
	values := make(map[string]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		eq, hd := strings.Index(line, "="), strings.Index(line, "<<")
		if hd >= 0 && (eq < 0 || hd < eq) {
			name, delimiter := line[:hd], line[hd+2:]
			var body []string
			closed := false
			for sc.Scan() {
				if sc.Text() == delimiter {
					closed = true
					break
				}
				body = append(body, sc.Text())
			}
			if !closed {
				return nil, fmt.Errorf("unterminated state record %s", name)
			}
			values[name] = strings.Join(body, "\n")
			continue
		}
		if name, value, ok := strings.Cut(line, "="); ok {
			values[name] = value
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	return values, nil
}
