package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// ErrAborted is returned by WriteDefault when the user declines to overwrite
var ErrAborted = fmt.Errorf("config write aborted")

// Marshal renders cfg as YAML with secrets blanked out
func Marshal(cfg *Config) ([]byte, error) {
	out := *cfg
	out.Security.JWTSecret = ""
	out.Security.AdminPassword = ""
	out.Push.VAPIDPrivateKey = ""
	return yaml.Marshal(&out)
}

// WriteDefault writes the default configuration to path. An existing file is
// only replaced after confirmation, and only when in is an interactive
// terminal. Non-interactive callers must pass force.
func WriteDefault(path, dataDir string, in *os.File, prompt io.Writer, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		if in == nil || !term.IsTerminal(int(in.Fd())) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if !confirm(in, prompt, fmt.Sprintf("%s exists. Overwrite? [y/N] ", path)) {
			return ErrAborted
		}
	}

	data, err := Marshal(Defaults(dataDir))
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprint(out, question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
