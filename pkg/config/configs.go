// Package configs resolves the settings for a sync run from an ini config
// file, environment variables and, for the root group path only, an
// interactive prompt. Sources are merged in precedence order: environment
// beats the config file, the config file beats built-in defaults.
package configs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/ilyakaznacheev/cleanenv"
	"golang.org/x/term"
	"gopkg.in/ini.v1"
)

// ConfigFileName is the fixed name of the ini config file in the user's
// home directory.
const ConfigFileName = ".gitlab-group-sync.cfg"

// DefaultSection is the config file section used when GL_CONFIG_SECTION
// is not set.
const DefaultSection = "gitlab"

// ErrRootGroupPathUnset is returned when the root group path is not
// resolvable from any source and stdin is not a terminal.
var ErrRootGroupPathUnset = errors.New("root group path not set: set GL_ROOT_PATH or run interactively")

// Settings holds everything a sync run needs. It is fully populated by
// Resolver.Resolve and read-only afterwards.
type Settings struct {
	URL           string `env:"GL_URL" ini:"url"`
	APIVersion    string `ini:"api_version"`
	Token         string `env:"GL_TOKEN" ini:"private_token"`
	ConfigSection string `env:"GL_CONFIG_SECTION" ini:"-"`
	RootGroupPath string `env:"GL_ROOT_PATH" ini:"-"`
	LocalBasePath string `env:"GL_LOCAL_BASE_PATH" ini:"-"`
}

// Resolver merges the configuration sources into a Settings value. The
// zero value is not usable; construct it with NewResolver.
type Resolver struct {
	// ConfigPath is the location of the ini config file. A missing file
	// is not an error.
	ConfigPath string
	// Stdin and Stdout carry the interactive root-group-path prompt.
	Stdin  io.Reader
	Stdout io.Writer
	// Interactive reports whether prompting is possible at all.
	Interactive func() bool
}

// NewResolver returns a Resolver wired to the real environment: the config
// file in the user's home directory and the process terminal.
func NewResolver() *Resolver {
	configPath := ConfigFileName
	if home, err := os.UserHomeDir(); err == nil {
		configPath = filepath.Join(home, ConfigFileName)
	}

	return &Resolver{
		ConfigPath: configPath,
		Stdin:      os.Stdin,
		Stdout:     os.Stderr,
		Interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// Resolve produces a fully-populated Settings or fails. Each source only
// fills fields that are still empty, so earlier sources win.
func (r *Resolver) Resolve() (*Settings, error) {
	settings := new(Settings)

	sources := []func(*Settings) (*Settings, error){
		r.fromEnv,
		r.fromFile,
		r.defaults,
	}
	for _, source := range sources {
		partial, err := source(settings)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(settings, partial); err != nil {
			return nil, fmt.Errorf("merging config sources: %w", err)
		}
	}

	if settings.RootGroupPath == "" {
		rootPath, err := r.promptRootGroupPath()
		if err != nil {
			return nil, err
		}
		settings.RootGroupPath = rootPath
	}

	return settings, nil
}

func (r *Resolver) fromEnv(*Settings) (*Settings, error) {
	settings := new(Settings)
	if err := cleanenv.ReadEnv(settings); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return settings, nil
}

// fromFile reads the named section of the ini config file. The section
// name may itself have come from the environment, which is why the
// environment source runs first.
func (r *Resolver) fromFile(resolved *Settings) (*Settings, error) {
	settings := new(Settings)

	file, err := ini.Load(r.ConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("loading config file %s: %w", r.ConfigPath, err)
	}

	section := resolved.ConfigSection
	if section == "" {
		section = DefaultSection
	}
	if !file.HasSection(section) {
		return settings, nil
	}
	if err := file.Section(section).MapTo(settings); err != nil {
		return nil, fmt.Errorf("parsing config section [%s]: %w", section, err)
	}

	return settings, nil
}

func (r *Resolver) defaults(*Settings) (*Settings, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining working directory: %w", err)
	}

	return &Settings{
		URL:           "https://gitlab.com",
		APIVersion:    "4",
		Token:         "token",
		ConfigSection: DefaultSection,
		LocalBasePath: cwd,
	}, nil
}

func (r *Resolver) promptRootGroupPath() (string, error) {
	if r.Interactive == nil || !r.Interactive() {
		return "", ErrRootGroupPathUnset
	}

	fmt.Fprint(r.Stdout, "GL_ROOT_PATH environment variable not set.\nPlease enter the group, like 'namespace/projects': ")
	line, err := bufio.NewReader(r.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading root group path: %w", err)
	}

	rootPath := strings.TrimSpace(line)
	if rootPath == "" {
		return "", ErrRootGroupPathUnset
	}
	return rootPath, nil
}
