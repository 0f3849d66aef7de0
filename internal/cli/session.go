package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mvp-joe/pew/internal/config"
	"github.com/mvp-joe/pew/internal/controller"
	"github.com/mvp-joe/pew/internal/files"
	"github.com/mvp-joe/pew/internal/lock"
	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/runner"
	"github.com/mvp-joe/pew/internal/storage"
	"github.com/sirupsen/logrus"
)

// session is everything a project command works with. It is opened from
// the project root and must be closed.
type session struct {
	root   string
	store  config.Store
	global *config.GlobalConfig
	ledger *storage.Ledger
	lock   *lock.ProjectLock
	runner runner.Runner
	log    logrus.FieldLogger
	getenv func(string) string
}

type sessionOptions struct {
	// GlobalDir holds config.json; empty means ~/.pyeverywhere.
	GlobalDir string
	Runner    runner.Runner
	// Exclusive takes the project lock for commands that write the build tree.
	Exclusive bool
}

// openSession loads the project in dir. A missing descriptor is a
// precondition failure.
func openSession(dir string, opts sessionOptions) (*session, error) {
	info := filepath.Join(dir, config.DescriptorFile)
	if !files.Exists(info) {
		return nil, pewerr.Preconditionf("Unable to find project info file at %s. pew cannot continue.", info)
	}
	s := &session{
		root:   dir,
		runner: opts.Runner,
		log:    log,
		getenv: os.Getenv,
	}
	if err := s.store.Load(info); err != nil {
		return nil, err
	}

	var err error
	if opts.GlobalDir != "" {
		s.global, err = config.LoadGlobalConfigFromDir(opts.GlobalDir)
	} else {
		s.global, err = config.LoadGlobalConfig()
	}
	if err != nil {
		return nil, err
	}
	if s.runner == nil {
		s.runner = runner.New(log)
	}

	if opts.Exclusive {
		if s.lock, err = lock.Acquire(dir); err != nil {
			return nil, err
		}
	}
	if s.ledger, err = storage.Open(dir); err != nil {
		s.lock.Release()
		return nil, err
	}
	return s, nil
}

// project is the descriptor loaded when the session was opened.
func (s *session) project() *config.Project {
	return s.store.Project()
}

func (s *session) Close() error {
	var errs []error
	if s.ledger != nil {
		errs = append(errs, s.ledger.Close())
	}
	errs = append(errs, s.lock.Release())
	return errors.Join(errs...)
}

// controller returns the controller for platform, defaulting to the host.
func (s *session) controller(platform, configName string, extraArgs []string) (controller.Controller, error) {
	if platform == "" {
		platform = controller.HostPlatform()
	}
	return controller.New(platform, controller.Options{
		Project:   s.project(),
		Global:    s.global,
		Runner:    s.runner,
		Log:       s.log,
		Config:    configName,
		ExtraArgs: extraArgs,
		Ledger:    s.ledger,
		Getenv:    s.getenv,
	})
}

// copyConfigFile installs configs/<name>.py as src/local_config.py. Any
// previous local_config.py is removed first, so building without a config
// never picks up a stale one.
func copyConfigFile(root, name string) error {
	local := filepath.Join(root, "src", "local_config.py")
	if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", local, err)
	}
	if name == "" {
		return nil
	}
	src := filepath.Join(root, "configs", name+".py")
	if !files.Exists(src) {
		return pewerr.Preconditionf("Specified config file %s not found. Exiting...", src)
	}
	return files.CopyFile(src, local)
}

// splitPlatform takes the optional leading platform argument. Anything
// after it is passed through.
func splitPlatform(args []string) (platform string, rest []string) {
	if len(args) == 0 {
		return controller.HostPlatform(), nil
	}
	return controller.Normalize(args[0]), args[1:]
}

func workingDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return dir, nil
}
