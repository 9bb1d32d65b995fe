package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/nstack/wraith-supervisor/internal/cluster"
	"github.com/nstack/wraith-supervisor/internal/engine"
	"github.com/nstack/wraith-supervisor/internal/server"
	"github.com/nstack/wraith-supervisor/internal/shell"
	"github.com/nstack/wraith-supervisor/internal/supervisor"
	"github.com/nstack/wraith-supervisor/internal/supervisorlog"
)

const defaultVersion = "unversioned"

var (
	commit  string
	version = defaultVersion

	configPath string
	debugFlag  bool
	socketPath = "unix:///run/podman/podman.sock"
)

func main() {
	updateBuildInfo()

	flaggy.SetName("wraith-supervisor")
	flaggy.SetDescription("Supervises a fleet of declaratively-configured game servers")
	flaggy.String(&socketPath, "s", "socket", "Podman API socket path")
	flaggy.Bool(&debugFlag, "d", "debug", "enable debug logging")
	flaggy.AddPositionalValue(&configPath, "config-path", 1, true, "path to the TOML config file")
	flaggy.SetVersion(version)
	flaggy.Parse()

	log := supervisorlog.New(filepath.Dir(configPath), debugFlag, supervisorlog.BuildInfo{Version: version, Commit: commit})

	eng, err := engine.Connect(context.Background(), socketPath)
	if err != nil {
		fatal(log, err)
	}

	clu := cluster.New(log, server.NewFileLogCopier())
	sup := supervisor.New(configPath, clu, eng, log)

	sh := shell.New(os.Stdin, os.Stdout, version)
	go sh.Run()

	if err := sup.Run(context.Background(), sh.Commands); err != nil {
		fatal(log, err)
	}
}

func fatal(log *logrus.Entry, err error) {
	wrapped := errors.Wrap(err, 0)
	log.Error(wrapped.ErrorStack())
	os.Exit(1)
}

func updateBuildInfo() {
	if version != defaultVersion {
		return
	}
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if revision, ok := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.revision"
	}); ok {
		commit = revision.Value
		if len(revision.Value) > 7 {
			version = revision.Value[:7]
		} else {
			version = revision.Value
		}
	}
}
