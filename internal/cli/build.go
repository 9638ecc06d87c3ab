package cli

import (
	"net/http"

	"github.com/p4th0r/sitefence/internal/config"
	"github.com/p4th0r/sitefence/internal/engine"
	"github.com/p4th0r/sitefence/internal/firewall"
	"github.com/p4th0r/sitefence/internal/logging"
	"github.com/p4th0r/sitefence/internal/privileged"
	"github.com/p4th0r/sitefence/internal/resolver"
)

func newEngine(cfg *config.Config, logger *logging.StderrLogger) (*engine.Engine, error) {
	backend, err := firewall.New(cfg.Backend, cfg.PFAnchor)
	if err != nil {
		return nil, err
	}

	var runner privileged.Runner
	if cfg.DryRun {
		runner = &privileged.DryRunner{}
	} else if runner, err = privileged.NewRunner(cfg.Transport); err != nil {
		return nil, err
	}

	res, err := newResolver(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("Backend: %s, transport: %s", backend.Name(), runner.Name())
	return &engine.Engine{
		Paths: engine.Paths{
			Hosts:   cfg.HostsPath,
			Anchor:  cfg.AnchorPath,
			TempDir: cfg.TempDir,
		},
		Resolver: res,
		Backend:  backend,
		Runner:   runner,
		Policy:   cfg.Policy(),
		Timeout:  cfg.PrivilegedTimeout,
		DryRun:   cfg.DryRun,
		Logger:   logger,
	}, nil
}

func newResolver(cfg *config.Config, logger *logging.StderrLogger) (*resolver.Resolver, error) {
	rc := cfg.Resolver
	edges := resolver.NewEdgeMatcher(rc.EdgeSuffixes)

	var channels []resolver.Channel
	if !rc.DisableSystem {
		channels = append(channels, &resolver.SystemChannel{Timeout: rc.Timeout})
	}
	if !rc.DisableIterative {
		servers, err := rc.NameserverAddrs()
		switch {
		case err != nil && len(channels) == 0 && rc.DisableDoH:
			return nil, err
		case err != nil:
			logger.Warn("Iterative channel disabled: %v", err)
		default:
			channels = append(channels, &resolver.IterativeChannel{
				Servers:            servers,
				Timeout:            rc.Timeout,
				Attempts:           rc.IterativeAttempts,
				AggressiveAttempts: rc.AggressiveIterativeAttempts,
				MaxAliases:         rc.MaxAliases,
				Edges:              edges,
			})
		}
	}
	if !rc.DisableDoH {
		channels = append(channels, &resolver.DoHChannel{
			Endpoints:          rc.DoHEndpoints,
			Client:             &http.Client{},
			Timeout:            rc.Timeout,
			Attempts:           rc.DoHAttempts,
			AggressiveAttempts: rc.AggressiveDoHAttempts,
			ClientSubnets:      rc.ClientSubnets,
			Edges:              edges,
		})
	}

	return resolver.New(resolver.Config{
		Channels:    channels,
		Edges:       edges,
		Concurrency: rc.Concurrency,
		Logger:      logger,
	}), nil
}
