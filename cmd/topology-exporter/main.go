// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

// topology-exporter periodically rebuilds the hardware topology and
// exposes the discovery results as Prometheus metrics.
package main

import (
	"flag"
	"net/http"
	"time"

	"gopkg.in/ini.v1"

	"github.com/dora-zhang/hwloc/pkg/backends"
	"github.com/dora-zhang/hwloc/pkg/common/utils"
	"github.com/dora-zhang/hwloc/pkg/telemetry"
	"github.com/dora-zhang/hwloc/pkg/topology"
)

var (
	iniPath       = flag.String("ini", "", "path to the exporter INI config")
	addressFlag   = flag.String("address", "", "listen address, overrides the INI value")
	intervalFlag  = flag.Duration("interval", 0, "rediscovery interval, overrides the INI value")
	discoveryPath = flag.String("config", "", "path to a JSON discovery config, overrides the INI value")

	log = utils.NewLogger()
)

type exporterConfig struct {
	Address         string
	Interval        time.Duration
	DiscoveryConfig string
}

func loadExporterConfig(path string) (exporterConfig, error) {
	cfg := exporterConfig{
		Address:  ":42223",
		Interval: time.Minute,
	}
	if path == "" {
		return cfg, nil
	}
	file, err := ini.Load(path)
	if err != nil {
		return cfg, err
	}
	section := file.Section("exporter")
	if v := section.Key("address").String(); v != "" {
		cfg.Address = v
	}
	cfg.Interval = section.Key("interval").MustDuration(cfg.Interval)
	if v := section.Key("discovery_config").String(); v != "" {
		cfg.DiscoveryConfig = v
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	cfg, err := loadExporterConfig(*iniPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load exporter config")
	}
	if *addressFlag != "" {
		cfg.Address = *addressFlag
	}
	if *intervalFlag != 0 {
		cfg.Interval = *intervalFlag
	}
	if *discoveryPath != "" {
		cfg.DiscoveryConfig = *discoveryPath
	}

	var discoveryConfig utils.DiscoveryConfig
	if cfg.DiscoveryConfig != "" {
		if discoveryConfig, err = utils.LoadDiscoveryConfig(cfg.DiscoveryConfig); err != nil {
			log.WithError(err).Fatal("failed to load discovery config")
		}
	}

	registry, err := backends.DefaultRegistry(log)
	if err != nil {
		log.WithError(err).Fatal("failed to build discovery registry")
	}

	gatherer := telemetry.NewGatherer()
	handler, err := gatherer.Handler()
	if err != nil {
		log.WithError(err).Fatal("cannot register telemetry handler")
	}

	rebuild := func() {
		start := time.Now()
		topo := topology.New()
		registry.Run(topo, discoveryConfig)
		gatherer.ObserveTopology(topo, time.Since(start))
	}
	rebuild()

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		for range ticker.C {
			rebuild()
		}
	}()

	http.Handle("/metrics", handler)
	log.WithField("address", cfg.Address).Info("serving topology metrics")
	if err := http.ListenAndServe(cfg.Address, nil); err != nil {
		log.WithError(err).Fatal("exporter server failed")
	}
}
