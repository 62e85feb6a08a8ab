package main

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

// hostEnv carries process settings that are not game rules.
type hostEnv struct {
	IndexBackend    string `env:"CORE_INDEX_BACKEND" envDefault:"sqlite"`
	EnableAdminHTTP *bool  `env:"CORE_ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP bool   `env:"CORE_ENABLE_PPROF_HTTP"`
	DeployEnv       string `env:"DEPLOY_ENV"`
}

func loadHostEnv() (hostEnv, error) {
	var h hostEnv
	if err := env.Parse(&h); err != nil {
		return h, err
	}
	return h, nil
}

// adminHTTPEnabled defaults to on outside staging and production.
func (h hostEnv) adminHTTPEnabled() bool {
	if h.EnableAdminHTTP != nil {
		return *h.EnableAdminHTTP
	}
	switch strings.ToLower(strings.TrimSpace(h.DeployEnv)) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
