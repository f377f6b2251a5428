// Package config provides configuration management for the gateway and the
// model worker.
//
// Configuration is loaded from environment variables and validated on startup.
// All configuration options have sensible defaults for development. The
// gateway can additionally read its worker pool from a YAML file when
// endpoints need their own credentials.
//
// Example usage:
//
//	cfg, err := config.LoadGateway()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg)
//
//	specs, err := cfg.PoolSpecs()
//
// Pool file format:
//
//	credential: shared-secret
//	workers:
//	  - address: worker-a:7002
//	  - address: worker-b:7002
//	    credential: other-secret
package config
