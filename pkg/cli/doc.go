// Package cli implements the bitte command-line interface.
//
// # Overview
//
// bitte inspects a running cluster by correlating three inventories: the
// declared state (Terraform Cloud or Vault), the cloud provider (AWS) and the
// orchestrator (Nomad). The correlated snapshot is cached in .cache.json for
// five minutes.
//
// # Commands
//
// info - Show the nodes of the cluster:
//
//	bitte info [--refresh] [--format json|yaml|table] [--output FILE]
//
// find - Resolve needles (name, instance id, Nomad client id, address) to nodes:
//
//	bitte find NEEDLE... [--one]
//
// allocs - List the Nomad allocations placed on one node:
//
//	bitte allocs NEEDLE
//
// instances - Resolve needles against declared instances and autoscaling groups:
//
//	bitte instances NEEDLE... [--match substring|fields]
//
// # Global Flags
//
//	--cluster      Cluster name (BITTE_CLUSTER)
//	--domain       Cluster domain (BITTE_DOMAIN)
//	--provider     Cloud provider (BITTE_PROVIDER)
//	--cache        Snapshot cache file (BITTE_CACHE, default .cache.json)
//	--log-level    debug, info, warn or error (LOG_LEVEL)
//	--state-backend  tfc or vault (BITTE_STATE_BACKEND, default tfc)
//	--metrics-textfile  write Prometheus metrics to FILE on exit
//
// # Environment
//
// AWS_ASG_REGIONS and AWS_DEFAULT_REGION select the regions to list,
// TERRAFORM_ORGANIZATION the Terraform Cloud organization. NOMAD_TOKEN is
// used when set; otherwise a token is issued by Vault (VAULT_ADDR, VAULT_TOKEN).
//
// # Output Formats
//
// Table (default) for terminals, JSON and YAML for scripts.
package cli
