// Package confloader loads layered configuration with koanf.
//
// Sources are applied in order, later ones overriding earlier ones:
//
//  1. defaults (WithDefaults)
//  2. a YAML file (WithConfigFile)
//  3. environment variables with the DOCMESH_ prefix
//
// Environment keys nest with a double underscore, so
// DOCMESH_REPLICATION__BATCH_SIZE sets replication.batch_size.
//
// Watcher reports changes of a loaded file so that reloadable settings,
// such as the log level, can be applied without a restart.
package confloader
