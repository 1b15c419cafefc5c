// Package config defines the docmesh-server configuration.
//
// The YAML layout mirrors ServerConfig:
//
//	node:
//	  id: node-a
//	  role: follower
//	cluster:
//	  addr: 0.0.0.0:7400
//	  peers:
//	    - id: node-b
//	      url: http://10.0.0.2:7400
//	storage:
//	  data_dir: /var/lib/docmesh
//	replication:
//	  interval: 1s
//	metrics:
//	  addr: 127.0.0.1:9400
//	log:
//	  level: info
package config
