// Package config handles configuration loading for the messaging server.
//
// Configuration is loaded from YAML with ${VAR} environment variable
// expansion and time.ParseDuration syntax for duration fields:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  read_timeout: "10s"
//	  write_timeout: "30s"
//
//	auth:
//	  jwt_secret: "${MESSAGING_JWT_SECRET}"
//
//	identity:
//	  roster_path: "/etc/messaging/roster.toml"
//
//	typing:
//	  ttl: "7s"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
