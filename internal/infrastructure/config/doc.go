// Package config loads and validates the Marstek Cloud Bridge configuration.
//
// Configuration is read from a YAML file, merged over built-in defaults,
// then overridden by environment variables for deployment secrets:
//
//	marstek:
//	  email: "user@example.com"       # or MARSTEK_EMAIL
//	  password: "secret"              # or MARSTEK_PASSWORD
//	  poll_interval: 60               # seconds, 10-3600
//	  default_capacity_kwh: 5.12
//	mqtt:
//	  enabled: true
//	  broker:
//	    host: "localhost"
//	    port: 1883
//	influxdb:
//	  enabled: false
//	api:
//	  port: 8080
//	logging:
//	  level: "info"
//	  format: "json"
//
// Validation runs on load; a config that fails validation never reaches
// the rest of the application.
package config
