// Package config handles configuration loading for agentchat.
//
// # Configuration File
//
// Location (first match wins):
//
//  1. --config flag
//  2. AGENTCHAT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/agentchat/config.yaml (~/.config when unset)
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
//
// # Environment Variables
//
// A .env file in the working directory is loaded before the config file is
// read. Values can then reference the environment:
//
//	agent:
//	  token: "${AGENTCHAT_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Durations
//
// agent.timeout uses time.ParseDuration syntax ("60s", "2m").
//
// # Example
//
//	agent:
//	  base_url: "https://myaccount.snowflakecomputing.com"
//	  token: "${AGENTCHAT_TOKEN}"
//	  model: "claude-3-5-sonnet"
//	  timeout: "60s"
//	  tools:
//	    semantic_model_file: "@DB.PUBLIC.stage/model.yaml"
//	    search_service: "DB.PUBLIC.SERVICE_MANUAL"
//	    max_results: 10
//	database:
//	  driver: sqlite
//	  path: ./agentchat.db
//	identity:
//	  source: os
package config
