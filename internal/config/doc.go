// Package config handles configuration loading for persona-bot.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Files ending in .toml are decoded as TOML; anything else is YAML.
// Load applies defaults and validates the result, so a returned *Config is
// ready to use.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PERSONA_BOT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/persona-bot/config.yaml
//  3. ~/.config/persona-bot/config.yaml
//
// A .env file in the working directory is loaded before the config is read,
// so secrets can live there.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	ai:
//	  api_key: "${OPENAI_API_KEY}"
//
// Unset variables expand to an empty string.
//
// # Configuration Sections
//
//	matrix:
//	  homeserver: "https://matrix.org"
//	  user_id: "@persona:matrix.org"
//	  access_token: "${MATRIX_TOKEN}"  # or username + password
//	  recovery_key: ""                 # enables E2EE
//	  allowed_rooms: []
//	  typing_indicator: true
//
//	ai:
//	  api_key: "${OPENAI_API_KEY}"
//	  base_url: ""                     # OpenAI-compatible endpoint
//	  model: "gpt-4o"
//	  vision_model: "gpt-4o"
//	  image_model: "dall-e-3"
//	  image_size: "1024x1024"
//	  request_timeout: "2m"
//	  mock: false
//
//	database:
//	  path: "~/.local/share/persona-bot/persona.db"
//
//	media:
//	  dir: ""                          # default: <database dir>/media
//
//	chat:
//	  history_turns: 0
//
//	server:
//	  http_addr: ""                    # health endpoints, disabled when empty
//
//	logging:
//	  level: "info"                    # debug, info, warn, error
//	  format: "text"                   # text, json
//
// # Validation
//
// Missing required settings are fatal at startup:
//
//   - matrix.homeserver (http or https URL) and matrix.user_id
//   - matrix.access_token, or matrix.username with matrix.password
//   - ai.api_key, unless ai.mock is set
//   - database.path
package config
