// Package config loads runtime settings from the environment and an optional
// .env file. Every variable is prefixed AGENTCTX_ except OPENAI_API_KEY.
package config
