// Package config loads runtime configuration for the SessionKeeper client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment variables prefixed with SESSIONKEEPER_, e.g.
//     SESSIONKEEPER_ANON_KEY. A .env file in the working directory is read
//     first; it never overrides variables that are already set.
//  3. Optional JSON file selected via -c or -config.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   identity provider URL
//	-k string   identity provider anon key
//	-s string   application server URL
//	-d string   data directory
//	-i int      online status check interval (seconds)
//	-l string   log level
//	-t string   OTLP/HTTP traces endpoint
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds:
//
//	{
//	  "provider_url": "https://project.supabase.co",
//	  "anon_key": "...",
//	  "app_url": "https://app.example.com",
//	  "online_check_interval": "3s",
//	  "signin_pre_delay": "500ms",
//	  "retry_max_retries": 2,
//	  "retry_base_delay": "1s",
//	  "default_cooldown": "30s",
//	  "health_visibility_debounce": "2s",
//	  "health_check_throttle": "30s"
//	}
package config
