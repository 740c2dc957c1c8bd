// Package security provides authenticated symmetric encryption for secrets
// at rest (database passwords, SMTP credentials). A single AES-256-GCM key
// is generated on first use and persisted base64-encoded in the config file.
package security
