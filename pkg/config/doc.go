/*
Package config owns the daemon's JSON configuration file.

The file has four sections: email (SMTP delivery), health_alerts (digest
cadence and threshold), data_cleanup (retention TTLs and batching), and
security (the base64 AES-256 key used for credentials at rest). Missing
sections get defaults, a key is generated on first run, and any plaintext
email password found in the file is encrypted in place on the next write.
Writes are atomic via rename.
*/
package config
