// Package tlsutil holds the TLS and HTTP client settings shared by the image
// backends, the reference loader, the CLI download and the Redis client.
// Every connection negotiates TLS 1.2 or newer with AEAD suites only.
package tlsutil
