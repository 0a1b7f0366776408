package huddle

import "crypto/tls"

// tlsConfig is used when a certificate and key are configured.
// https://github.com/ssllabs/research/wiki/ssl-and-tls-deployment-best-practices
func tlsConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP384,
			tls.CurveP256,
		},
	}
}
