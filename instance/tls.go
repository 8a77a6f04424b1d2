package instance

import "crypto/tls"

// TLSConfigFor derives the raw *tls.Config a Channel or Listener needs
// from the Instance's certificates.TLSConfig builder, for the given SNI
// server name (empty for a server-side listener that serves one identity).
func (i *Instance) TLSConfigFor(serverName string) *tls.Config {
	if i.TLS == nil {
		return nil
	}
	return i.TLS.TlsConfig(serverName)
}
