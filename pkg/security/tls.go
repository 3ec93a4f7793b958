package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// LocalBrokerTLSConfig builds the mTLS client config used for the local
// door-node broker: this process presents certFile/keyFile and trusts
// only caFile, since the local broker and every door node on it are
// provisioned from the same private CA.
func LocalBrokerTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load local broker client cert: %w", err)
	}

	pool, err := loadCAPool(caFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// RemoteBrokerTLSConfig builds the plain TLS config used to reach the
// origin's MQTT bus, which authenticates this edge by username/password
// rather than a client certificate.
func RemoteBrokerTLSConfig() *tls.Config {
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate %s: %w", caFile, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}

	return pool, nil
}
