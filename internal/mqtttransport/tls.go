// Copyright 2021 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package mqtttransport

import (
	"crypto/tls"
	"crypto/x509"
	"strconv"
)

func portString(port int) string {
	return strconv.Itoa(port)
}

// buildTLSConfig turns the parsed certificate material of cfg into a
// *tls.Config, or nil if no TLS material was supplied.
func buildTLSConfig(cfg *TLSConfig, allowUntrusted bool) *tls.Config {
	if cfg == nil {
		return nil
	}

	tlsCfg := &tls.Config{
		InsecureSkipVerify: allowUntrusted,
	}

	if len(cfg.CACerts) > 0 {
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(cfg.CACerts)
		tlsCfg.RootCAs = pool
	}

	if len(cfg.CertFile) > 0 && len(cfg.KeyFile) > 0 {
		cert, err := tls.X509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err == nil {
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsCfg
}
