// Copyright 2023 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package certverify

import (
	"crypto/x509"
	"fmt"
)

// SystemVerifier validates certificate chains against the host's system
// root certificate pool (x509.SystemCertPool), which is the same Web PKI
// trust anchor a browser or TLS client on this host would use. There is no
// configuration surface for the trust anchor, matching spec.md §6.
//
// This middlebox has no third-party chain-validation dependency available
// to it (none of the reference examples this module was grounded on ship
// one); SystemVerifier therefore uses the standard library's crypto/x509
// directly, which is the idiomatic choice absent such a dependency.
type SystemVerifier struct {
	roots *x509.CertPool
}

var _ Verifier = (*SystemVerifier)(nil)

// NewSystemVerifier loads the host's system root certificate pool. It is
// relatively expensive and should be created once and reused.
func NewSystemVerifier() (*SystemVerifier, error) {
	roots, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("failed to load system root certificates: %w", err)
	}
	return &SystemVerifier{roots: roots}, nil
}

// Verify implements [Verifier].
func (v *SystemVerifier) Verify(leafDER []byte, intermediateDERs [][]byte, serverName string) error {
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		return fmt.Errorf("failed to parse leaf certificate: %w", err)
	}

	intermediates := x509.NewCertPool()
	for _, der := range intermediateDERs {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return fmt.Errorf("failed to parse intermediate certificate: %w", err)
		}
		intermediates.AddCert(cert)
	}

	_, err = leaf.Verify(x509.VerifyOptions{
		DNSName:       serverName,
		Roots:         v.roots,
		Intermediates: intermediates,
	})
	return err
}
