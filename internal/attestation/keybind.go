package attestation

import (
	"bytes"
	"errors"
)

const uncompressedECPointForm = 0x04

// BindKey asserts that pubKey, in uncompressed SEC1 form, equals the
// enclave report's ReportData. Per RFC 5480 §2.2 only the uncompressed
// form (leading octet 0x04) is accepted: a compressed point cannot be
// directly compared against the 64-byte ReportData.
func BindKey(pubKey []byte, report SgxEnclaveReport) error {
	if len(pubKey) != 65 {
		return reportErr("KeyBinder.BindKey", errors.New("public key is not a 65-byte SEC1 point"))
	}
	if pubKey[0] != uncompressedECPointForm {
		return reportErr("KeyBinder.BindKey", errors.New("public key is not in uncompressed SEC1 form"))
	}
	if !bytes.Equal(pubKey[1:], report.ReportData[:]) {
		return reportErr("KeyBinder.BindKey", errors.New("public key does not match report_data"))
	}
	return nil
}
