package attestation

import (
	"encoding/asn1"
	"errors"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// raCertExtensionOID is the object identifier the RA-TLS convention
// (Teaclave / Gramine's sgx-ra-tls) uses for the extension carrying the
// JSON-encoded EndorsedAttestationReport.
var raCertExtensionOID = asn1.ObjectIdentifier{1, 2, 840, 113741, 1337, 6}

var (
	tagContext0Constructed = cbasn1.Tag(0).Constructed().ContextSpecific() // TBSCertificate.version
	tagContext1            = cbasn1.Tag(1).ContextSpecific()               // TBSCertificate.issuerUniqueID
	tagContext2            = cbasn1.Tag(2).ContextSpecific()               // TBSCertificate.subjectUniqueID
	tagContext3Constructed = cbasn1.Tag(3).Constructed().ContextSpecific() // TBSCertificate.extensions
)

// ExtractedCert is the result of walking a DER certificate: the raw
// SubjectPublicKeyInfo key bits and the payload of the custom RA-TLS
// extension.
type ExtractedCert struct {
	PublicKey      []byte
	EndorsedReport []byte
}

// Extract walks a DER-encoded X.509 certificate down to
// SubjectPublicKeyInfo and the custom RA-TLS extension, following the
// standard TBSCertificate layout (RFC 5280 §4.1). The outer TLS stack is
// assumed to have already verified the certificate is well-formed and
// self-signed; this walk only needs to fail cleanly, never panic, on
// malformed input.
func Extract(certDER []byte) (ExtractedCert, error) {
	input := cryptobyte.String(certDER)

	var certSeq cryptobyte.String
	if !input.ReadASN1(&certSeq, cbasn1.SEQUENCE) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("not a DER SEQUENCE"))
	}

	var tbs cryptobyte.String
	if !certSeq.ReadASN1(&tbs, cbasn1.SEQUENCE) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("missing TBSCertificate"))
	}

	// version [0] EXPLICIT, OPTIONAL
	var present bool
	var versionBody cryptobyte.String
	if !tbs.ReadOptionalASN1(&versionBody, &present, tagContext0Constructed) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("malformed version"))
	}

	// serialNumber INTEGER
	if !tbs.SkipASN1(cbasn1.INTEGER) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("malformed serialNumber"))
	}
	// signature AlgorithmIdentifier SEQUENCE
	if !tbs.SkipASN1(cbasn1.SEQUENCE) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("malformed signature algorithm"))
	}
	// issuer Name SEQUENCE
	if !tbs.SkipASN1(cbasn1.SEQUENCE) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("malformed issuer"))
	}
	// validity SEQUENCE
	if !tbs.SkipASN1(cbasn1.SEQUENCE) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("malformed validity"))
	}
	// subject Name SEQUENCE
	if !tbs.SkipASN1(cbasn1.SEQUENCE) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("malformed subject"))
	}

	// subjectPublicKeyInfo SEQUENCE { algorithm, subjectPublicKey BIT STRING }
	var spki cryptobyte.String
	if !tbs.ReadASN1(&spki, cbasn1.SEQUENCE) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("missing SubjectPublicKeyInfo"))
	}
	if !spki.SkipASN1(cbasn1.SEQUENCE) { // algorithm AlgorithmIdentifier
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("malformed SPKI algorithm"))
	}
	var pubKeyBitString asn1.BitString
	if !spki.ReadASN1BitString(&pubKeyBitString) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("malformed subjectPublicKey"))
	}

	// issuerUniqueID [1] IMPLICIT OPTIONAL, subjectUniqueID [2] IMPLICIT OPTIONAL
	if !tbs.SkipOptionalASN1(tagContext1) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("malformed issuerUniqueID"))
	}
	if !tbs.SkipOptionalASN1(tagContext2) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("malformed subjectUniqueID"))
	}

	// extensions [3] EXPLICIT Extensions OPTIONAL
	var extsPresent bool
	var extsOuter cryptobyte.String
	if !tbs.ReadOptionalASN1(&extsOuter, &extsPresent, tagContext3Constructed) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("malformed extensions wrapper"))
	}
	if !extsPresent {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("certificate carries no extensions"))
	}

	var extsSeq cryptobyte.String
	if !extsOuter.ReadASN1(&extsSeq, cbasn1.SEQUENCE) {
		return ExtractedCert{}, certParseErr("CertExtractor.Extract", errors.New("malformed extensions sequence"))
	}

	payload, err := findRAExtension(extsSeq)
	if err != nil {
		return ExtractedCert{}, err
	}

	return ExtractedCert{
		PublicKey:      pubKeyBitString.Bytes,
		EndorsedReport: payload,
	}, nil
}

// findRAExtension walks the Extensions SEQUENCE OF Extension and returns
// the payload of the RA-TLS extension. It prefers a match on the
// well-known OID and falls back to the last non-standard extension in the
// sequence, matching the positional descent a DER-structure-only
// implementation would use.
func findRAExtension(extsSeq cryptobyte.String) ([]byte, error) {
	var lastPayload []byte
	found := false

	for !extsSeq.Empty() {
		var ext cryptobyte.String
		if !extsSeq.ReadASN1(&ext, cbasn1.SEQUENCE) {
			return nil, certParseErr("CertExtractor.Extract", errors.New("malformed extension"))
		}

		var oid asn1.ObjectIdentifier
		if !ext.ReadASN1ObjectIdentifier(&oid) {
			return nil, certParseErr("CertExtractor.Extract", errors.New("malformed extension OID"))
		}

		// critical BOOLEAN DEFAULT FALSE
		var critical bool
		if !ext.ReadOptionalASN1Boolean(&critical, false) {
			return nil, certParseErr("CertExtractor.Extract", errors.New("malformed extension critical flag"))
		}

		var value []byte
		if !ext.ReadASN1Bytes(&value, cbasn1.OCTET_STRING) {
			return nil, certParseErr("CertExtractor.Extract", errors.New("malformed extension value"))
		}

		if oid.Equal(raCertExtensionOID) {
			return value, nil
		}
		// Standard X.509 extensions (id-ce arc 2.5.29) never carry the report.
		if len(oid) >= 3 && oid[0] == 2 && oid[1] == 5 && oid[2] == 29 {
			continue
		}

		lastPayload = value
		found = true
	}

	if !found {
		return nil, certParseErr("CertExtractor.Extract", errors.New("no RA-TLS extension found"))
	}
	return lastPayload, nil
}
