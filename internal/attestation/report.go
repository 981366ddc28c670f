package attestation

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"
)

// timestampLayout is the Go reference-time equivalent of the chrono
// format "%Y-%m-%dT%H:%M:%S%.f" used by IAS timestamps, with the literal
// "+0000" suffix the reference implementation appends before parsing.
const timestampLayout = "2006-01-02T15:04:05.999999999-0700"

// ValidatedReport is the outcome of ReportValidator: the IAS quote status,
// the raw (still-encoded) quote body ready for QuoteCodec, and the report's
// freshness relative to now.
type ValidatedReport struct {
	Status    SgxQuoteStatus
	QuoteRaw  []byte
	Freshness time.Duration
}

// acceptable chain signature algorithms, mirroring the reference
// implementation's SUPPORTED_SIG_ALGS webpki list (ECDSA P-256/P-384 with
// SHA-256/SHA-384; RSA-PSS and RSA-PKCS1 2048-8192 with SHA-256/384/512).
var acceptableChainAlgorithms = map[x509.SignatureAlgorithm]bool{
	x509.ECDSAWithSHA256:       true,
	x509.ECDSAWithSHA384:       true,
	x509.SHA256WithRSAPSS:      true,
	x509.SHA384WithRSAPSS:      true,
	x509.SHA512WithRSAPSS:      true,
	x509.SHA256WithRSA:         true,
	x509.SHA384WithRSA:         true,
	x509.SHA512WithRSA:         true,
}

// ValidateReport parses endorsedReportBytes as an EndorsedAttestationReport,
// verifies the attestation service's signing certificate against rootCADER,
// verifies the RSA-PKCS1-SHA256 signature over the report, and extracts the
// quote status, raw quote body, and freshness.
func ValidateReport(endorsedReportBytes, rootCADER []byte, now time.Time) (ValidatedReport, error) {
	var endorsed EndorsedAttestationReport
	if err := json.Unmarshal(endorsedReportBytes, &endorsed); err != nil {
		return ValidatedReport{}, reportErr("ReportValidator.ValidateReport", fmt.Errorf("decode endorsed report: %w", err))
	}
	if len(endorsed.Report) == 0 || len(endorsed.Signature) == 0 || len(endorsed.SigningCert) == 0 {
		return ValidatedReport{}, reportErr("ReportValidator.ValidateReport", errors.New("endorsed report missing required fields"))
	}

	signingCert, err := x509.ParseCertificate(endorsed.SigningCert)
	if err != nil {
		return ValidatedReport{}, webpkiErr("ReportValidator.ValidateReport", fmt.Errorf("parse signing certificate: %w", err))
	}

	rootCert, err := x509.ParseCertificate(rootCADER)
	if err != nil {
		return ValidatedReport{}, webpkiErr("ReportValidator.ValidateReport", fmt.Errorf("parse root CA: %w", err))
	}
	roots := x509.NewCertPool()
	roots.AddCert(rootCert)

	chains, err := signingCert.Verify(x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: now,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	if err != nil {
		return ValidatedReport{}, webpkiErr("ReportValidator.ValidateReport", fmt.Errorf("verify chain: %w", err))
	}
	if len(chains) == 0 {
		return ValidatedReport{}, webpkiErr("ReportValidator.ValidateReport", errors.New("no trusted chain found"))
	}
	if err := checkChainAlgorithms(chains); err != nil {
		return ValidatedReport{}, err
	}

	if err := verifyPayloadSignature(signingCert, endorsed.Report, endorsed.Signature); err != nil {
		return ValidatedReport{}, err
	}

	status, quoteRaw, err := extractReportFields(endorsed.Report)
	if err != nil {
		return ValidatedReport{}, err
	}

	freshness, err := computeFreshness(endorsed.Report, now)
	if err != nil {
		return ValidatedReport{}, err
	}

	return ValidatedReport{Status: status, QuoteRaw: quoteRaw, Freshness: freshness}, nil
}

func checkChainAlgorithms(chains [][]*x509.Certificate) error {
	for _, chain := range chains {
		for _, cert := range chain {
			if !acceptableChainAlgorithms[cert.SignatureAlgorithm] {
				return webpkiErr("ReportValidator.ValidateReport", fmt.Errorf("signature algorithm %s is not accepted", cert.SignatureAlgorithm))
			}
			if rsaKey, ok := cert.PublicKey.(*rsa.PublicKey); ok {
				bits := rsaKey.N.BitLen()
				if bits < 2048 || bits > 8192 {
					return webpkiErr("ReportValidator.ValidateReport", fmt.Errorf("RSA key size %d bits outside accepted range", bits))
				}
			}
		}
	}
	return nil
}

func verifyPayloadSignature(signingCert *x509.Certificate, report, signature []byte) error {
	rsaKey, ok := signingCert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return webpkiErr("ReportValidator.ValidateReport", errors.New("signing certificate key is not RSA"))
	}
	digest := sha256.Sum256(report)
	if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, digest[:], signature); err != nil {
		return webpkiErr("ReportValidator.ValidateReport", fmt.Errorf("verify report signature: %w", err))
	}
	return nil
}

func extractReportFields(report []byte) (SgxQuoteStatus, []byte, error) {
	if !gjson.ValidBytes(report) {
		return "", nil, reportErr("ReportValidator.ValidateReport", errors.New("report is not valid JSON"))
	}

	statusField := gjson.GetBytes(report, "isvEnclaveQuoteStatus")
	if !statusField.Exists() || statusField.Type != gjson.String {
		return "", nil, reportErr("ReportValidator.ValidateReport", errors.New("missing isvEnclaveQuoteStatus"))
	}

	quoteField := gjson.GetBytes(report, "isvEnclaveQuoteBody")
	if !quoteField.Exists() || quoteField.Type != gjson.String {
		return "", nil, reportErr("ReportValidator.ValidateReport", errors.New("missing isvEnclaveQuoteBody"))
	}
	quoteRaw, err := base64.StdEncoding.DecodeString(quoteField.String())
	if err != nil {
		return "", nil, reportErr("ReportValidator.ValidateReport", fmt.Errorf("decode isvEnclaveQuoteBody: %w", err))
	}
	if len(quoteRaw) != quoteSize {
		return "", nil, reportErr("ReportValidator.ValidateReport", fmt.Errorf("quote body is %d bytes, want %d", len(quoteRaw), quoteSize))
	}

	return MapStatus(statusField.String()), quoteRaw, nil
}

func computeFreshness(report []byte, now time.Time) (time.Duration, error) {
	timestampField := gjson.GetBytes(report, "timestamp")
	if !timestampField.Exists() || timestampField.Type != gjson.String {
		return 0, reportErr("ReportValidator.ValidateReport", errors.New("missing timestamp"))
	}

	ts, err := time.Parse(timestampLayout, timestampField.String()+"+0000")
	if err != nil {
		return 0, reportErr("ReportValidator.ValidateReport", fmt.Errorf("parse timestamp: %w", err))
	}

	delta := now.UTC().Sub(ts.UTC())
	if delta < 0 {
		return 0, reportErr("ReportValidator.ValidateReport", errors.New("report timestamp is in the future"))
	}
	// Round any sub-second remainder up to the next whole second: a report
	// 9.3 seconds old has a freshness of 10 seconds.
	wholeSeconds := time.Duration(math.Ceil(delta.Seconds()))
	return wholeSeconds * time.Second, nil
}
