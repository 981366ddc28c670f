package attestation

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// issuedChain is a minimal self-signed root plus an RSA end-entity signing
// certificate issued by it, the shape ValidateReport expects for the
// attestation service's report-signing chain.
type issuedChain struct {
	rootDER    []byte
	signingKey *rsa.PrivateKey
	signingDER []byte
}

func buildIssuedChain(t *testing.T, notBefore, notAfter time.Time) issuedChain {
	t.Helper()

	rootKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Attestation Report Signing CA"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	require.NoError(t, err)
	rootCert, err := x509.ParseCertificate(rootDER)
	require.NoError(t, err)

	signingKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signingTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Attestation Report Signing"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	signingDER, err := x509.CreateCertificate(rand.Reader, signingTmpl, rootCert, &signingKey.PublicKey, rootKey)
	require.NoError(t, err)

	return issuedChain{rootDER: rootDER, signingKey: signingKey, signingDER: signingDER}
}

func signedEndorsedReport(t *testing.T, chain issuedChain, report []byte) []byte {
	t.Helper()

	digest := sha256.Sum256(report)
	sig, err := rsa.SignPKCS1v15(rand.Reader, chain.signingKey, crypto.SHA256, digest[:])
	require.NoError(t, err)

	endorsed := EndorsedAttestationReport{
		Report:      report,
		Signature:   sig,
		SigningCert: chain.signingDER,
	}
	out, err := json.Marshal(endorsed)
	require.NoError(t, err)
	return out
}

func reportJSON(status, timestamp string, quote []byte) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"165171271757108173876306223827995513783","timestamp":%q,"isvEnclaveQuoteStatus":%q,"isvEnclaveQuoteBody":%q}`,
		timestamp, status, base64.StdEncoding.EncodeToString(quote),
	))
}

func TestValidateReport_Success(t *testing.T) {
	notBefore := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	chain := buildIssuedChain(t, notBefore, notAfter)

	quote := make([]byte, quoteSize)
	report := reportJSON("GROUP_OUT_OF_DATE", "2020-02-11T22:25:59.682915", quote)
	endorsed := signedEndorsedReport(t, chain, report)

	now := time.Date(2020, 2, 11, 22, 26, 9, 0, time.UTC)
	validated, err := ValidateReport(endorsed, chain.rootDER, now)
	require.NoError(t, err)

	require.Equal(t, StatusTcbOutOfDate, validated.Status)
	require.Equal(t, quote, validated.QuoteRaw)
	require.Equal(t, 10*time.Second, validated.Freshness)
}

func TestValidateReport_RejectsFutureTimestamp(t *testing.T) {
	notBefore := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	chain := buildIssuedChain(t, notBefore, notAfter)

	quote := make([]byte, quoteSize)
	report := reportJSON("OK", "2020-02-11T22:26:20.000000", quote)
	endorsed := signedEndorsedReport(t, chain, report)

	now := time.Date(2020, 2, 11, 22, 26, 9, 0, time.UTC)
	_, err := ValidateReport(endorsed, chain.rootDER, now)
	requireVerificationError(t, err, CodeReport)
}

func TestValidateReport_RejectsUntrustedRoot(t *testing.T) {
	notBefore := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	chain := buildIssuedChain(t, notBefore, notAfter)
	otherChain := buildIssuedChain(t, notBefore, notAfter)

	quote := make([]byte, quoteSize)
	report := reportJSON("OK", "2020-02-11T22:25:59.682915", quote)
	endorsed := signedEndorsedReport(t, chain, report)

	now := time.Date(2020, 2, 11, 22, 26, 9, 0, time.UTC)
	_, err := ValidateReport(endorsed, otherChain.rootDER, now)
	requireVerificationError(t, err, CodeWebpki)
}

func TestValidateReport_RejectsTamperedSignature(t *testing.T) {
	notBefore := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	chain := buildIssuedChain(t, notBefore, notAfter)

	quote := make([]byte, quoteSize)
	report := reportJSON("OK", "2020-02-11T22:25:59.682915", quote)
	endorsed := signedEndorsedReport(t, chain, report)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(endorsed, &decoded))
	decoded["report"] = base64.StdEncoding.EncodeToString(append(report, 0x01))
	tampered, err := json.Marshal(decoded)
	require.NoError(t, err)

	now := time.Date(2020, 2, 11, 22, 26, 9, 0, time.UTC)
	_, err = ValidateReport(tampered, chain.rootDER, now)
	requireVerificationError(t, err, CodeWebpki)
}

// TestValidateReport_RejectsDisallowedSignatureAlgorithm covers a chain that
// Go's generic Certificate.Verify accepts structurally (a well-formed,
// unexpired, correctly-signed chain) but whose signature algorithm is
// outside spec.md §4.3's accepted webpki-equivalent list. PureEd25519 is
// accepted by crypto/x509 but is not one of the accepted algorithms here.
func TestValidateReport_RejectsDisallowedSignatureAlgorithm(t *testing.T) {
	notBefore := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	rootPub, rootPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Ed25519 Attestation Report Signing CA"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, rootPub, rootPriv)
	require.NoError(t, err)
	rootCert, err := x509.ParseCertificate(rootDER)
	require.NoError(t, err)

	signingKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signingTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Attestation Report Signing"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	// Signed by the Ed25519 root: the resulting certificate's signature
	// algorithm is PureEd25519 regardless of the leaf's own RSA key.
	signingDER, err := x509.CreateCertificate(rand.Reader, signingTmpl, rootCert, &signingKey.PublicKey, rootPriv)
	require.NoError(t, err)

	chain := issuedChain{rootDER: rootDER, signingKey: signingKey, signingDER: signingDER}

	quote := make([]byte, quoteSize)
	report := reportJSON("OK", "2020-02-11T22:25:59.682915", quote)
	endorsed := signedEndorsedReport(t, chain, report)

	now := time.Date(2020, 2, 11, 22, 26, 9, 0, time.UTC)
	_, err = ValidateReport(endorsed, chain.rootDER, now)
	requireVerificationError(t, err, CodeWebpki)
}

func TestValidateReport_RejectsExpiredChain(t *testing.T) {
	notBefore := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter := time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)
	chain := buildIssuedChain(t, notBefore, notAfter)

	quote := make([]byte, quoteSize)
	report := reportJSON("OK", "2020-02-11T22:25:59.682915", quote)
	endorsed := signedEndorsedReport(t, chain, report)

	now := time.Date(2020, 2, 11, 22, 26, 9, 0, time.UTC)
	_, err := ValidateReport(endorsed, chain.rootDER, now)
	requireVerificationError(t, err, CodeWebpki)
}
