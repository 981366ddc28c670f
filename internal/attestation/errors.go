package attestation

import "fmt"

// Code classifies a VerificationError into one of the four closed kinds
// named by the verifier's contract. Every Verify failure carries exactly
// one Code so a caller can branch with Code() without parsing messages,
// mirroring the teacher's ErrorCode convention in infrastructure/errors.
type Code string

const (
	// CodeParse marks a malformed, truncated, or version-unrecognized
	// SGX quote / enclave report.
	CodeParse Code = "PARSE_1001"
	// CodeCertParse marks malformed X.509 DER or a missing expected
	// public-key / extension shape.
	CodeCertParse Code = "CERT_2001"
	// CodeReport marks a JSON, timestamp, freshness, or key-binding
	// failure in the endorsed attestation report.
	CodeReport Code = "REPORT_3001"
	// CodeWebpki marks a chain-validation or signature-verification
	// rejection from the cryptographic library.
	CodeWebpki Code = "WEBPKI_4001"
)

// VerificationError is the single error type returned by this package.
// Step names the component that failed (e.g. "QuoteCodec.ParseQuote")
// so a caller logging the error has enough context without secrets.
type VerificationError struct {
	code Code
	Step string
	err  error
}

// Error implements error.
func (e *VerificationError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.Step, e.err)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.Step)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *VerificationError) Unwrap() error {
	return e.err
}

// Code returns the error's closed-taxonomy classification.
func (e *VerificationError) Code() Code {
	return e.code
}

func newErr(code Code, step string, cause error) *VerificationError {
	return &VerificationError{code: code, Step: step, err: cause}
}

func parseErr(step string, cause error) error {
	return newErr(CodeParse, step, cause)
}

func certParseErr(step string, cause error) error {
	return newErr(CodeCertParse, step, cause)
}

func reportErr(step string, cause error) error {
	return newErr(CodeReport, step, cause)
}

func webpkiErr(step string, cause error) error {
	return newErr(CodeWebpki, step, cause)
}
