// Package attestation verifies SGX remote-attestation certificates.
//
// Given a DER-encoded RA-TLS certificate and a trusted attestation-service
// root certificate, Verify decides whether the certificate was produced by
// a genuine enclave whose identity and ephemeral public key match the
// certificate, returning a summary of the enclave's measurement, identity,
// quote status, and report freshness.
package attestation

import (
	"time"

	"github.com/google/uuid"
)

// EpidQuoteSigType is the EPID signature type carried by quote versions 1 and 2.
type EpidQuoteSigType uint8

const (
	// EpidUnlinkable marks an unlinkable EPID signature.
	EpidUnlinkable EpidQuoteSigType = 0
	// EpidLinkable marks a linkable EPID signature.
	EpidLinkable EpidQuoteSigType = 1
)

func (t EpidQuoteSigType) String() string {
	switch t {
	case EpidUnlinkable:
		return "Unlinkable"
	case EpidLinkable:
		return "Linkable"
	default:
		return "Unknown"
	}
}

// EcdsaQuoteAkType is the ECDSA attestation-key type carried by quote version 3.
type EcdsaQuoteAkType uint8

const (
	// EcdsaP256256 is the P-256 attestation key type.
	EcdsaP256256 EcdsaQuoteAkType = 2
	// EcdsaP384384 is the P-384 attestation key type.
	EcdsaP384384 EcdsaQuoteAkType = 3
)

func (t EcdsaQuoteAkType) String() string {
	switch t {
	case EcdsaP256256:
		return "P256_256"
	case EcdsaP384384:
		return "P384_384"
	default:
		return "Unknown"
	}
}

// QuoteVariant discriminates the SgxQuoteVersion tagged union. Only the
// field matching Variant is populated; the other is zero. Keeping an
// explicit discriminator (rather than overloading a single numeric field
// across variants) mirrors the sum type in the reference implementation.
type QuoteVariant uint8

const (
	// QuoteV1 carries an EPID signature type.
	QuoteV1 QuoteVariant = 1
	// QuoteV2 carries an EPID signature type.
	QuoteV2 QuoteVariant = 2
	// QuoteV3 carries an ECDSA attestation-key type.
	QuoteV3 QuoteVariant = 3
)

// SgxQuoteVersion is the tagged version+signature-type pair at the head of
// an SGX quote.
type SgxQuoteVersion struct {
	Variant  QuoteVariant
	EpidType EpidQuoteSigType // valid when Variant is QuoteV1 or QuoteV2
	AkType   EcdsaQuoteAkType // valid when Variant is QuoteV3
}

// SgxEnclaveReport is the 384-byte hardware-signed enclave identity.
type SgxEnclaveReport struct {
	CPUSVN      [16]byte
	MiscSelect  uint32
	Attributes  [16]byte
	MrEnclave   [32]byte
	MrSigner    [32]byte
	IsvProdID   uint16
	IsvSVN      uint16
	ReportData  [64]byte
}

// SgxQuote is the 432-byte structure wrapping an SgxEnclaveReport with
// Quoting-Enclave metadata.
type SgxQuote struct {
	Version          SgxQuoteVersion
	GID              uint32
	IsvSVNQE         uint16
	IsvSVNPCE        uint16
	QEVendorID       uuid.UUID
	UserData         [20]byte
	IsvEnclaveReport SgxEnclaveReport
}

// SgxQuoteStatus is the closed enumeration of IAS quote-status results.
type SgxQuoteStatus string

const (
	StatusOK                                 SgxQuoteStatus = "OK"
	StatusAttestationKeyRevoked               SgxQuoteStatus = "ATTESTATION_KEY_REVOKED"
	StatusTcbOutOfDate                       SgxQuoteStatus = "TCB_OUT_OF_DATE"
	StatusConfigurationNeeded                 SgxQuoteStatus = "CONFIGURATION_NEEDED"
	StatusTcbOutOfDateAndConfigurationNeeded  SgxQuoteStatus = "TCB_OUT_OF_DATE_AND_CONFIGURATION_NEEDED"
	StatusSignatureInvalid                    SgxQuoteStatus = "SIGNATURE_INVALID"
	StatusSwHardeningNeeded                   SgxQuoteStatus = "SW_HARDENING_NEEDED"
	StatusUnknownBadStatus                    SgxQuoteStatus = "UNKNOWN_BAD_STATUS"
)

// AttestationReport is the result of a successful Verify call.
type AttestationReport struct {
	Freshness      time.Duration
	SgxQuoteStatus SgxQuoteStatus
	SgxQuoteBody   SgxQuote
}

// EndorsedAttestationReport is the JSON envelope carried in the RA-TLS
// certificate's custom extension: the attestation service's signed report,
// its signature over that report, and its end-entity signing certificate.
type EndorsedAttestationReport struct {
	Report      []byte `json:"report"`
	Signature   []byte `json:"signature"`
	SigningCert []byte `json:"signing_cert"`
}
