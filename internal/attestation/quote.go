package attestation

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

const (
	enclaveReportSize = 384
	quoteSize         = 432
)

// cursor is a monotonically advancing offset over a byte slice with a
// take-N-or-fail helper, mirroring the fixed-offset parsers this format is
// usually hand-written as (see original_source/attestation/src/report.rs).
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || len(c.buf) < c.pos+n {
		return nil, errors.New("under-read")
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) takeUint16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) takeUint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ParseEnclaveReport decodes the 384-byte SGX Enclave Report. Reserved
// regions are consumed so the length check succeeds but their contents are
// discarded and never examined.
func ParseEnclaveReport(raw []byte) (SgxEnclaveReport, error) {
	var report SgxEnclaveReport
	if len(raw) != enclaveReportSize {
		return report, parseErr("QuoteCodec.ParseEnclaveReport", errors.New("enclave report must be 384 bytes"))
	}

	c := &cursor{buf: raw}

	cpuSVN, err := c.take(16) // off 0
	if err != nil {
		return report, parseErr("QuoteCodec.ParseEnclaveReport", err)
	}
	miscSelect, err := c.takeUint32() // off 16
	if err != nil {
		return report, parseErr("QuoteCodec.ParseEnclaveReport", err)
	}
	if _, err := c.take(28); err != nil { // off 20, reserved
		return report, parseErr("QuoteCodec.ParseEnclaveReport", err)
	}
	attributes, err := c.take(16) // off 48
	if err != nil {
		return report, parseErr("QuoteCodec.ParseEnclaveReport", err)
	}
	mrEnclave, err := c.take(32) // off 64
	if err != nil {
		return report, parseErr("QuoteCodec.ParseEnclaveReport", err)
	}
	if _, err := c.take(32); err != nil { // off 96, reserved
		return report, parseErr("QuoteCodec.ParseEnclaveReport", err)
	}
	mrSigner, err := c.take(32) // off 128
	if err != nil {
		return report, parseErr("QuoteCodec.ParseEnclaveReport", err)
	}
	if _, err := c.take(96); err != nil { // off 160, reserved
		return report, parseErr("QuoteCodec.ParseEnclaveReport", err)
	}
	isvProdID, err := c.takeUint16() // off 256
	if err != nil {
		return report, parseErr("QuoteCodec.ParseEnclaveReport", err)
	}
	isvSVN, err := c.takeUint16() // off 258
	if err != nil {
		return report, parseErr("QuoteCodec.ParseEnclaveReport", err)
	}
	if _, err := c.take(60); err != nil { // off 260, reserved
		return report, parseErr("QuoteCodec.ParseEnclaveReport", err)
	}
	reportData, err := c.take(64) // off 320
	if err != nil {
		return report, parseErr("QuoteCodec.ParseEnclaveReport", err)
	}

	if c.pos != len(raw) {
		return report, parseErr("QuoteCodec.ParseEnclaveReport", errors.New("trailing bytes after enclave report"))
	}

	copy(report.CPUSVN[:], cpuSVN)
	report.MiscSelect = miscSelect
	copy(report.Attributes[:], attributes)
	copy(report.MrEnclave[:], mrEnclave)
	copy(report.MrSigner[:], mrSigner)
	report.IsvProdID = isvProdID
	report.IsvSVN = isvSVN
	copy(report.ReportData[:], reportData)
	return report, nil
}

// ParseQuote decodes the 432-byte SGX Quote, delegating the trailing
// 384 bytes to ParseEnclaveReport.
func ParseQuote(raw []byte) (SgxQuote, error) {
	var quote SgxQuote
	if len(raw) != quoteSize {
		return quote, parseErr("QuoteCodec.ParseQuote", errors.New("quote must be 432 bytes"))
	}

	c := &cursor{buf: raw}

	versionNum, err := c.takeUint16() // off 0
	if err != nil {
		return quote, parseErr("QuoteCodec.ParseQuote", err)
	}
	discriminator, err := c.takeUint16() // off 2
	if err != nil {
		return quote, parseErr("QuoteCodec.ParseQuote", err)
	}

	version, err := decodeQuoteVersion(versionNum, discriminator)
	if err != nil {
		return quote, err
	}

	gid, err := c.takeUint32() // off 4
	if err != nil {
		return quote, parseErr("QuoteCodec.ParseQuote", err)
	}
	isvSVNQE, err := c.takeUint16() // off 8
	if err != nil {
		return quote, parseErr("QuoteCodec.ParseQuote", err)
	}
	isvSVNPCE, err := c.takeUint16() // off 10
	if err != nil {
		return quote, parseErr("QuoteCodec.ParseQuote", err)
	}
	qeVendorIDRaw, err := c.take(16) // off 12
	if err != nil {
		return quote, parseErr("QuoteCodec.ParseQuote", err)
	}
	qeVendorID, err := uuid.FromBytes(qeVendorIDRaw)
	if err != nil {
		return quote, parseErr("QuoteCodec.ParseQuote", err)
	}
	userData, err := c.take(20) // off 28
	if err != nil {
		return quote, parseErr("QuoteCodec.ParseQuote", err)
	}
	enclaveReportRaw, err := c.take(enclaveReportSize) // off 48
	if err != nil {
		return quote, parseErr("QuoteCodec.ParseQuote", err)
	}

	if c.pos != len(raw) {
		return quote, parseErr("QuoteCodec.ParseQuote", errors.New("trailing bytes after quote"))
	}

	enclaveReport, err := ParseEnclaveReport(enclaveReportRaw)
	if err != nil {
		return quote, err
	}

	quote.Version = version
	quote.GID = gid
	quote.IsvSVNQE = isvSVNQE
	quote.IsvSVNPCE = isvSVNPCE
	quote.QEVendorID = qeVendorID
	copy(quote.UserData[:], userData)
	quote.IsvEnclaveReport = enclaveReport
	return quote, nil
}

func decodeQuoteVersion(versionNum, discriminator uint16) (SgxQuoteVersion, error) {
	switch versionNum {
	case 1:
		epidType, err := decodeEpidSigType(discriminator)
		if err != nil {
			return SgxQuoteVersion{}, err
		}
		return SgxQuoteVersion{Variant: QuoteV1, EpidType: epidType}, nil
	case 2:
		epidType, err := decodeEpidSigType(discriminator)
		if err != nil {
			return SgxQuoteVersion{}, err
		}
		return SgxQuoteVersion{Variant: QuoteV2, EpidType: epidType}, nil
	case 3:
		switch discriminator {
		case uint16(EcdsaP256256):
			return SgxQuoteVersion{Variant: QuoteV3, AkType: EcdsaP256256}, nil
		case uint16(EcdsaP384384):
			return SgxQuoteVersion{Variant: QuoteV3, AkType: EcdsaP384384}, nil
		default:
			return SgxQuoteVersion{}, parseErr("QuoteCodec.ParseQuote", errors.New("unrecognized v3 attestation-key type"))
		}
	default:
		return SgxQuoteVersion{}, parseErr("QuoteCodec.ParseQuote", errors.New("unrecognized quote version"))
	}
}

func decodeEpidSigType(discriminator uint16) (EpidQuoteSigType, error) {
	switch discriminator {
	case uint16(EpidUnlinkable):
		return EpidUnlinkable, nil
	case uint16(EpidLinkable):
		return EpidLinkable, nil
	default:
		return 0, parseErr("QuoteCodec.ParseQuote", errors.New("unrecognized EPID signature type"))
	}
}
