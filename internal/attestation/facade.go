package attestation

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/r3e-network/sgx-ra-verifier/infrastructure/logging"
)

// Option configures a Verify call.
type Option func(*verifyConfig)

type verifyConfig struct {
	now     func() time.Time
	logger  *logging.Logger
	limiter *rate.Limiter
}

// WithClock injects the time source used for chain-validity and freshness
// checks. Platforms whose OS clock is untrusted (e.g. inside an SGX
// enclave) should supply an attested time source; the default reads the
// system clock directly.
func WithClock(now func() time.Time) Option {
	return func(c *verifyConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger injects a structured logger for step-level trace diagnostics.
// Verify is silent by default.
func WithLogger(logger *logging.Logger) Option {
	return func(c *verifyConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func defaultVerifyConfig() *verifyConfig {
	return &verifyConfig{
		now:    time.Now,
		logger: logging.New("attestation", "panic", "json"),
	}
}

// Verify decodes certDER, validates its embedded endorsed attestation
// report against rootCADER, and checks that the certificate's public key
// matches the attested enclave's report_data. It is stateless and safe for
// concurrent use; each call performs a single, frozen read of "now".
//
// On success it returns a populated AttestationReport. On any failure it
// returns a *VerificationError classifying the failing step; no partial
// report is ever returned.
func Verify(certDER, rootCADER []byte, opts ...Option) (AttestationReport, error) {
	cfg := defaultVerifyConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	log := cfg.logger.WithFields(map[string]interface{}{"component": "AttestationFacade"})

	if err := awaitLimiter(cfg.limiter); err != nil {
		werr := reportErr("AttestationFacade.Verify", err)
		log.WithError(werr).Warn("rate limiter wait failed")
		return AttestationReport{}, werr
	}

	extracted, err := Extract(certDER)
	if err != nil {
		log.WithError(err).Warn("certificate extraction failed")
		return AttestationReport{}, err
	}
	log.Debug("extracted public key and endorsed report from certificate")

	now := cfg.now()
	validated, err := ValidateReport(extracted.EndorsedReport, rootCADER, now)
	if err != nil {
		log.WithError(err).Warn("report validation failed")
		return AttestationReport{}, err
	}
	log.WithFields(map[string]interface{}{"status": string(validated.Status)}).Debug("endorsed report validated")

	quote, err := ParseQuote(validated.QuoteRaw)
	if err != nil {
		log.WithError(err).Warn("quote parsing failed")
		return AttestationReport{}, err
	}

	if err := BindKey(extracted.PublicKey, quote.IsvEnclaveReport); err != nil {
		log.WithError(err).Warn("key binding failed")
		return AttestationReport{}, err
	}
	log.Debug("certificate public key bound to enclave report_data")

	return AttestationReport{
		Freshness:      validated.Freshness,
		SgxQuoteStatus: validated.Status,
		SgxQuoteBody:   quote,
	}, nil
}
