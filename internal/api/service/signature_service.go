// Package service provides business logic for the REST API.
package service

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"github.com/remiblancher/sigcore/internal/api/dto"
	"github.com/remiblancher/sigcore/pkg/audit"
	"github.com/remiblancher/sigcore/pkg/cose"
	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// ErrInvalidInput wraps request decoding failures.
var ErrInvalidInput = errors.New("invalid input")

// DefaultAlgoFunc returns the signature algorithm used for a key family when
// the request names none.
type DefaultAlgoFunc func(pkicrypto.KeyFamily) (pkicrypto.SignAlgo, error)

// Limits bounds the sizes a request may ask for. Each bit of modulus or key
// size turns into allocated bytes, so requests outside the limits are
// rejected before any encoding runs.
type Limits struct {
	MinModulusBits int `yaml:"min_modulus_bits"`
	MaxModulusBits int `yaml:"max_modulus_bits"`
	MaxKeyBits     int `yaml:"max_key_bits"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MinModulusBits: 512,
		MaxModulusBits: 16384,
		MaxKeyBits:     1024,
	}
}

// Validate checks that the limits are ordered and within what the encoders
// accept.
func (l Limits) Validate() error {
	if l.MinModulusBits < 1 || l.MinModulusBits > l.MaxModulusBits {
		return fmt.Errorf("min_modulus_bits %d must be in [1, max_modulus_bits]", l.MinModulusBits)
	}
	if l.MaxModulusBits > pkicrypto.MaxKeyBits {
		return fmt.Errorf("max_modulus_bits %d exceeds %d", l.MaxModulusBits, pkicrypto.MaxKeyBits)
	}
	if l.MaxKeyBits < 1 || l.MaxKeyBits > pkicrypto.MaxKeyBits {
		return fmt.Errorf("max_key_bits %d must be in [1, %d]", l.MaxKeyBits, pkicrypto.MaxKeyBits)
	}
	return nil
}

func (l Limits) checkModulusBits(bits int) error {
	if bits < l.MinModulusBits || bits > l.MaxModulusBits {
		return invalid("modulus_bits", fmt.Errorf("%d outside [%d, %d]", bits, l.MinModulusBits, l.MaxModulusBits))
	}
	return nil
}

func (l Limits) checkKeyBits(bits int) error {
	if bits < 1 || bits > l.MaxKeyBits {
		return invalid("key_bits", fmt.Errorf("%d outside [1, %d]", bits, l.MaxKeyBits))
	}
	return nil
}

// SignatureService provides encoding, conversion and verification for the
// REST API.
type SignatureService struct {
	reg        *pkicrypto.Registry
	dispatcher *pkicrypto.Dispatcher
	aux        *pkicrypto.StaticKeyCertPair
	defaults   DefaultAlgoFunc
	random     io.Reader
	limits     Limits
}

// Option configures a SignatureService.
type Option func(*SignatureService)

// WithStaticKeyPair sets the verifier's static key pair for DHPOP.
func WithStaticKeyPair(aux *pkicrypto.StaticKeyCertPair) Option {
	return func(s *SignatureService) { s.aux = aux }
}

// WithDefaults overrides the per-family default algorithms.
func WithDefaults(fn DefaultAlgoFunc) Option {
	return func(s *SignatureService) {
		if fn != nil {
			s.defaults = fn
		}
	}
}

// WithLimits sets the request size limits.
func WithLimits(l Limits) Option {
	return func(s *SignatureService) { s.limits = l }
}

// WithRandom sets the PSS salt source.
func WithRandom(r io.Reader) Option {
	return func(s *SignatureService) { s.random = r }
}

// NewSignatureService creates a SignatureService over dispatcher, which
// also supplies the digest registry. A nil dispatcher uses the default
// registry.
func NewSignatureService(dispatcher *pkicrypto.Dispatcher, opts ...Option) *SignatureService {
	if dispatcher == nil {
		dispatcher = pkicrypto.NewDispatcher(nil)
	}
	s := &SignatureService{
		reg:        dispatcher.Registry(),
		dispatcher: dispatcher,
		defaults:   pkicrypto.DefaultSignAlgo,
		random:     rand.Reader,
		limits:     DefaultLimits(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func invalid(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalidInput, field, err)
}

// Hashes lists the registered digests.
func (s *SignatureService) Hashes(ctx context.Context) *dto.HashListResponse {
	hashes := s.reg.Hashes()
	resp := &dto.HashListResponse{Hashes: make([]dto.HashInfo, 0, len(hashes))}
	for _, h := range hashes {
		resp.Hashes = append(resp.Hashes, dto.HashInfo{
			Name:        h.String(),
			Size:        h.Size(),
			OID:         h.OID().String(),
			XOF:         h.IsXOF(),
			PKCS1Prefix: s.reg.HasPrefix(h),
		})
	}
	return resp
}

// EncodePKCS1 builds an EMSA-PKCS1-v1_5 block.
func (s *SignatureService) EncodePKCS1(ctx context.Context, req *dto.EncodePKCS1Request) (*dto.EncodeResponse, error) {
	if (req.DigestInfo == nil) == (req.Digest == nil) {
		return nil, invalid("digest", errors.New("exactly one of digest and digest_info is required"))
	}
	if err := s.limits.checkModulusBits(req.ModulusBits); err != nil {
		return nil, err
	}

	var (
		em       []byte
		hashName string
		err      error
	)
	if req.DigestInfo != nil {
		di, derr := req.DigestInfo.Decode()
		if derr != nil {
			return nil, invalid("digest_info", derr)
		}
		em, err = pkicrypto.EncodePKCS1v15DigestInfo(di, req.ModulusBits)
	} else {
		h, lerr := s.reg.Lookup(req.Hash)
		if lerr != nil {
			return nil, lerr
		}
		hashName = h.String()
		digest, derr := req.Digest.Decode()
		if derr != nil {
			return nil, invalid("digest", derr)
		}
		em, err = s.reg.EncodePKCS1v15(digest, h, req.ModulusBits)
	}

	if aerr := audit.LogEncode(audit.EventEncodePKCS1, hashName, req.ModulusBits, 0, err); aerr != nil {
		return nil, aerr
	}
	if err != nil {
		return nil, err
	}

	return &dto.EncodeResponse{
		EncodedMessage: dto.NewBinaryData(em),
		Hash:           hashName,
		ModulusBits:    req.ModulusBits,
		Length:         len(em),
	}, nil
}

// EncodePSS builds an EMSA-PSS block with a fresh random salt.
func (s *SignatureService) EncodePSS(ctx context.Context, req *dto.EncodePSSRequest) (*dto.EncodeResponse, error) {
	if err := s.limits.checkModulusBits(req.ModulusBits); err != nil {
		return nil, err
	}
	h, err := s.reg.Lookup(req.Hash)
	if err != nil {
		return nil, err
	}
	mgf := h
	if req.MGFHash != "" {
		if mgf, err = s.reg.Lookup(req.MGFHash); err != nil {
			return nil, err
		}
	}
	saltLen := h.Size()
	if req.SaltLength != nil {
		saltLen = *req.SaltLength
	}

	digest, err := req.Digest.Decode()
	if err != nil {
		return nil, invalid("digest", err)
	}

	em, err := pkicrypto.EncodePSS(h, digest, mgf, saltLen, req.ModulusBits, s.random)
	if aerr := audit.LogEncode(audit.EventEncodePSS, h.String(), req.ModulusBits, saltLen, err); aerr != nil {
		return nil, aerr
	}
	if err != nil {
		return nil, err
	}

	return &dto.EncodeResponse{
		EncodedMessage: dto.NewBinaryData(em),
		Hash:           h.String(),
		ModulusBits:    req.ModulusBits,
		Length:         len(em),
	}, nil
}

// ConvertToDER converts a plain r||s signature to DER.
func (s *SignatureService) ConvertToDER(ctx context.Context, req *dto.ConvertRequest) (*dto.ConvertResponse, error) {
	sig, err := req.Signature.Decode()
	if err != nil {
		return nil, invalid("signature", err)
	}

	der, err := pkicrypto.DSAPlainToDER(sig)
	if aerr := audit.LogConvert("der", len(sig)*4, len(der), err); aerr != nil {
		return nil, aerr
	}
	if err != nil {
		return nil, err
	}

	return &dto.ConvertResponse{
		Signature: dto.NewBinaryData(der),
		Format:    "der",
		Length:    len(der),
	}, nil
}

// ConvertToPlain converts a DER signature to the plain r||s form.
func (s *SignatureService) ConvertToPlain(ctx context.Context, req *dto.ConvertRequest) (*dto.ConvertResponse, error) {
	if err := s.limits.checkKeyBits(req.KeyBits); err != nil {
		return nil, err
	}
	sig, err := req.Signature.Decode()
	if err != nil {
		return nil, invalid("signature", err)
	}

	plain, err := pkicrypto.DSADERToPlain(sig, req.KeyBits)
	if aerr := audit.LogConvert("plain", req.KeyBits, len(plain), err); aerr != nil {
		return nil, aerr
	}
	if err != nil {
		return nil, err
	}

	return &dto.ConvertResponse{
		Signature: dto.NewBinaryData(plain),
		Format:    "plain",
		Length:    len(plain),
	}, nil
}

// Verify checks a signature. A signature that does not verify is reported
// in the response; malformed requests and unusable keys are errors.
func (s *SignatureService) Verify(ctx context.Context, req *dto.VerifyRequest) (*dto.VerifyResponse, error) {
	keyPEM, err := req.PublicKey.Decode()
	if err != nil {
		return nil, invalid("public_key", err)
	}
	pub, err := pkicrypto.ParsePublicKeyPEM(keyPEM)
	if err != nil {
		return nil, err
	}
	message, err := req.Message.Decode()
	if err != nil {
		return nil, invalid("message", err)
	}
	signature, err := req.Signature.Decode()
	if err != nil {
		return nil, invalid("signature", err)
	}

	var verifier pkicrypto.Verifier
	if req.KeyAlgorithm != "" {
		verifier, err = s.dispatcher.Resolve(req.KeyAlgorithm, pub, s.aux)
	} else {
		verifier, err = s.dispatcher.ResolveKey(pub, s.aux)
	}
	if err != nil {
		return nil, err
	}

	var alg pkicrypto.SignAlgo
	if req.Algorithm != "" {
		alg, err = pkicrypto.ParseSignAlgo(req.Algorithm)
	} else {
		alg, err = s.defaults(verifier.Family())
	}
	if err != nil {
		return nil, err
	}

	verr := verifier.Verify(alg, message, signature)
	if aerr := audit.LogVerify(audit.EventSigVerify, verifier.Family().String(), alg.Name(), verr); aerr != nil {
		return nil, aerr
	}

	resp := &dto.VerifyResponse{
		Valid:     verr == nil,
		Algorithm: alg.Name(),
		KeyFamily: verifier.Family().String(),
	}
	if verr != nil {
		if !errors.Is(verr, pkicrypto.ErrVerification) {
			return nil, verr
		}
		resp.Errors = []string{verr.Error()}
	}
	return resp, nil
}

// VerifyCOSE checks a COSE_Sign1 message.
func (s *SignatureService) VerifyCOSE(ctx context.Context, req *dto.COSEVerifyRequest) (*dto.COSEVerifyResponse, error) {
	data, err := req.Message.Decode()
	if err != nil {
		return nil, invalid("message", err)
	}

	cfg := &cose.VerifyConfig{Dispatcher: s.dispatcher}
	if req.PublicKey != nil {
		keyPEM, err := req.PublicKey.Decode()
		if err != nil {
			return nil, invalid("public_key", err)
		}
		if cfg.PublicKey, err = pkicrypto.ParsePublicKeyPEM(keyPEM); err != nil {
			return nil, err
		}
	}
	if len(req.TrustAnchors) > 0 {
		cfg.Roots = x509.NewCertPool()
		for i, ta := range req.TrustAnchors {
			cert, err := decodeCertificate(&ta)
			if err != nil {
				return nil, invalid(fmt.Sprintf("trust_anchors[%d]", i), err)
			}
			cfg.Roots.AddCert(cert)
		}
	}

	result, verr := cose.VerifySign1(data, cfg)

	algName := ""
	if result != nil {
		algName = result.SignAlgo.Name()
	}
	if aerr := audit.LogVerify(audit.EventCOSEVerify, "", algName, verr); aerr != nil {
		return nil, aerr
	}

	if verr != nil {
		if errors.Is(verr, pkicrypto.ErrMalformedEncoding) || errors.Is(verr, cose.ErrNoVerificationKey) ||
			errors.Is(verr, pkicrypto.ErrUnsupportedAlgorithm) || errors.Is(verr, pkicrypto.ErrInvalidKey) {
			return nil, verr
		}
		return &dto.COSEVerifyResponse{
			Valid:  false,
			Errors: []string{verr.Error()},
		}, nil
	}

	payload := dto.NewBinaryData(result.Payload)
	return &dto.COSEVerifyResponse{
		Valid:     true,
		Algorithm: cose.AlgorithmName(result.Algorithm),
		Payload:   &payload,
		Warnings:  result.Warnings,
	}, nil
}

func decodeCertificate(b *dto.BinaryData) (*x509.Certificate, error) {
	data, err := b.Decode()
	if err != nil {
		return nil, err
	}
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	return x509.ParseCertificate(data)
}
